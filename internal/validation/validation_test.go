package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDomain(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "example.com", false},
		{"valid with hyphen", "example-site.com", false},
		{"valid subdomain", "shop.example.co.uk", false},
		{"valid numeric label", "123.example.org", false},
		{"empty", "", true},
		{"no tld", "localhost", true},
		{"uppercase", "Example.com", true},
		{"leading hyphen", "-example.com", true},
		{"trailing hyphen", "example-.com", true},
		{"empty label", "example..com", true},
		{"underscore", "my_site.com", true},
		{"space", "my site.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDomain(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDomain(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, "example.com", NormalizeDomain("  Example.COM. "))
	assert.Equal(t, "example.com", NormalizeDomain("www.example.com"))
	assert.Equal(t, "shop.example.com", NormalizeDomain("shop.example.com"))
}

func TestValidateIPv4(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"203.0.113.5", false},
		{"10.0.0.1", false},
		{"256.0.0.1", true},
		{"2001:db8::1", true},
		{"::ffff:203.0.113.5", true},
		{"", true},
		{"example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateIPv4(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIPv4(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestArchiveExtension(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"https://example.org/app.zip", ".zip"},
		{"https://example.org/app.tar.gz", ".tar.gz"},
		{"https://example.org/app.tgz", ".tgz"},
		{"https://example.org/app.tar", ".tar"},
		{"https://example.org/app.tar.bz2", ".tar.bz2"},
		{"https://example.org/APP.ZIP", ".zip"},
		{"https://example.org/app.zip?token=abc#frag", ".zip"},
		{"s3://bucket/releases/app.tar.gz", ".tar.gz"},
		{"/var/tmp/app.zip", ".zip"},
		{"https://example.org/app.rar", ""},
		{"https://example.org/app.gz", ""},
		{"https://example.org/app.tar.xz", ""},
		{"https://example.org/download", ""},
		{"https://example.org/.zip", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, ArchiveExtension(tt.ref))
			assert.Equal(t, tt.want != "", HasArchiveExtension(tt.ref))
		})
	}
}

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"major minor", "8.1", false},
		{"full", "7.4.33", false},
		{"with v prefix", "v8.2", false},
		{"major only", "8", false},
		{"empty", "", true},
		{"letters", "eight", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVersion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateVersion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSortVersions(t *testing.T) {
	got := SortVersions([]string{"7.4", "8.1", "8.0", "bogus", "8.10", "8.2", "8.1"})
	assert.Equal(t, []string{"8.10", "8.2", "8.1", "8.0", "7.4"}, got)
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 1, CompareVersions("8.2", "8.1"))
	assert.Equal(t, -1, CompareVersions("7.4", "8.0"))
	assert.Equal(t, 0, CompareVersions("v8.1", "8.1"))
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("admin@example.com"))
	assert.Error(t, ValidateEmail("admin@"))
	assert.Error(t, ValidateEmail("not an email"))
}
