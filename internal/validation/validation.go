// Package validation provides input validation for sitelaunch.
package validation

import (
	"errors"
	"net"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// Domain label validation
// LDH labels: lowercase alphanumeric with inner hyphens, 1-63 chars
var labelRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ArchiveExtensions lists the accepted archive suffixes. Longer suffixes come
// first so ".tar.gz" wins over ".gz".
var ArchiveExtensions = []string{".tar.bz2", ".tar.gz", ".tgz", ".tar", ".zip"}

// ValidateDomain validates a registrable domain name
func ValidateDomain(domain string) error {
	if domain == "" {
		return errors.New("domain cannot be empty")
	}
	if len(domain) > 253 {
		return errors.New("domain too long (max 253 chars)")
	}
	if domain != strings.ToLower(domain) {
		return errors.New("invalid domain: must be lowercase")
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return errors.New("invalid domain: must contain a TLD")
	}
	for _, label := range labels {
		if !labelRegex.MatchString(label) {
			return errors.New("invalid domain: labels must be alphanumeric with inner hyphens")
		}
	}
	return nil
}

// NormalizeDomain trims whitespace, a trailing dot and a leading "www."
// and lowercases the result
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, ".")
	return strings.TrimPrefix(d, "www.")
}

// ValidateIPv4 validates a dotted-quad IPv4 address
func ValidateIPv4(ip string) error {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil || strings.Contains(ip, ":") {
		return errors.New("invalid IPv4 address")
	}
	return nil
}

// ValidateEmail performs a loose syntactic check of an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return errors.New("invalid email address")
	}
	return nil
}

// ArchiveExtension returns the recognized archive suffix of a URL or path,
// or "" when none matches. Query strings and fragments are ignored.
func ArchiveExtension(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		p = u.Path
	}
	name := strings.ToLower(path.Base(p))
	for _, ext := range ArchiveExtensions {
		if strings.HasSuffix(name, ext) && len(name) > len(ext) {
			return ext
		}
	}
	return ""
}

// HasArchiveExtension reports whether ref ends in a recognized archive suffix
func HasArchiveExtension(ref string) bool {
	return ArchiveExtension(ref) != ""
}

// canonical turns "8.1" or "v8.1.2" into a semver string
func canonical(v string) string {
	return "v" + strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// ValidateVersion validates a runtime version such as 8.1 or 7.4.33
func ValidateVersion(v string) error {
	if strings.TrimPrefix(v, "v") == "" {
		return errors.New("version cannot be empty")
	}
	if !semver.IsValid(canonical(v)) {
		return errors.New("invalid version: must be in format X.Y or X.Y.Z")
	}
	return nil
}

// CompareVersions compares two versions
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareVersions(v1, v2 string) int {
	return semver.Compare(canonical(v1), canonical(v2))
}

// SortVersions sorts versions newest first, dropping invalid and duplicate entries
func SortVersions(versions []string) []string {
	seen := make(map[string]bool, len(versions))
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		v = strings.TrimPrefix(strings.TrimSpace(v), "v")
		if ValidateVersion(v) != nil || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return CompareVersions(out[i], out[j]) > 0
	})
	return out
}
