package cyberpanel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/sitelaunch/internal/panel"
	"github.com/pendergraft/sitelaunch/internal/prompt"
	"github.com/pendergraft/sitelaunch/internal/transport"
)

// fakeRunner returns canned results keyed by CLI subcommand
type fakeRunner struct {
	results map[string]*transport.Result
	calls   [][]string
	missing bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (*transport.Result, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if res, ok := f.results[args[0]]; ok {
		return res, nil
	}
	return &transport.Result{Stdout: `{"success": 1, "errorMessage": "None"}`}, nil
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.missing {
		return "", transport.ErrCommandNotFound
	}
	return "/usr/bin/" + name, nil
}

func newTestPanel(runner *fakeRunner, answers ...string) *Panel {
	return New(Config{PHPVersions: []string{"7.4", "8.2", "8.1"}}, runner, prompt.NewScripted(answers...), nil)
}

func TestCreateWebsite(t *testing.T) {
	runner := &fakeRunner{}
	p := newTestPanel(runner, "2")

	require.NoError(t, p.CreateWebsite(context.Background(), "example.com"))
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{
		"cyberpanel", "createWebsite",
		"--package", "Default",
		"--owner", "admin",
		"--domainName", "example.com",
		"--email", "admin@example.com",
		"--php", "8.1",
	}, runner.calls[0])
}

func TestCreateWebsiteConfiguredEmail(t *testing.T) {
	runner := &fakeRunner{}
	p := New(Config{PHPVersions: []string{"8.2"}, AdminEmail: "ops@example.net"}, runner, prompt.NewScripted("1"), nil)

	require.NoError(t, p.CreateWebsite(context.Background(), "example.com"))
	assert.Contains(t, runner.calls[0], "ops@example.net")
}

func TestCreateWebsiteInvalidChoice(t *testing.T) {
	runner := &fakeRunner{}
	p := newTestPanel(runner, "9")

	err := p.CreateWebsite(context.Background(), "example.com")
	assert.ErrorIs(t, err, prompt.ErrInvalidChoice)
	assert.Empty(t, runner.calls, "nothing runs before a valid choice")
}

func TestCreateWebsiteFailure(t *testing.T) {
	runner := &fakeRunner{results: map[string]*transport.Result{
		"createWebsite": {Stdout: `{"success": 0, "errorMessage": "This website already exists."}`},
	}}
	p := newTestPanel(runner, "1")

	err := p.CreateWebsite(context.Background(), "example.com")
	var pErr *panel.Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "This website already exists.", pErr.Message)
}

func TestCreateWebsiteUnrecognisedOutput(t *testing.T) {
	runner := &fakeRunner{results: map[string]*transport.Result{
		"createWebsite": {Stdout: "Traceback (most recent call last): KeyError 'foo'"},
	}}
	p := newTestPanel(runner, "1")

	err := p.CreateWebsite(context.Background(), "example.com")
	var pErr *panel.Error
	require.ErrorAs(t, err, &pErr)
	assert.Contains(t, pErr.Message, "unrecognised output")
	assert.Contains(t, pErr.Message, "KeyError")
}

func TestSetupSSL(t *testing.T) {
	tests := []struct {
		name    string
		result  *transport.Result
		wantErr bool
	}{
		{"issued", &transport.Result{Stdout: `{"success": 1, "errorMessage": "None"}`}, false},
		{"re-issue with progress text", &transport.Result{Stdout: "Renewing...\n{\"success\": 1, \"errorMessage\": \"None\"}\n"}, false},
		{"non-json output with clean exit", &transport.Result{Stdout: "SSL issued"}, true},
		{"traceback with clean exit", &transport.Result{Stdout: "Traceback (most recent call last): KeyError 'foo'"}, true},
		{"reported failure", &transport.Result{Stdout: `{"success": 0, "errorMessage": "Failed to obtain SSL."}`}, true},
		{"non-zero exit", &transport.Result{Stderr: "Traceback", ExitCode: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{results: map[string]*transport.Result{"issueSSL": tt.result}}
			err := newTestPanel(runner).SetupSSL(context.Background(), "example.com")
			if tt.wantErr {
				var pErr *panel.Error
				assert.ErrorAs(t, err, &pErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, []string{"cyberpanel", "issueSSL", "--domainName", "example.com"}, runner.calls[0])
		})
	}
}

func TestCreateDatabase(t *testing.T) {
	runner := &fakeRunner{}
	p := newTestPanel(runner)

	db, err := p.CreateDatabase(context.Background(), "example-site.com", "Abcdefgh12345678")
	require.NoError(t, err)
	assert.Equal(t, &panel.Database{Name: "examplesitecom", User: "examplesitecom"}, db)
	assert.Equal(t, []string{
		"cyberpanel", "createDatabase",
		"--databaseWebsite", "example-site.com",
		"--dbName", "examplesitecom",
		"--dbUsername", "examplesitecom",
		"--dbPassword", "Abcdefgh12345678",
	}, runner.calls[0])
}

func TestCreateDatabaseRequiresBothSuccessAndNoError(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		wantErr string
	}{
		{"success with error message", `{"success": 1, "errorMessage": "Database already exists."}`, "Database already exists."},
		{"failure without message", `{"success": 0, "errorMessage": "None"}`, "reported success=0"},
		{"boolean success with error", `{"success": true, "errorMessage": "quota exceeded"}`, "quota exceeded"},
		{"unparseable", `Done`, "unrecognised output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{results: map[string]*transport.Result{
				"createDatabase": {Stdout: tt.stdout},
			}}
			_, err := newTestPanel(runner).CreateDatabase(context.Background(), "example.com", "pw")
			var pErr *panel.Error
			require.ErrorAs(t, err, &pErr)
			assert.Contains(t, pErr.Message, tt.wantErr)
		})
	}

	t.Run("empty message counts as none", func(t *testing.T) {
		runner := &fakeRunner{results: map[string]*transport.Result{
			"createDatabase": {Stdout: `{"success": 1, "errorMessage": ""}`},
		}}
		_, err := newTestPanel(runner).CreateDatabase(context.Background(), "example.com", "pw")
		assert.NoError(t, err)
	})
}

func TestCheckDependencies(t *testing.T) {
	assert.NoError(t, newTestPanel(&fakeRunner{}).CheckDependencies())
	assert.ErrorIs(t, newTestPanel(&fakeRunner{missing: true}).CheckDependencies(), panel.ErrMissingDependency)
}

func TestWebRoot(t *testing.T) {
	p := New(Config{WebRootBase: "/srv/www"}, &fakeRunner{}, nil, nil)
	assert.Equal(t, "/srv/www/example.com/public_html", p.WebRoot("example.com"))
}

func TestPHPVersionsDiscovered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"lsphp74", "lsphp81", "lsphp82", "lsphpfoo", "conf"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lsphp80"), nil, 0644))

	p := New(Config{PHPDir: dir}, &fakeRunner{}, nil, nil)
	versions, err := p.PHPVersions()
	require.NoError(t, err)
	assert.Equal(t, []string{"8.2", "8.1", "7.4"}, versions)
}

func TestPHPVersionsNone(t *testing.T) {
	p := New(Config{PHPDir: filepath.Join(t.TempDir(), "missing")}, &fakeRunner{}, nil, nil)
	_, err := p.PHPVersions()
	assert.ErrorIs(t, err, panel.ErrNoRuntimes)
}
