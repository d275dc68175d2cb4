// Package cyberpanel implements the panel adapter on top of the cyberpanel CLI.
package cyberpanel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pendergraft/sitelaunch/internal/logging"
	"github.com/pendergraft/sitelaunch/internal/panel"
	"github.com/pendergraft/sitelaunch/internal/prompt"
	"github.com/pendergraft/sitelaunch/internal/transport"
	"github.com/pendergraft/sitelaunch/internal/validation"
)

// Name is the configuration identifier of this backend
const Name = "cyberpanel"

// Config holds CLI settings
type Config struct {
	Binary      string
	Package     string
	Owner       string
	AdminEmail  string
	PHPDir      string
	PHPVersions []string
	WebRootBase string
}

// Panel drives the cyberpanel CLI
type Panel struct {
	cfg    Config
	runner transport.Runner
	prompt prompt.Prompter
	logger *slog.Logger
}

// New creates a CyberPanel adapter
func New(cfg Config, runner transport.Runner, p prompt.Prompter, logger *slog.Logger) *Panel {
	if cfg.Binary == "" {
		cfg.Binary = "cyberpanel"
	}
	if cfg.Package == "" {
		cfg.Package = "Default"
	}
	if cfg.Owner == "" {
		cfg.Owner = "admin"
	}
	if cfg.PHPDir == "" {
		cfg.PHPDir = "/usr/local/lsws"
	}
	if cfg.WebRootBase == "" {
		cfg.WebRootBase = "/home"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Panel{cfg: cfg, runner: runner, prompt: p, logger: logger}
}

// Name implements panel.Panel
func (p *Panel) Name() string {
	return Name
}

// WebRoot implements panel.Panel
func (p *Panel) WebRoot(domain string) string {
	return filepath.Join(p.cfg.WebRootBase, domain, "public_html")
}

// CheckDependencies implements panel.DependencyChecker
func (p *Panel) CheckDependencies() error {
	if _, err := p.runner.LookPath(p.cfg.Binary); err != nil {
		return fmt.Errorf("%w: %v", panel.ErrMissingDependency, err)
	}
	return nil
}

// CreateWebsite implements panel.Panel
func (p *Panel) CreateWebsite(ctx context.Context, domain string) error {
	versions, err := p.PHPVersions()
	if err != nil {
		return err
	}

	idx, err := p.prompt.Choose("Select PHP version for "+domain, versions)
	if err != nil {
		return fmt.Errorf("selecting PHP version: %w", err)
	}
	php := versions[idx]

	email := p.cfg.AdminEmail
	if email == "" {
		email = "admin@" + domain
	}

	out, err := p.run(ctx, "createWebsite",
		"--package", p.cfg.Package,
		"--owner", p.cfg.Owner,
		"--domainName", domain,
		"--email", email,
		"--php", php,
	)
	if err != nil {
		return err
	}
	if err := out.check(Name, "createWebsite", false); err != nil {
		return err
	}

	p.logger.Info("website created", "domain", domain, "php", php, "web_root", p.WebRoot(domain))
	return nil
}

// SetupSSL implements panel.Panel
func (p *Panel) SetupSSL(ctx context.Context, domain string) error {
	out, err := p.run(ctx, "issueSSL", "--domainName", domain)
	if err != nil {
		return err
	}
	if err := out.check(Name, "issueSSL", false); err != nil {
		return err
	}

	p.logger.Info("certificate issued", "domain", domain)
	return nil
}

// CreateDatabase implements panel.Panel
func (p *Panel) CreateDatabase(ctx context.Context, domain, password string) (*panel.Database, error) {
	name := panel.DatabaseName(domain)
	if name == "" {
		return nil, fmt.Errorf("cannot derive a database name from %q", domain)
	}

	out, err := p.run(ctx, "createDatabase",
		"--databaseWebsite", domain,
		"--dbName", name,
		"--dbUsername", name,
		"--dbPassword", password,
	)
	if err != nil {
		return nil, err
	}
	// The CLI has been seen to report success=1 alongside an error message
	if err := out.check(Name, "createDatabase", true); err != nil {
		return nil, err
	}

	p.logger.Info("database created", "domain", domain, "database", name)
	return &panel.Database{Name: name, User: name}, nil
}

// PHPVersions returns the selectable PHP versions, newest first. Configured
// versions win; otherwise installed lsphpNN directories are listed.
func (p *Panel) PHPVersions() ([]string, error) {
	versions := p.cfg.PHPVersions
	if len(versions) == 0 {
		found, err := discoverPHP(p.cfg.PHPDir)
		if err != nil {
			return nil, err
		}
		versions = found
	}

	versions = validation.SortVersions(versions)
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: no PHP versions under %s", panel.ErrNoRuntimes, p.cfg.PHPDir)
	}
	return versions, nil
}

var lsphpDir = regexp.MustCompile(`^lsphp(\d)(\d+)$`)

// discoverPHP maps lsphp81 to "8.1", lsphp74 to "7.4"
func discoverPHP(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing PHP installations: %w", err)
	}

	var versions []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if m := lsphpDir.FindStringSubmatch(e.Name()); m != nil {
			versions = append(versions, m[1]+"."+m[2])
		}
	}
	return versions, nil
}

func (p *Panel) run(ctx context.Context, command string, args ...string) (*output, error) {
	res, err := p.runner.Run(ctx, p.cfg.Binary, append([]string{command}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", Name, command, err)
	}
	return parseOutput(res), nil
}

// output is the classified result of one CLI call
type output struct {
	exitCode int
	parsed   bool
	success  bool
	message  string
	raw      string
}

// cliResponse is the JSON object the CLI prints on stdout
type cliResponse struct {
	Success      flag   `json:"success"`
	ErrorMessage string `json:"errorMessage"`
}

// flag accepts 1/0, true/false and "1"/"0"
type flag bool

func (f *flag) UnmarshalJSON(b []byte) error {
	switch strings.Trim(string(bytes.TrimSpace(b)), `"`) {
	case "1", "true", "True":
		*f = true
	case "0", "false", "False", "null", "":
		*f = false
	default:
		return fmt.Errorf("unrecognised success value %s", string(b))
	}
	return nil
}

func parseOutput(res *transport.Result) *output {
	out := &output{exitCode: res.ExitCode, raw: strings.TrimSpace(res.Stdout + "\n" + res.Stderr)}

	body := extractJSON(res.Stdout)
	if body == "" {
		return out
	}
	var r cliResponse
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return out
	}
	out.parsed = true
	out.success = bool(r.Success)
	out.message = strings.TrimSpace(r.ErrorMessage)
	return out
}

// extractJSON returns the last line of s that looks like a JSON object; the
// CLI may print progress text before it.
func extractJSON(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}") {
			return line
		}
	}
	return ""
}

func hasMessage(msg string) bool {
	return msg != "" && !strings.EqualFold(msg, "None")
}

// check classifies the output. Output without a JSON result always fails.
// strict requires the error message to be empty or "None" in addition to the
// success flag.
func (o *output) check(panelName, op string, strict bool) error {
	fail := func(msg string) error {
		return &panel.Error{Panel: panelName, Operation: op, Message: msg}
	}

	if o.exitCode != 0 {
		switch {
		case hasMessage(o.message):
			return fail(o.message)
		case o.raw != "":
			return fail(fmt.Sprintf("exit status %d: %s", o.exitCode, o.raw))
		default:
			return fail(fmt.Sprintf("exit status %d", o.exitCode))
		}
	}
	if !o.parsed {
		return fail("unrecognised output: " + o.raw)
	}
	if !o.success {
		if hasMessage(o.message) {
			return fail(o.message)
		}
		return fail("reported success=0")
	}
	if strict && hasMessage(o.message) {
		return fail(o.message)
	}
	return nil
}
