// Package panel defines the hosting control-panel adapter contract.
package panel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"unicode"
)

// Common panel errors
var (
	ErrUnknownPanel      = errors.New("unknown panel")
	ErrMissingDependency = errors.New("panel dependency missing")
	ErrNoRuntimes        = errors.New("no runtime versions available")
)

// Panel provisions a website, certificate and database on the local server
type Panel interface {
	// Name returns the identifier used in configuration ("cyberpanel")
	Name() string
	// CreateWebsite asks the operator for a runtime version and creates the site
	CreateWebsite(ctx context.Context, domain string) error
	// SetupSSL issues a certificate; re-issuing for a domain that has one succeeds
	SetupSSL(ctx context.Context, domain string) error
	// CreateDatabase creates a database and user named DatabaseName(domain)
	CreateDatabase(ctx context.Context, domain, password string) (*Database, error)
	// WebRoot returns the document root the panel serves the domain from
	WebRoot(domain string) string
}

// DependencyChecker is implemented by panels that rely on local tools
type DependencyChecker interface {
	CheckDependencies() error
}

// Database identifies a created database
type Database struct {
	Name string
	User string
}

// DatabaseName derives the database name from a domain by dropping every
// character that is not a letter or digit: "example-site.com" becomes
// "examplesitecom".
func DatabaseName(domain string) string {
	out := make([]rune, 0, len(domain))
	for _, r := range domain {
		if r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			out = append(out, r)
		}
	}
	return string(out)
}

// Error is a failure reported by the panel. Message is the panel's text, unmodified.
type Error struct {
	Panel     string
	Operation string
	Message   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Panel, e.Operation, e.Message)
}

// Registry holds all registered panel adapters
type Registry struct {
	panels map[string]Panel
}

// NewRegistry creates a new panel registry
func NewRegistry() *Registry {
	return &Registry{panels: make(map[string]Panel)}
}

// Register adds a panel adapter to the registry
func (r *Registry) Register(p Panel) {
	r.panels[p.Name()] = p
}

// Get retrieves a panel adapter by name
func (r *Registry) Get(name string) (Panel, error) {
	p, ok := r.panels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownPanel, name, r.Names())
	}
	return p, nil
}

// Names returns the sorted registered names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.panels))
	for name := range r.panels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
