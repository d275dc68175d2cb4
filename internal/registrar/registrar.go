// Package registrar defines the domain registrar adapter contract and the
// pieces shared by every backend.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Common registrar errors
var (
	ErrUnknownRegistrar  = errors.New("unknown registrar")
	ErrNotAvailable      = errors.New("domain is not available for registration")
	ErrIndeterminate     = errors.New("domain availability could not be determined")
	ErrDomainNotInResult = errors.New("response does not include the requested domain")
	ErrUnexpected        = errors.New("unexpected registrar response")
	ErrNoContacts        = errors.New("no complete contact profile available")
)

// Registrar purchases domains and points their DNS at a server
type Registrar interface {
	// Name returns the identifier used in configuration ("namecheap", "dynadot")
	Name() string
	// CheckAvailability never fails: transport and parse problems are
	// reported as Indeterminate with a diagnostic message.
	CheckAvailability(ctx context.Context, domain string) Availability
	IsOwnedByCaller(ctx context.Context, domain string) (bool, error)
	Purchase(ctx context.Context, domain string, contact ContactProfile) (*Registration, error)
	// ConfigureDNS resets the domain to the registrar's default DNS and then
	// applies SiteRecords(domain, serverIP).
	ConfigureDNS(ctx context.Context, domain, serverIP string) error
}

// ContactRequirer is implemented by registrars that need a postal contact to purchase
type ContactRequirer interface {
	RequiresContact() bool
}

// ContactLister is implemented by registrars that keep saved contacts on the account
type ContactLister interface {
	ListContacts(ctx context.Context) ([]ContactProfile, error)
}

// AvailabilityStatus is the outcome of an availability check
type AvailabilityStatus int

const (
	Indeterminate AvailabilityStatus = iota
	Available
	Unavailable
)

func (s AvailabilityStatus) String() string {
	switch s {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return "indeterminate"
	}
}

// Availability is the result of CheckAvailability
type Availability struct {
	Status  AvailabilityStatus
	Message string
}

// Err converts a non-available result into an error
func (a Availability) Err() error {
	switch a.Status {
	case Available:
		return nil
	case Unavailable:
		if a.Message != "" {
			return fmt.Errorf("%w: %s", ErrNotAvailable, a.Message)
		}
		return ErrNotAvailable
	default:
		if a.Message != "" {
			return fmt.Errorf("%w: %s", ErrIndeterminate, a.Message)
		}
		return ErrIndeterminate
	}
}

// IndeterminateBecause builds an Indeterminate result from an error
func IndeterminateBecause(err error) Availability {
	return Availability{Status: Indeterminate, Message: err.Error()}
}

// Registration describes a completed purchase
type Registration struct {
	Domain string
	// ID is the backend's identifier for the registration or order, if any
	ID string
	// AlreadyOwned is set when the domain was in the account and no purchase was made
	AlreadyOwned bool
}

// Record is a DNS resource record to apply at the registrar
type Record struct {
	Host  string // "@" for the apex
	Type  string // "A", "CNAME"
	Value string
	TTL   int
}

// DefaultTTL is used for records applied by ConfigureDNS
const DefaultTTL = 1800

// SiteRecords returns the two records every site gets: the apex A record and
// a www CNAME back to the apex.
func SiteRecords(domain, serverIP string) []Record {
	return []Record{
		{Host: "@", Type: "A", Value: serverIP, TTL: DefaultTTL},
		{Host: "www", Type: "CNAME", Value: domain, TTL: DefaultTTL},
	}
}

// APIError is a rejection reported by a registrar backend. Message is the
// backend's text, unmodified.
type APIError struct {
	Backend string
	Command string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %s (code %s)", e.Backend, e.Command, e.Message, e.Code)
	}
	return fmt.Sprintf("%s %s: %s", e.Backend, e.Command, e.Message)
}

// Checker is the read-only part of a Registrar used before purchasing
type Checker interface {
	CheckAvailability(ctx context.Context, domain string) Availability
	IsOwnedByCaller(ctx context.Context, domain string) (bool, error)
}

// Precheck re-verifies a domain immediately before purchase. Ownership is
// checked first; an owned domain skips the availability check and returns
// owned=true. Otherwise the domain must be Available.
func Precheck(ctx context.Context, c Checker, domain string) (owned bool, err error) {
	owned, err = c.IsOwnedByCaller(ctx, domain)
	if err != nil {
		return false, fmt.Errorf("checking ownership: %w", err)
	}
	if owned {
		return true, nil
	}
	if err := c.CheckAvailability(ctx, domain).Err(); err != nil {
		return false, err
	}
	return false, nil
}

// Registry holds all registered registrar adapters
type Registry struct {
	registrars map[string]Registrar
}

// NewRegistry creates a new registrar registry
func NewRegistry() *Registry {
	return &Registry{
		registrars: make(map[string]Registrar),
	}
}

// Register adds a registrar adapter to the registry
func (r *Registry) Register(reg Registrar) {
	r.registrars[reg.Name()] = reg
}

// Get retrieves a registrar adapter by name
func (r *Registry) Get(name string) (Registrar, error) {
	reg, ok := r.registrars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownRegistrar, name, r.Names())
	}
	return reg, nil
}

// Names returns the sorted registered names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.registrars))
	for name := range r.registrars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
