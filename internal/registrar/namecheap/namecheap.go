// Package namecheap implements the registrar adapter for the Namecheap XML API.
package namecheap

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/pendergraft/sitelaunch/internal/logging"
	"github.com/pendergraft/sitelaunch/internal/registrar"
	"github.com/pendergraft/sitelaunch/internal/transport"
)

// Name is the configuration identifier of this backend
const Name = "namecheap"

// API command names
const (
	cmdCheck          = "namecheap.domains.check"
	cmdGetList        = "namecheap.domains.getList"
	cmdCreate         = "namecheap.domains.create"
	cmdSetDefault     = "namecheap.domains.dns.setDefault"
	cmdSetHosts       = "namecheap.domains.dns.setHosts"
	cmdAddressList    = "namecheap.users.address.getList"
	cmdAddressGetInfo = "namecheap.users.address.getInfo"
)

// Config holds the account credentials and endpoint
type Config struct {
	APIUser  string
	APIKey   string
	Username string
	ClientIP string
	Endpoint string
	Years    int
}

// Registrar talks to Namecheap
type Registrar struct {
	cfg    Config
	http   *transport.HTTPClient
	logger *slog.Logger
}

// New creates a Namecheap adapter
func New(cfg Config, httpClient *transport.HTTPClient, logger *slog.Logger) *Registrar {
	if cfg.Years <= 0 {
		cfg.Years = 1
	}
	if cfg.Username == "" {
		cfg.Username = cfg.APIUser
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registrar{cfg: cfg, http: httpClient, logger: logger}
}

// Name implements registrar.Registrar
func (r *Registrar) Name() string {
	return Name
}

// RequiresContact implements registrar.ContactRequirer
func (r *Registrar) RequiresContact() bool {
	return true
}

// CheckAvailability implements registrar.Registrar
func (r *Registrar) CheckAvailability(ctx context.Context, domain string) registrar.Availability {
	resp, err := r.call(ctx, cmdCheck, url.Values{"DomainList": {domain}})
	if err != nil {
		return registrar.IndeterminateBecause(err)
	}

	for _, res := range resp.CommandResponse.DomainCheckResults {
		if !strings.EqualFold(res.Domain, domain) {
			continue
		}
		if res.ErrorNo != "" && res.ErrorNo != "0" {
			return registrar.Availability{Status: registrar.Indeterminate, Message: res.Description}
		}
		if isTrue(res.Available) {
			return registrar.Availability{Status: registrar.Available}
		}
		return registrar.Availability{Status: registrar.Unavailable, Message: domain + " is already registered"}
	}
	return registrar.IndeterminateBecause(fmt.Errorf("%w: %s", registrar.ErrDomainNotInResult, domain))
}

// IsOwnedByCaller implements registrar.Registrar
func (r *Registrar) IsOwnedByCaller(ctx context.Context, domain string) (bool, error) {
	resp, err := r.call(ctx, cmdGetList, url.Values{
		"SearchTerm": {domain},
		"PageSize":   {"100"},
	})
	if err != nil {
		return false, err
	}
	if resp.CommandResponse.DomainGetList == nil {
		return false, fmt.Errorf("%w: %s has no DomainGetListResult", registrar.ErrUnexpected, cmdGetList)
	}

	// SearchTerm is a substring match, so compare names exactly
	for _, d := range resp.CommandResponse.DomainGetList.Domains {
		if strings.EqualFold(d.Name, domain) {
			return true, nil
		}
	}
	return false, nil
}

// Purchase implements registrar.Registrar
func (r *Registrar) Purchase(ctx context.Context, domain string, contact registrar.ContactProfile) (*registrar.Registration, error) {
	owned, err := registrar.Precheck(ctx, r, domain)
	if err != nil {
		return nil, err
	}
	if owned {
		r.logger.Info("domain already in account", "domain", domain)
		return &registrar.Registration{Domain: domain, AlreadyOwned: true}, nil
	}

	if missing := contact.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", registrar.ErrNoContacts, strings.Join(missing, ", "))
	}

	params := url.Values{
		"DomainName":        {domain},
		"Years":             {strconv.Itoa(r.cfg.Years)},
		"AddFreeWhoisguard": {"yes"},
		"WGEnabled":         {"yes"},
	}
	for _, role := range []string{"Registrant", "Tech", "Admin", "AuxBilling"} {
		addContact(params, role, contact)
	}

	resp, err := r.call(ctx, cmdCreate, params)
	if err != nil {
		return nil, err
	}

	for _, res := range resp.CommandResponse.DomainCreate {
		if !strings.EqualFold(res.Domain, domain) {
			continue
		}
		if !isTrue(res.Registered) {
			return nil, fmt.Errorf("%w: %s reported Registered=%q", registrar.ErrUnexpected, domain, res.Registered)
		}
		r.logger.Info("domain registered",
			"domain", domain,
			"domain_id", res.DomainID,
			"order_id", res.OrderID,
			"charged", res.ChargedAmount,
		)
		return &registrar.Registration{Domain: domain, ID: res.DomainID}, nil
	}
	return nil, fmt.Errorf("%w: %s in %s", registrar.ErrDomainNotInResult, domain, cmdCreate)
}

func addContact(params url.Values, role string, c registrar.ContactProfile) {
	set := func(field, value string) {
		if value != "" {
			params.Set(role+field, value)
		}
	}
	set("FirstName", c.FirstName)
	set("LastName", c.LastName)
	set("OrganizationName", c.Organization)
	set("Address1", c.Address1)
	set("Address2", c.Address2)
	set("City", c.City)
	set("StateProvince", c.StateProvince)
	set("PostalCode", c.PostalCode)
	set("Country", c.Country)
	set("Phone", c.Phone)
	set("EmailAddress", c.Email)
}

// ConfigureDNS implements registrar.Registrar
func (r *Registrar) ConfigureDNS(ctx context.Context, domain, serverIP string) error {
	sld, tld, err := splitDomain(domain)
	if err != nil {
		return err
	}

	resp, err := r.call(ctx, cmdSetDefault, url.Values{"SLD": {sld}, "TLD": {tld}})
	if err != nil {
		return err
	}
	if !defaultApplied(resp.CommandResponse.DNSSetDefault, domain) {
		return fmt.Errorf("%w: %s in %s", registrar.ErrDomainNotInResult, domain, cmdSetDefault)
	}
	r.logger.Debug("default DNS restored", "domain", domain)

	params := url.Values{"SLD": {sld}, "TLD": {tld}}
	for i, rec := range registrar.SiteRecords(domain, serverIP) {
		n := strconv.Itoa(i + 1)
		params.Set("HostName"+n, rec.Host)
		params.Set("RecordType"+n, rec.Type)
		params.Set("Address"+n, rec.Value)
		params.Set("TTL"+n, strconv.Itoa(rec.TTL))
	}

	resp, err = r.call(ctx, cmdSetHosts, params)
	if err != nil {
		return err
	}
	for _, res := range resp.CommandResponse.DNSSetHosts {
		if !strings.EqualFold(res.Domain, domain) {
			continue
		}
		if !isTrue(res.IsSuccess) {
			return fmt.Errorf("%w: %s reported IsSuccess=%q", registrar.ErrUnexpected, cmdSetHosts, res.IsSuccess)
		}
		return nil
	}
	return fmt.Errorf("%w: %s in %s", registrar.ErrDomainNotInResult, domain, cmdSetHosts)
}

func defaultApplied(results []dnsSetDefaultResult, domain string) bool {
	for _, res := range results {
		if strings.EqualFold(res.Domain, domain) && isTrue(res.Updated) {
			return true
		}
	}
	return false
}

// ListContacts implements registrar.ContactLister
func (r *Registrar) ListContacts(ctx context.Context) ([]registrar.ContactProfile, error) {
	resp, err := r.call(ctx, cmdAddressList, nil)
	if err != nil {
		return nil, err
	}
	if resp.CommandResponse.AddressGetList == nil {
		return nil, nil
	}

	var contacts []registrar.ContactProfile
	for _, a := range resp.CommandResponse.AddressGetList.Addresses {
		info, err := r.call(ctx, cmdAddressGetInfo, url.Values{"AddressId": {a.AddressID}})
		if err != nil {
			return nil, err
		}
		if info.CommandResponse.AddressInfo == nil {
			r.logger.Warn("address has no details", "address_id", a.AddressID)
			continue
		}
		contacts = append(contacts, toContact(*info.CommandResponse.AddressInfo, a.AddressName))
	}
	return contacts, nil
}

func toContact(a addressGetInfoResult, label string) registrar.ContactProfile {
	if label == "" {
		label = a.AddressName
	}
	return registrar.ContactProfile{
		Label:         label,
		FirstName:     strings.TrimSpace(a.FirstName),
		LastName:      strings.TrimSpace(a.LastName),
		Organization:  strings.TrimSpace(a.Organization),
		Address1:      strings.TrimSpace(a.Address1),
		Address2:      strings.TrimSpace(a.Address2),
		City:          strings.TrimSpace(a.City),
		StateProvince: strings.TrimSpace(a.StateProvince),
		PostalCode:    strings.TrimSpace(a.Zip),
		Country:       strings.TrimSpace(a.Country),
		Phone:         strings.TrimSpace(a.Phone),
		Email:         strings.TrimSpace(a.EmailAddress),
	}
}

// call sends a command with the global auth parameters and decodes the envelope
func (r *Registrar) call(ctx context.Context, command string, params url.Values) (*apiResponse, error) {
	form := url.Values{
		"ApiUser":  {r.cfg.APIUser},
		"ApiKey":   {r.cfg.APIKey},
		"UserName": {r.cfg.Username},
		"ClientIp": {r.cfg.ClientIP},
		"Command":  {command},
	}
	for k, vs := range params {
		form[k] = vs
	}

	var (
		body []byte
		err  error
	)
	// Contact fields make create too long for a query string
	if command == cmdCreate {
		body, err = r.http.PostForm(ctx, r.cfg.Endpoint, form)
	} else {
		body, err = r.http.Get(ctx, r.cfg.Endpoint, form)
	}
	if err != nil && len(body) == 0 {
		return nil, fmt.Errorf("%s: %w", command, err)
	}

	resp, perr := parseResponse(body)
	if perr != nil {
		if err != nil {
			return nil, fmt.Errorf("%s: %w", command, err)
		}
		return nil, fmt.Errorf("%s: %w", command, perr)
	}
	if apiErr := resp.err(command); apiErr != nil {
		return nil, apiErr
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	return resp, nil
}

func parseResponse(body []byte) (*apiResponse, error) {
	var resp apiResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding XML: %v", registrar.ErrUnexpected, err)
	}
	return &resp, nil
}

// err returns the envelope's failure, if any
func (a *apiResponse) err(command string) error {
	if strings.EqualFold(a.Status, "OK") {
		return nil
	}
	if len(a.Errors) > 0 {
		e := a.Errors[0]
		return &registrar.APIError{
			Backend: Name,
			Command: command,
			Code:    e.Number,
			Message: strings.TrimSpace(e.Message),
		}
	}
	return &registrar.APIError{
		Backend: Name,
		Command: command,
		Message: fmt.Sprintf("status %q without error details", a.Status),
	}
}

// splitDomain splits at the first dot: "example.co.uk" gives SLD "example", TLD "co.uk"
func splitDomain(domain string) (sld, tld string, err error) {
	sld, tld, ok := strings.Cut(domain, ".")
	if !ok || sld == "" || tld == "" {
		return "", "", fmt.Errorf("cannot split %q into SLD and TLD", domain)
	}
	return sld, tld, nil
}
