// Package dynadot implements the registrar adapter for the Dynadot api3.json API.
package dynadot

import (
	"context"
	"encoding/json"
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
const Name = "dynadot"

// dynadotDNS is the name-server type reported once a domain uses Dynadot's own DNS
const dynadotDNS = "Dynadot DNS"

// Config holds the account key and endpoint
type Config struct {
	APIKey      string
	Endpoint    string
	Nameservers []string
	Years       int
}

// Registrar talks to Dynadot
type Registrar struct {
	cfg    Config
	http   *transport.HTTPClient
	logger *slog.Logger
}

// New creates a Dynadot adapter
func New(cfg Config, httpClient *transport.HTTPClient, logger *slog.Logger) *Registrar {
	if cfg.Years <= 0 {
		cfg.Years = 1
	}
	if len(cfg.Nameservers) == 0 {
		cfg.Nameservers = []string{"ns1.dyna-ns.net", "ns2.dyna-ns.net"}
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

// CheckAvailability implements registrar.Registrar
func (r *Registrar) CheckAvailability(ctx context.Context, domain string) registrar.Availability {
	var resp searchResponse
	if err := r.call(ctx, "search", url.Values{"domain0": {domain}}, &resp); err != nil {
		return registrar.IndeterminateBecause(err)
	}

	for _, res := range resp.SearchResults {
		if !strings.EqualFold(res.DomainName, domain) {
			continue
		}
		switch strings.ToLower(res.Available) {
		case "yes":
			return registrar.Availability{Status: registrar.Available}
		case "no":
			return registrar.Availability{Status: registrar.Unavailable, Message: domain + " is already registered"}
		default:
			return registrar.Availability{Status: registrar.Indeterminate, Message: fmt.Sprintf("Available=%q status=%q", res.Available, res.Status)}
		}
	}
	return registrar.IndeterminateBecause(fmt.Errorf("%w: %s", registrar.ErrDomainNotInResult, domain))
}

// IsOwnedByCaller implements registrar.Registrar
func (r *Registrar) IsOwnedByCaller(ctx context.Context, domain string) (bool, error) {
	var resp listDomainResponse
	if err := r.call(ctx, "list_domain", nil, &resp); err != nil {
		return false, err
	}
	for _, d := range resp.MainDomains {
		if strings.EqualFold(d.Name, domain) {
			return true, nil
		}
	}
	return false, nil
}

// Purchase implements registrar.Registrar. Dynadot uses the account's
// default contact, so the profile argument is ignored.
func (r *Registrar) Purchase(ctx context.Context, domain string, _ registrar.ContactProfile) (*registrar.Registration, error) {
	owned, err := registrar.Precheck(ctx, r, domain)
	if err != nil {
		return nil, err
	}
	if owned {
		r.logger.Info("domain already in account", "domain", domain)
		return &registrar.Registration{Domain: domain, AlreadyOwned: true}, nil
	}

	var resp registerResponse
	err = r.call(ctx, "register", url.Values{
		"domain":   {domain},
		"duration": {strconv.Itoa(r.cfg.Years)},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.DomainName, domain) {
		return nil, fmt.Errorf("%w: %s in register (got %q)", registrar.ErrDomainNotInResult, domain, resp.DomainName)
	}

	r.logger.Info("domain registered", "domain", domain, "expiration", resp.Expiration.String())
	return &registrar.Registration{Domain: domain}, nil
}

// ConfigureDNS implements registrar.Registrar. The baseline is Dynadot's own
// name servers; set_dns2 then replaces the records, and domain_info confirms
// the domain is served by Dynadot DNS.
func (r *Registrar) ConfigureDNS(ctx context.Context, domain, serverIP string) error {
	ns := url.Values{"domain": {domain}}
	for i, host := range r.cfg.Nameservers {
		ns.Set("ns"+strconv.Itoa(i), host)
	}
	if err := r.call(ctx, "set_ns", ns, nil); err != nil {
		return err
	}
	r.logger.Debug("name servers set", "domain", domain, "nameservers", strings.Join(r.cfg.Nameservers, ","))

	if err := r.call(ctx, "set_dns2", dnsParams(domain, serverIP), nil); err != nil {
		return err
	}

	var info domainInfoResponse
	if err := r.call(ctx, "domain_info", url.Values{"domain": {domain}}, &info); err != nil {
		return err
	}
	if !strings.EqualFold(info.DomainInfo.Name, domain) {
		return fmt.Errorf("%w: %s in domain_info (got %q)", registrar.ErrDomainNotInResult, domain, info.DomainInfo.Name)
	}
	if got := info.DomainInfo.NameServerSettings.Type; got != dynadotDNS {
		return fmt.Errorf("%w: %s name server type is %q, want %q", registrar.ErrUnexpected, domain, got, dynadotDNS)
	}
	return nil
}

// dnsParams encodes SiteRecords as set_dns2 main (apex) and sub records
func dnsParams(domain, serverIP string) url.Values {
	params := url.Values{"domain": {domain}}
	apex, sub := 0, 0
	for _, rec := range registrar.SiteRecords(domain, serverIP) {
		if rec.Host == "@" {
			n := strconv.Itoa(apex)
			params.Set("main_record_type"+n, strings.ToLower(rec.Type))
			params.Set("main_record"+n, rec.Value)
			apex++
			continue
		}
		n := strconv.Itoa(sub)
		params.Set("subdomain"+n, rec.Host)
		params.Set("sub_record_type"+n, strings.ToLower(rec.Type))
		params.Set("sub_record"+n, rec.Value)
		sub++
	}
	params.Set("ttl", strconv.Itoa(registrar.DefaultTTL))
	return params
}

// call issues a command and decodes the "<Command>Response" object into out
func (r *Registrar) call(ctx context.Context, command string, params url.Values, out any) error {
	q := url.Values{
		"key":     {r.cfg.APIKey},
		"command": {command},
	}
	for k, vs := range params {
		q[k] = vs
	}

	body, err := r.http.Get(ctx, r.cfg.Endpoint, q)
	if err != nil && len(body) == 0 {
		return fmt.Errorf("%s: %w", command, err)
	}

	payload, hdr, perr := decodeEnvelope(body)
	if perr != nil {
		if err != nil {
			return fmt.Errorf("%s: %w", command, err)
		}
		return fmt.Errorf("%s: %w", command, perr)
	}
	if string(hdr.ResponseCode) != "0" || strings.EqualFold(hdr.Status, "error") {
		msg := hdr.Error
		if msg == "" {
			msg = fmt.Sprintf("response code %s status %q", hdr.ResponseCode, hdr.Status)
		}
		return &registrar.APIError{Backend: Name, Command: command, Code: string(hdr.ResponseCode), Message: msg}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%s: %w: %v", command, registrar.ErrUnexpected, err)
		}
	}
	return nil
}

// decodeEnvelope finds the single "...Response" object of a reply
func decodeEnvelope(body []byte) (json.RawMessage, *header, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, nil, fmt.Errorf("%w: decoding JSON: %v", registrar.ErrUnexpected, err)
	}

	var payload json.RawMessage
	for k, v := range top {
		if strings.HasSuffix(k, "Response") {
			if payload != nil {
				return nil, nil, fmt.Errorf("%w: more than one response object", registrar.ErrUnexpected)
			}
			payload = v
		}
	}
	if payload == nil {
		return nil, nil, fmt.Errorf("%w: no response object", registrar.ErrUnexpected)
	}

	var hdr header
	if err := json.Unmarshal(payload, &hdr); err != nil {
		return nil, nil, fmt.Errorf("%w: decoding response header: %v", registrar.ErrUnexpected, err)
	}
	if hdr.ResponseCode == "" {
		return nil, nil, fmt.Errorf("%w: missing ResponseCode", registrar.ErrUnexpected)
	}
	return payload, &hdr, nil
}
