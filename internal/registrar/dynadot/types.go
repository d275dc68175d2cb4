package dynadot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// responseCode accepts both "0" and 0; the API is inconsistent across commands
type responseCode string

func (c *responseCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = responseCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("response code %s: %w", string(b), err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("response code %s: %w", string(b), err)
	}
	*c = responseCode(n.String())
	return nil
}

// header is the part shared by every "<Command>Response" object
type header struct {
	ResponseCode responseCode `json:"ResponseCode"`
	Status       string       `json:"Status"`
	Error        string       `json:"Error"`
}

type searchResponse struct {
	SearchResults []searchResult `json:"SearchResults"`
}

type searchResult struct {
	DomainName string `json:"DomainName"`
	Available  string `json:"Available"`
	Status     string `json:"Status"`
}

type listDomainResponse struct {
	MainDomains []listedDomain `json:"MainDomains"`
}

type listedDomain struct {
	Name string `json:"Name"`
}

type registerResponse struct {
	DomainName string `json:"DomainName"`
	// Expiration is epoch milliseconds, sent either quoted or bare
	Expiration json.Number `json:"Expiration"`
}

type domainInfoResponse struct {
	DomainInfo struct {
		Name               string `json:"Name"`
		NameServerSettings struct {
			Type string `json:"Type"`
		} `json:"NameServerSettings"`
	} `json:"DomainInfo"`
}
