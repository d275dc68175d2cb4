package namecheap

import "encoding/xml"

// apiResponse is the envelope of every Namecheap XML API reply
type apiResponse struct {
	XMLName          xml.Name        `xml:"ApiResponse"`
	Status           string          `xml:"Status,attr"`
	Errors           []apiError      `xml:"Errors>Error"`
	RequestedCommand string          `xml:"RequestedCommand"`
	CommandResponse  commandResponse `xml:"CommandResponse"`
}

type apiError struct {
	Number  string `xml:"Number,attr"`
	Message string `xml:",chardata"`
}

type commandResponse struct {
	Type string `xml:"Type,attr"`

	DomainCheckResults []domainCheckResult   `xml:"DomainCheckResult"`
	DomainGetList      *domainGetListResult  `xml:"DomainGetListResult"`
	DomainCreate       []domainCreateResult  `xml:"DomainCreateResult"`
	DNSSetDefault      []dnsSetDefaultResult `xml:"DomainDNSSetDefaultResult"`
	DNSSetHosts        []dnsSetHostsResult   `xml:"DomainDNSSetHostsResult"`
	AddressGetList     *addressGetListResult `xml:"AddressGetListResult"`
	AddressInfo        *addressGetInfoResult `xml:"GetAddressInfoResult"`
}

type domainCheckResult struct {
	Domain      string `xml:"Domain,attr"`
	Available   string `xml:"Available,attr"`
	ErrorNo     string `xml:"ErrorNo,attr"`
	Description string `xml:"Description,attr"`
	IsPremium   string `xml:"IsPremiumName,attr"`
}

type domainGetListResult struct {
	Domains []listedDomain `xml:"Domain"`
}

type listedDomain struct {
	ID        string `xml:"ID,attr"`
	Name      string `xml:"Name,attr"`
	User      string `xml:"User,attr"`
	IsExpired string `xml:"IsExpired,attr"`
	IsLocked  string `xml:"IsLocked,attr"`
}

type domainCreateResult struct {
	Domain           string `xml:"Domain,attr"`
	Registered       string `xml:"Registered,attr"`
	DomainID         string `xml:"DomainID,attr"`
	OrderID          string `xml:"OrderID,attr"`
	TransactionID    string `xml:"TransactionID,attr"`
	ChargedAmount    string `xml:"ChargedAmount,attr"`
	WhoisguardEnable string `xml:"WhoisguardEnable,attr"`
}

type dnsSetDefaultResult struct {
	Domain  string `xml:"Domain,attr"`
	Updated string `xml:"Updated,attr"`
}

type dnsSetHostsResult struct {
	Domain    string `xml:"Domain,attr"`
	IsSuccess string `xml:"IsSuccess,attr"`
}

type addressGetListResult struct {
	Addresses []addressSummary `xml:"List"`
}

type addressSummary struct {
	AddressID   string `xml:"AddressId,attr"`
	AddressName string `xml:"AddressName,attr"`
	IsDefault   string `xml:"IsDefault,attr"`
}

type addressGetInfoResult struct {
	AddressID     string `xml:"AddressId"`
	AddressName   string `xml:"AddressName"`
	EmailAddress  string `xml:"EmailAddress"`
	FirstName     string `xml:"FirstName"`
	LastName      string `xml:"LastName"`
	Organization  string `xml:"Organization"`
	Address1      string `xml:"Address1"`
	Address2      string `xml:"Address2"`
	City          string `xml:"City"`
	StateProvince string `xml:"StateProvince"`
	Zip           string `xml:"Zip"`
	Country       string `xml:"Country"`
	Phone         string `xml:"Phone"`
}

// isTrue reports a Namecheap boolean attribute
func isTrue(v string) bool {
	switch v {
	case "true", "True", "TRUE", "1", "yes":
		return true
	}
	return false
}
