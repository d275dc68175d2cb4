package registrar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pendergraft/sitelaunch/internal/prompt"
)

// ContactProfile is a registrant postal contact
type ContactProfile struct {
	Label         string `yaml:"label,omitempty"`
	FirstName     string `yaml:"first_name"`
	LastName      string `yaml:"last_name"`
	Organization  string `yaml:"organization,omitempty"`
	Address1      string `yaml:"address1"`
	Address2      string `yaml:"address2,omitempty"`
	City          string `yaml:"city"`
	StateProvince string `yaml:"state_province"`
	PostalCode    string `yaml:"postal_code"`
	Country       string `yaml:"country"`
	Phone         string `yaml:"phone"`
	Email         string `yaml:"email"`
}

// Missing returns the names of empty required fields
func (c ContactProfile) Missing() []string {
	required := []struct {
		name  string
		value string
	}{
		{"first_name", c.FirstName},
		{"last_name", c.LastName},
		{"address1", c.Address1},
		{"city", c.City},
		{"state_province", c.StateProvince},
		{"postal_code", c.PostalCode},
		{"country", c.Country},
		{"phone", c.Phone},
		{"email", c.Email},
	}

	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Complete reports whether every required field is set
func (c ContactProfile) Complete() bool {
	return len(c.Missing()) == 0
}

// Display is the menu text for a profile
func (c ContactProfile) Display() string {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	where := strings.Join(nonEmpty(c.City, c.Country), ", ")
	if c.Label != "" {
		return fmt.Sprintf("%s: %s <%s> %s", c.Label, name, c.Email, where)
	}
	return fmt.Sprintf("%s <%s> %s", name, c.Email, where)
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// RequiresContact reports whether reg needs a contact to purchase
func RequiresContact(reg Registrar) bool {
	cr, ok := reg.(ContactRequirer)
	return ok && cr.RequiresContact()
}

// SelectContact builds the selectable set from the configured profile and
// the registrar's saved contacts, fills a missing e-mail from defaultEmail,
// drops incomplete profiles and asks the operator to choose one.
func SelectContact(ctx context.Context, reg Registrar, configured *ContactProfile, defaultEmail string, p prompt.Prompter, logger *slog.Logger) (ContactProfile, error) {
	var candidates []ContactProfile
	if configured != nil {
		c := *configured
		if c.Label == "" {
			c.Label = "configured"
		}
		candidates = append(candidates, c)
	}

	if lister, ok := reg.(ContactLister); ok {
		saved, err := lister.ListContacts(ctx)
		if err != nil {
			return ContactProfile{}, fmt.Errorf("listing %s contacts: %w", reg.Name(), err)
		}
		candidates = append(candidates, saved...)
	}

	var usable []ContactProfile
	for _, c := range candidates {
		if c.Email == "" {
			c.Email = defaultEmail
		}
		if missing := c.Missing(); len(missing) > 0 {
			logger.Debug("skipping incomplete contact profile", "profile", c.Label, "missing", strings.Join(missing, ","))
			continue
		}
		usable = append(usable, c)
	}

	if len(usable) == 0 {
		return ContactProfile{}, ErrNoContacts
	}

	options := make([]string, len(usable))
	for i, c := range usable {
		options[i] = c.Display()
	}
	idx, err := p.Choose("Select registrant contact", options)
	if err != nil {
		return ContactProfile{}, err
	}
	return usable[idx], nil
}
