package registrar

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/sitelaunch/internal/logging"
	"github.com/pendergraft/sitelaunch/internal/prompt"
)

type fakeRegistrar struct {
	owned        bool
	ownedErr     error
	availability Availability
	contacts     []ContactProfile
	contactsErr  error

	availabilityCalls int
}

func (f *fakeRegistrar) Name() string { return "fake" }

func (f *fakeRegistrar) CheckAvailability(ctx context.Context, domain string) Availability {
	f.availabilityCalls++
	return f.availability
}

func (f *fakeRegistrar) IsOwnedByCaller(ctx context.Context, domain string) (bool, error) {
	return f.owned, f.ownedErr
}

func (f *fakeRegistrar) Purchase(ctx context.Context, domain string, contact ContactProfile) (*Registration, error) {
	return &Registration{Domain: domain}, nil
}

func (f *fakeRegistrar) ConfigureDNS(ctx context.Context, domain, serverIP string) error {
	return nil
}

func (f *fakeRegistrar) RequiresContact() bool { return true }

func (f *fakeRegistrar) ListContacts(ctx context.Context) ([]ContactProfile, error) {
	return f.contacts, f.contactsErr
}

func completeContact(label string) ContactProfile {
	return ContactProfile{
		Label:         label,
		FirstName:     "Jane",
		LastName:      "Doe",
		Address1:      "1 Main St",
		City:          "Springfield",
		StateProvince: "IL",
		PostalCode:    "62701",
		Country:       "US",
		Phone:         "+1.5555550100",
		Email:         "jane@example.net",
	}
}

func TestSiteRecords(t *testing.T) {
	records := SiteRecords("example.com", "203.0.113.5")
	require.Len(t, records, 2)
	assert.Equal(t, Record{Host: "@", Type: "A", Value: "203.0.113.5", TTL: DefaultTTL}, records[0])
	assert.Equal(t, Record{Host: "www", Type: "CNAME", Value: "example.com", TTL: DefaultTTL}, records[1])
}

func TestAvailabilityErr(t *testing.T) {
	assert.NoError(t, Availability{Status: Available}.Err())
	assert.ErrorIs(t, Availability{Status: Unavailable}.Err(), ErrNotAvailable)

	err := Availability{Status: Indeterminate, Message: "no result for example.com"}.Err()
	assert.ErrorIs(t, err, ErrIndeterminate)
	assert.Contains(t, err.Error(), "no result for example.com")

	assert.Equal(t, Indeterminate, IndeterminateBecause(errors.New("boom")).Status)
}

func TestPrecheck(t *testing.T) {
	ctx := context.Background()

	t.Run("owned skips availability", func(t *testing.T) {
		f := &fakeRegistrar{owned: true, availability: Availability{Status: Unavailable}}
		owned, err := Precheck(ctx, f, "example.com")
		require.NoError(t, err)
		assert.True(t, owned)
		assert.Equal(t, 0, f.availabilityCalls)
	})

	t.Run("available", func(t *testing.T) {
		f := &fakeRegistrar{availability: Availability{Status: Available}}
		owned, err := Precheck(ctx, f, "example.com")
		require.NoError(t, err)
		assert.False(t, owned)
		assert.Equal(t, 1, f.availabilityCalls)
	})

	t.Run("taken", func(t *testing.T) {
		f := &fakeRegistrar{availability: Availability{Status: Unavailable}}
		_, err := Precheck(ctx, f, "example.com")
		assert.ErrorIs(t, err, ErrNotAvailable)
	})

	t.Run("indeterminate is a failure", func(t *testing.T) {
		f := &fakeRegistrar{availability: Availability{Status: Indeterminate, Message: "parse error"}}
		_, err := Precheck(ctx, f, "example.com")
		assert.ErrorIs(t, err, ErrIndeterminate)
	})

	t.Run("ownership error", func(t *testing.T) {
		f := &fakeRegistrar{ownedErr: &APIError{Backend: "fake", Command: "list", Message: "API key invalid"}}
		_, err := Precheck(ctx, f, "example.com")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "API key invalid", apiErr.Message)
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeRegistrar{})

	got, err := r.Get("fake")
	require.NoError(t, err)
	assert.Equal(t, "fake", got.Name())

	_, err = r.Get("godaddy")
	assert.ErrorIs(t, err, ErrUnknownRegistrar)
	assert.Equal(t, []string{"fake"}, r.Names())
}

func TestContactComplete(t *testing.T) {
	c := completeContact("home")
	assert.True(t, c.Complete())

	c.Address2 = ""
	c.Organization = ""
	assert.True(t, c.Complete(), "optional fields may be empty")

	c.City = " "
	assert.False(t, c.Complete())
	assert.Equal(t, []string{"city"}, c.Missing())
}

func TestSelectContact(t *testing.T) {
	ctx := context.Background()
	logger := logging.Discard()

	t.Run("filters incomplete and falls back on email", func(t *testing.T) {
		noEmail := completeContact("office")
		noEmail.Email = ""
		noPhone := completeContact("broken")
		noPhone.Phone = ""

		f := &fakeRegistrar{contacts: []ContactProfile{noPhone, noEmail}}
		p := prompt.NewScripted("2")
		configured := completeContact("")

		got, err := SelectContact(ctx, f, &configured, "ops@example.net", p, logger)
		require.NoError(t, err)
		assert.Equal(t, "office", got.Label)
		assert.Equal(t, "ops@example.net", got.Email)
	})

	t.Run("configured profile gets a label", func(t *testing.T) {
		configured := completeContact("")
		p := prompt.NewScripted("1")

		got, err := SelectContact(ctx, &fakeRegistrar{}, &configured, "", p, logger)
		require.NoError(t, err)
		assert.Equal(t, "configured", got.Label)
	})

	t.Run("no complete profiles", func(t *testing.T) {
		incomplete := ContactProfile{FirstName: "Jane"}
		_, err := SelectContact(ctx, &fakeRegistrar{contacts: []ContactProfile{incomplete}}, nil, "ops@example.net", prompt.NewScripted(), logger)
		assert.ErrorIs(t, err, ErrNoContacts)
	})

	t.Run("lister error", func(t *testing.T) {
		f := &fakeRegistrar{contactsErr: errors.New("unauthorized")}
		_, err := SelectContact(ctx, f, nil, "", prompt.NewScripted(), logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unauthorized")
	})

	t.Run("out of range choice", func(t *testing.T) {
		configured := completeContact("")
		_, err := SelectContact(ctx, &fakeRegistrar{}, &configured, "", prompt.NewScripted("7"), logger)
		assert.ErrorIs(t, err, prompt.ErrInvalidChoice)
	})
}
