package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mrz1836/postmark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []postmark.Email
	resp postmark.EmailResponse
	err  error
}

func (f *fakeSender) SendEmail(_ context.Context, email postmark.Email) (postmark.EmailResponse, error) {
	f.sent = append(f.sent, email)
	return f.resp, f.err
}

func successSummary() Summary {
	start := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	return Summary{
		RunID:      "run-1",
		Domain:     "example.com",
		Registrar:  "namecheap",
		Panel:      "cyberpanel",
		Succeeded:  true,
		WebRoot:    "/home/example.com/public_html",
		Database:   "examplecom",
		RecordFile: "/var/lib/sitelaunch/credentials/example.com.yaml",
		Stages: []Stage{
			{Name: "domain", Status: "ok", Duration: 3 * time.Second},
			{Name: "dns", Status: "skipped"},
		},
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
	}
}

func TestNewPostmark(t *testing.T) {
	_, err := NewPostmark(Config{From: "ops@example.com"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPostmark(Config{ServerToken: "server-token", From: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewPostmark(Config{ServerToken: "server-token", From: "ops@example.com"})
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestNotifySuccess(t *testing.T) {
	sender := &fakeSender{}
	p := NewPostmarkWithClient(sender, "ops@example.com")

	require.NoError(t, p.Notify(context.Background(), "owner@example.org", successSummary()))
	require.Len(t, sender.sent, 1)

	email := sender.sent[0]
	assert.Equal(t, "ops@example.com", email.From)
	assert.Equal(t, "owner@example.org", email.To)
	assert.Equal(t, "[sitelaunch] example.com is live", email.Subject)
	assert.Equal(t, "sitelaunch", email.Tag)
	assert.Contains(t, email.TextBody, "Result:    succeeded")
	assert.Contains(t, email.TextBody, "Web root:  /home/example.com/public_html")
	assert.Contains(t, email.TextBody, "Duration:  1m30s")
	assert.Contains(t, email.TextBody, "dns")
}

func TestNotifyFailureSummary(t *testing.T) {
	s := successSummary()
	s.Succeeded = false
	s.FailedStage = "ssl"
	s.Error = "issueSSL: domain does not point to this server"

	assert.Equal(t, "[sitelaunch] example.com failed at ssl", Subject(s))
	body := Body(s)
	assert.Contains(t, body, "Result:    failed at ssl")
	assert.Contains(t, body, "Error:     issueSSL: domain does not point to this server")
}

func TestNotifyErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("transport error", func(t *testing.T) {
		p := NewPostmarkWithClient(&fakeSender{err: errors.New("connection refused")}, "ops@example.com")
		err := p.Notify(ctx, "owner@example.org", successSummary())
		assert.ErrorIs(t, err, ErrSendFailed)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("postmark rejection", func(t *testing.T) {
		sender := &fakeSender{resp: postmark.EmailResponse{ErrorCode: 406, Message: "inactive recipient"}}
		p := NewPostmarkWithClient(sender, "ops@example.com")
		err := p.Notify(ctx, "owner@example.org", successSummary())
		assert.ErrorIs(t, err, ErrSendFailed)
		assert.Contains(t, err.Error(), "406 - inactive recipient")
	})

	t.Run("bad recipient", func(t *testing.T) {
		sender := &fakeSender{}
		p := NewPostmarkWithClient(sender, "ops@example.com")
		err := p.Notify(ctx, "nobody", successSummary())
		assert.ErrorIs(t, err, ErrSendFailed)
		assert.Empty(t, sender.sent)
	})
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Notify(context.Background(), "", Summary{}))
}
