// Package notify sends a run summary e-mail once provisioning finishes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mrz1836/postmark"

	"github.com/pendergraft/sitelaunch/internal/validation"
)

// Common notify errors
var (
	ErrInvalidConfig = errors.New("invalid notify configuration")
	ErrSendFailed    = errors.New("failed to send notification")
)

// Stage is one line of the summary
type Stage struct {
	Name     string
	Status   string
	Duration time.Duration
}

// Summary describes a finished run. It never carries credentials.
type Summary struct {
	RunID       string
	Domain      string
	Registrar   string
	Panel       string
	Succeeded   bool
	FailedStage string
	Error       string
	WebRoot     string
	Database    string
	RecordFile  string
	Stages      []Stage
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Notifier delivers a summary to a recipient
type Notifier interface {
	Notify(ctx context.Context, to string, s Summary) error
}

// Nop drops every notification
type Nop struct{}

// Notify implements Notifier
func (Nop) Notify(context.Context, string, Summary) error { return nil }

// EmailSender is the subset of the Postmark client used here
type EmailSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Config holds Postmark settings
type Config struct {
	ServerToken  string
	AccountToken string
	From         string
}

// Postmark sends summaries through the Postmark transactional API
type Postmark struct {
	client EmailSender
	from   string
}

// NewPostmark creates a Postmark-backed notifier
func NewPostmark(cfg Config) (*Postmark, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if err := validation.ValidateEmail(cfg.From); err != nil {
		return nil, fmt.Errorf("%w: sender: %v", ErrInvalidConfig, err)
	}
	return NewPostmarkWithClient(postmark.NewClient(cfg.ServerToken, cfg.AccountToken), cfg.From), nil
}

// NewPostmarkWithClient wraps an existing client
func NewPostmarkWithClient(client EmailSender, from string) *Postmark {
	return &Postmark{client: client, from: from}
}

// Notify implements Notifier
func (p *Postmark) Notify(ctx context.Context, to string, s Summary) error {
	if err := validation.ValidateEmail(to); err != nil {
		return fmt.Errorf("%w: recipient: %v", ErrSendFailed, err)
	}

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:     p.from,
		To:       to,
		Subject:  Subject(s),
		Tag:      "sitelaunch",
		TextBody: Body(s),
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

// Subject returns the e-mail subject for s
func Subject(s Summary) string {
	if s.Succeeded {
		return fmt.Sprintf("[sitelaunch] %s is live", s.Domain)
	}
	return fmt.Sprintf("[sitelaunch] %s failed at %s", s.Domain, s.FailedStage)
}

// Body renders the plain-text summary
func Body(s Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Domain:    %s\n", s.Domain)
	fmt.Fprintf(&b, "Run:       %s\n", s.RunID)
	fmt.Fprintf(&b, "Registrar: %s\n", s.Registrar)
	fmt.Fprintf(&b, "Panel:     %s\n", s.Panel)
	if s.Succeeded {
		b.WriteString("Result:    succeeded\n")
	} else {
		fmt.Fprintf(&b, "Result:    failed at %s\n", s.FailedStage)
		fmt.Fprintf(&b, "Error:     %s\n", s.Error)
	}
	if s.WebRoot != "" {
		fmt.Fprintf(&b, "Web root:  %s\n", s.WebRoot)
	}
	if s.Database != "" {
		fmt.Fprintf(&b, "Database:  %s\n", s.Database)
	}
	if s.RecordFile != "" {
		fmt.Fprintf(&b, "Record:    %s\n", s.RecordFile)
	}
	if !s.FinishedAt.IsZero() && !s.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Duration:  %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	}

	if len(s.Stages) > 0 {
		b.WriteString("\nStages:\n")
		for _, st := range s.Stages {
			fmt.Fprintf(&b, "  %-10s %-8s %s\n", st.Name, st.Status, st.Duration.Round(time.Millisecond))
		}
	}
	return b.String()
}
