// Package history records one row per provisioning run.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pendergraft/sitelaunch/internal/config"
)

// Common history errors
var (
	ErrNotFound    = errors.New("run not found")
	ErrUnknownType = errors.New("unknown history type")
)

// Status is the outcome of a run
type Status string

// Run statuses
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one invocation of the pipeline
type Run struct {
	ID          string
	Domain      string
	Registrar   string
	Panel       string
	Status      Status
	FailedStage string
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
}

// Duration returns how long a finished run took
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store persists runs
type Store interface {
	// Start inserts a running row. An empty ID is filled in.
	Start(ctx context.Context, run *Run) error
	// Finish records the outcome of a started run
	Finish(ctx context.Context, id string, status Status, failedStage, errMsg string, finishedAt time.Time) error
	Get(ctx context.Context, id string) (*Run, error)
	// List returns the most recent runs first
	List(ctx context.Context, limit int) ([]Run, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// New creates a store from configuration. Callers run Migrate before use.
func New(cfg config.HistoryConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, logger)
	case "postgres":
		return NewPostgresStore(cfg.PostgresURL, logger)
	case "none", "":
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.Type)
	}
}

// NewID generates a run ID
func NewID() string {
	return uuid.New().String()
}

func prepareRun(run *Run) {
	if run.ID == "" {
		run.ID = NewID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.StartedAt = run.StartedAt.UTC()
	run.Status = StatusRunning
}

// NopStore discards everything
type NopStore struct{}

// Start implements Store
func (NopStore) Start(_ context.Context, run *Run) error {
	prepareRun(run)
	return nil
}

// Finish implements Store
func (NopStore) Finish(context.Context, string, Status, string, string, time.Time) error {
	return nil
}

// Get implements Store
func (NopStore) Get(context.Context, string) (*Run, error) {
	return nil, ErrNotFound
}

// List implements Store
func (NopStore) List(context.Context, int) ([]Run, error) {
	return nil, nil
}

// Close implements Store
func (NopStore) Close() error { return nil }

// Migrate implements Store
func (NopStore) Migrate(context.Context) error { return nil }
