package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pendergraft/sitelaunch/internal/logging"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if url == "" {
		return nil, errors.New("history postgres_url is not set")
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id UUID PRIMARY KEY,
		domain TEXT NOT NULL,
		registrar TEXT NOT NULL,
		panel TEXT NOT NULL,
		status TEXT NOT NULL,
		failed_stage TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_domain ON runs(domain);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Debug("history migrations complete", "backend", "postgres")
	return nil
}

// Start implements Store
func (s *PostgresStore) Start(ctx context.Context, run *Run) error {
	prepareRun(run)
	query := `
		INSERT INTO runs (id, domain, registrar, panel, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query, run.ID, run.Domain, run.Registrar, run.Panel, string(run.Status), run.StartedAt)
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// Finish implements Store
func (s *PostgresStore) Finish(ctx context.Context, id string, status Status, failedStage, errMsg string, finishedAt time.Time) error {
	query := `UPDATE runs SET status = $1, failed_stage = $2, error = $3, finished_at = $4 WHERE id = $5`
	res, err := s.db.ExecContext(ctx, query, string(status), failedStage, errMsg, finishedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get implements Store
func (s *PostgresStore) Get(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, domain, registrar, panel, status, failed_stage, error, started_at, finished_at
		FROM runs
		WHERE id = $1
	`
	run, err := scanPostgresRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// List implements Store
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, domain, registrar, panel, status, failed_stage, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanPostgresRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanPostgresRun(row rowScanner) (*Run, error) {
	var run Run
	var status string
	var finished sql.NullTime
	err := row.Scan(&run.ID, &run.Domain, &run.Registrar, &run.Panel, &status, &run.FailedStage, &run.Error, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	run.Status = Status(status)
	run.StartedAt = run.StartedAt.UTC()
	if finished.Valid {
		run.FinishedAt = finished.Time.UTC()
	}
	return &run, nil
}
