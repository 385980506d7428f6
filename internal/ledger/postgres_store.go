package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

const schema = `
	CREATE TABLE IF NOT EXISTS batch_runs (
		id          UUID PRIMARY KEY,
		style       TEXT NOT NULL,
		endpoint    TEXT NOT NULL,
		model       TEXT NOT NULL,
		input_path  TEXT NOT NULL,
		output_path TEXT NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS batch_records (
		run_id    UUID NOT NULL REFERENCES batch_runs(id) ON DELETE CASCADE,
		position  INT NOT NULL,
		prompt    TEXT NOT NULL,
		response  TEXT NOT NULL,
		outcome   TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		PRIMARY KEY (run_id, position)
	)
`

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return nil
}

// SaveRun writes the run and all of its records in one transaction, so a
// failed insert leaves nothing behind.
func (s *PostgresStore) SaveRun(ctx context.Context, run *Run, entries []Entry) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := `
		INSERT INTO batch_runs (id, style, endpoint, model, input_path, output_path, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, query,
		run.ID, run.Style, run.Endpoint, run.Model,
		run.InputPath, run.OutputPath, run.StartedAt, run.FinishedAt,
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	insert := `
		INSERT INTO batch_records (run_id, position, prompt, response, outcome, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	b := &pgx.Batch{}
	for _, e := range entries {
		b.Queue(insert, run.ID, e.Position, e.Prompt, e.Response, e.Outcome, e.Timestamp)
	}

	br := tx.SendBatch(ctx, b)
	for _, e := range entries {
		if _, err = br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to insert record %d: %w", e.Position, err)
		}
	}
	if err = br.Close(); err != nil {
		return fmt.Errorf("failed to insert records: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}
