// Package ledger archives finished runs in PostgreSQL. The JSON output file
// stays the primary artifact; the ledger is an optional queryable copy.
package ledger

import (
	"context"
	"time"
)

type Run struct {
	ID         string
	Style      string
	Endpoint   string
	Model      string
	InputPath  string
	OutputPath string
	StartedAt  time.Time
	FinishedAt time.Time
	CreatedAt  time.Time
}

type Entry struct {
	Position  int
	Prompt    string
	Response  string
	Outcome   string // "success" or an error kind
	Timestamp string
}

type Store interface {
	EnsureSchema(ctx context.Context) error
	SaveRun(ctx context.Context, run *Run, entries []Entry) error
}
