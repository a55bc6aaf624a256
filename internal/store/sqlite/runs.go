// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

// Package sqlite implements the run audit store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/store"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

var _ store.RunStore = (*RunStore)(nil)

// RunStore implements store.RunStore backed by SQLite.
type RunStore struct {
	db *sql.DB
}

// NewRunStore opens (or creates) a SQLite database at dbPath and
// initialises the runs and tool_executions tables.
func NewRunStore(dbPath string) (*RunStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, aoserr.Wrapf(err, aoserr.CodeStoreDatabaseFailure, "creating directory for %s", dbPath)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, aoserr.Wrap(err, aoserr.CodeStoreDatabaseFailure, "opening sqlite db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, aoserr.Wrap(err, aoserr.CodeStoreDatabaseFailure, "pinging sqlite db")
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, aoserr.Wrap(err, aoserr.CodeStoreDatabaseFailure, "migrating sqlite db")
	}

	return &RunStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	allowed       INTEGER NOT NULL,
	block_reason  TEXT NOT NULL DEFAULT '',
	user_message  TEXT NOT NULL DEFAULT '',
	response_text TEXT NOT NULL DEFAULT '',
	rounds        INTEGER NOT NULL DEFAULT 0,
	turn_count    INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'active',
	error         TEXT NOT NULL DEFAULT '',
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, created_at);

CREATE TABLE IF NOT EXISTS tool_executions (
	run_id       TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	tool_call_id TEXT NOT NULL,
	tool_name    TEXT NOT NULL,
	server_name  TEXT NOT NULL,
	input        TEXT NOT NULL DEFAULT '',
	output       TEXT NOT NULL DEFAULT '',
	is_error     INTEGER NOT NULL DEFAULT 0,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, seq),
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

func (s *RunStore) RecordRun(ctx context.Context, run *store.RunRecord) error {
	if err := run.Prepare(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return aoserr.Wrap(err, aoserr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO runs (id, session_id, model, allowed, block_reason, user_message, response_text,
rounds, turn_count, status, error, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, q,
		run.ID,
		run.SessionID,
		run.Model,
		run.Allowed,
		run.BlockReason,
		run.UserMessage,
		run.ResponseText,
		run.Rounds,
		run.TurnCount,
		string(run.Status),
		run.Error,
		run.DurationMs,
		formatTime(run.CreatedAt),
	)
	if err != nil {
		return aoserr.Wrapf(err, aoserr.CodeStoreDatabaseFailure, "inserting run %s", run.ID)
	}

	const qt = `INSERT INTO tool_executions (run_id, seq, tool_call_id, tool_name, server_name, input, output, is_error, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for i, rec := range run.ToolExecutions {
		if _, err := tx.ExecContext(ctx, qt,
			run.ID, i, rec.ToolCallID, rec.ToolName, rec.ServerName,
			string(rec.Input), rec.Output, rec.IsError, rec.DurationMs,
		); err != nil {
			return aoserr.Wrapf(err, aoserr.CodeStoreDatabaseFailure, "inserting tool execution %s", rec.ToolCallID)
		}
	}

	if err := tx.Commit(); err != nil {
		return aoserr.Wrap(err, aoserr.CodeStoreDatabaseFailure, "committing run")
	}
	return nil
}

func (s *RunStore) ListRuns(ctx context.Context, sessionID string, limit int) ([]*store.RunRecord, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	const q = `SELECT id, session_id, model, allowed, block_reason, user_message, response_text,
rounds, turn_count, status, error, duration_ms, created_at
FROM runs WHERE session_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, aoserr.Wrapf(err, aoserr.CodeStoreDatabaseFailure, "listing runs for session %s", sessionID)
	}
	defer rows.Close()

	var runs []*store.RunRecord
	for rows.Next() {
		var r store.RunRecord
		var status, createdAt string
		if err := rows.Scan(
			&r.ID,
			&r.SessionID,
			&r.Model,
			&r.Allowed,
			&r.BlockReason,
			&r.UserMessage,
			&r.ResponseText,
			&r.Rounds,
			&r.TurnCount,
			&status,
			&r.Error,
			&r.DurationMs,
			&createdAt,
		); err != nil {
			return nil, aoserr.Wrap(err, aoserr.CodeStoreDatabaseFailure, "scanning run row")
		}
		r.Status = types.SessionStatus(status)
		r.CreatedAt = parseTime(createdAt)
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, aoserr.Wrap(err, aoserr.CodeStoreDatabaseFailure, "iterating runs")
	}

	for _, r := range runs {
		if r.ToolExecutions, err = s.toolExecutions(ctx, r.ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *RunStore) toolExecutions(ctx context.Context, runID string) ([]types.ToolUseRecord, error) {
	const q = `SELECT tool_call_id, tool_name, server_name, input, output, is_error, duration_ms
FROM tool_executions WHERE run_id = ? ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, aoserr.Wrapf(err, aoserr.CodeStoreDatabaseFailure, "loading tool executions for run %s", runID)
	}
	defer rows.Close()

	var out []types.ToolUseRecord
	for rows.Next() {
		var rec types.ToolUseRecord
		var input string
		if err := rows.Scan(&rec.ToolCallID, &rec.ToolName, &rec.ServerName, &input, &rec.Output, &rec.IsError, &rec.DurationMs); err != nil {
			return nil, aoserr.Wrap(err, aoserr.CodeStoreDatabaseFailure, "scanning tool execution row")
		}
		if input != "" {
			rec.Input = []byte(input)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime serialises a time for storage.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}
