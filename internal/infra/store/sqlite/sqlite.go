// Package sqlite implements ports.RunStore on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/infra/wire"
	"github.com/Salako07/WKL/internal/ports"

	_ "modernc.org/sqlite"
)

var _ ports.RunStore = (*Store)(nil)

// Store persists terminal runs as JSON documents.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveRun inserts or replaces the stored run.
func (s *Store) SaveRun(ctx context.Context, run execution.Run) error {
	document, err := json.Marshal(wire.FromRun(run))
	if err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}

	var endedAt any
	if !run.EndedAt.IsZero() {
		endedAt = run.EndedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, environment, state, owner, correlation_token, created_at, ended_at, document)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			ended_at = excluded.ended_at,
			document = excluded.document`,
		run.ID,
		string(run.Submission.EnvironmentID),
		string(run.State),
		run.Submission.Owner,
		run.Submission.CorrelationToken,
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
		endedAt,
		string(document),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

// LoadRun returns the stored run or ports.ErrRunNotStored.
func (s *Store) LoadRun(ctx context.Context, id string) (execution.Run, error) {
	var document string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM runs WHERE id = ?`, id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return execution.Run{}, fmt.Errorf("%w: %s", ports.ErrRunNotStored, id)
	}
	if err != nil {
		return execution.Run{}, fmt.Errorf("querying run %s: %w", id, err)
	}

	var doc wire.Run
	if err := json.Unmarshal([]byte(document), &doc); err != nil {
		return execution.Run{}, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return doc.ToRun(), nil
}

// ListRunsByOwner returns the most recently finished runs of owner.
func (s *Store) ListRunsByOwner(ctx context.Context, owner string, limit int) ([]execution.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT document FROM runs WHERE owner = ?
		ORDER BY ended_at DESC LIMIT ?`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []execution.Run
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		var doc wire.Run
		if err := json.Unmarshal([]byte(document), &doc); err != nil {
			return nil, fmt.Errorf("decoding run: %w", err)
		}
		runs = append(runs, doc.ToRun())
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
