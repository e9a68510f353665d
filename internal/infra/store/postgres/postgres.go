// Package postgres implements ports.RunStore on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/infra/wire"
	"github.com/Salako07/WKL/internal/ports"
)

const pingTimeout = 10 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id                TEXT PRIMARY KEY,
    environment       TEXT NOT NULL,
    state             TEXT NOT NULL,
    owner             TEXT NOT NULL DEFAULT '',
    correlation_token TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL,
    ended_at          TIMESTAMPTZ,
    document          JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_owner ON runs(owner, ended_at DESC);
`

var _ ports.RunStore = (*Store)(nil)

// Store persists terminal runs in a runs table.
type Store struct {
	pool *pgxpool.Pool
	log  *zerolog.Logger
}

// Open connects to dsn, verifies the connection and ensures the schema.
func Open(ctx context.Context, dsn string, log *zerolog.Logger) (*Store, error) {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = "codexec"
	cfg.ConnConfig.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialer := &net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}
		return dialer.DialContext(ctx, network, addr)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info().Msg("database connection established")
	return &Store{pool: pool, log: log}, nil
}

// SaveRun inserts or replaces the stored run.
func (s *Store) SaveRun(ctx context.Context, run execution.Run) error {
	document, err := json.Marshal(wire.FromRun(run))
	if err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}

	var endedAt *time.Time
	if !run.EndedAt.IsZero() {
		ended := run.EndedAt.UTC()
		endedAt = &ended
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (id, environment, state, owner, correlation_token, created_at, ended_at, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			ended_at = EXCLUDED.ended_at,
			document = EXCLUDED.document`,
		run.ID,
		string(run.Submission.EnvironmentID),
		string(run.State),
		run.Submission.Owner,
		run.Submission.CorrelationToken,
		run.CreatedAt.UTC(),
		endedAt,
		document,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

// LoadRun returns the stored run or ports.ErrRunNotStored.
func (s *Store) LoadRun(ctx context.Context, id string) (execution.Run, error) {
	var document []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM runs WHERE id = $1`, id).Scan(&document)
	if errors.Is(err, pgx.ErrNoRows) {
		return execution.Run{}, fmt.Errorf("%w: %s", ports.ErrRunNotStored, id)
	}
	if err != nil {
		return execution.Run{}, fmt.Errorf("querying run %s: %w", id, err)
	}

	var doc wire.Run
	if err := json.Unmarshal(document, &doc); err != nil {
		return execution.Run{}, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return doc.ToRun(), nil
}

// ListRunsByOwner returns the most recently finished runs of owner.
func (s *Store) ListRunsByOwner(ctx context.Context, owner string, limit int) ([]execution.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT document FROM runs WHERE owner = $1
		ORDER BY ended_at DESC NULLS LAST LIMIT $2`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (wire.Run, error) {
		var document []byte
		if err := row.Scan(&document); err != nil {
			return wire.Run{}, err
		}
		var doc wire.Run
		err := json.Unmarshal(document, &doc)
		return doc, err
	})
	if err != nil {
		return nil, fmt.Errorf("reading runs: %w", err)
	}

	runs := make([]execution.Run, 0, len(docs))
	for _, doc := range docs {
		runs = append(runs, doc.ToRun())
	}
	return runs, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.log.Info().Msg("closing database connection pool")
	s.pool.Close()
	return nil
}
