package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/browser"
)

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS session_states (
    key        TEXT PRIMARY KEY,
    state      JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertSQL = `
INSERT INTO session_states (key, state, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET
    state = EXCLUDED.state,
    updated_at = EXCLUDED.updated_at`

const selectSQL = `SELECT state FROM session_states WHERE key = $1`

// PostgresStore keeps session state in the session_states table.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

func connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	return pool, nil
}

// NewPostgresStore verifies the connection and creates the table if needed.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to create session_states table: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.Named("session.postgres")}, nil
}

func (s *PostgresStore) Save(ctx context.Context, key string, state *browser.State) error {
	if state.IsEmpty() {
		return fmt.Errorf("save %s: %w", key, browser.ErrEmptyState)
	}
	data, err := browser.EncodeState(state)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, upsertSQL, key, data)
	if err != nil {
		return fmt.Errorf("failed to save session state for %s: %w", key, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("saving session state for %s affected %d rows", key, tag.RowsAffected())
	}
	s.log.Debug("Saved session state.", zap.String("key", key))
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, key string) (*browser.State, error) {
	var data []byte
	if err := s.pool.QueryRow(ctx, selectSQL, key).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("load %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load session state for %s: %w", key, err)
	}
	state, err := browser.DecodeState(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return state, nil
}
