package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists session state in PostgreSQL as JSONB documents.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session_state (
			session_id TEXT PRIMARY KEY,
			permissions JSONB,
			chat_history JSONB NOT NULL DEFAULT '[]'::jsonb,
			permission_log JSONB NOT NULL DEFAULT '[]'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_session_state_updated ON session_state (updated_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) (State, error) {
	var (
		permsRaw   []byte
		historyRaw []byte
		logRaw     []byte
		st         State
	)
	err := s.pool.QueryRow(ctx,
		`SELECT permissions, chat_history, permission_log, updated_at
		   FROM session_state WHERE session_id=$1`,
		sessionID,
	).Scan(&permsRaw, &historyRaw, &logRaw, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("load session state: %w", err)
	}

	if len(permsRaw) > 0 && string(permsRaw) != "null" {
		if err := json.Unmarshal(permsRaw, &st.Permissions); err != nil {
			return State{}, fmt.Errorf("decode permissions: %w", err)
		}
	}
	if err := json.Unmarshal(historyRaw, &st.History); err != nil {
		return State{}, fmt.Errorf("decode chat history: %w", err)
	}
	if err := json.Unmarshal(logRaw, &st.PermissionLog); err != nil {
		return State{}, fmt.Errorf("decode permission log: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) Save(ctx context.Context, sessionID string, state State) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	var permsJSON any
	if state.Permissions != nil {
		raw, err := json.Marshal(state.Permissions)
		if err != nil {
			return fmt.Errorf("encode permissions: %w", err)
		}
		permsJSON = string(raw)
	}
	historyJSON, err := marshalList(state.History)
	if err != nil {
		return fmt.Errorf("encode chat history: %w", err)
	}
	logJSON, err := marshalList(state.PermissionLog)
	if err != nil {
		return fmt.Errorf("encode permission log: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_state (session_id, permissions, chat_history, permission_log, updated_at)
		 VALUES ($1, $2::jsonb, $3::jsonb, $4::jsonb, $5)
		 ON CONFLICT (session_id) DO UPDATE SET
			permissions=EXCLUDED.permissions,
			chat_history=EXCLUDED.chat_history,
			permission_log=EXCLUDED.permission_log,
			updated_at=EXCLUDED.updated_at`,
		sessionID,
		permsJSON,
		historyJSON,
		logJSON,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM session_state WHERE session_id=$1`, sessionID); err != nil {
		return fmt.Errorf("delete session state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// marshalList encodes v, writing nil slices as an empty JSON array.
func marshalList[T any](v []T) (string, error) {
	if v == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
