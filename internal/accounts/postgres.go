package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

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
		`CREATE TABLE IF NOT EXISTS accounts_user (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			password_hash BYTEA NOT NULL,
			date_joined TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_user_email ON accounts_user (lower(email));`,
		`CREATE TABLE IF NOT EXISTS accounts_token (
			key TEXT PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE REFERENCES accounts_user(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts_user (id, username, email, first_name, last_name, password_hash, date_joined)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.DateJoined,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const userColumns = `u.id, u.username, u.email, u.first_name, u.last_name, u.password_hash, u.date_joined`

func scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.DateJoined); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) UserByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM accounts_user u WHERE lower(u.email)=lower($1)`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) UserByID(ctx context.Context, id string) (User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM accounts_user u WHERE u.id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) TokenForUser(ctx context.Context, userID, newKey string, now time.Time) (Token, error) {
	var tok Token
	err := s.pool.QueryRow(ctx,
		`WITH ins AS (
			INSERT INTO accounts_token (key, user_id, created_at) VALUES ($1,$2,$3)
			ON CONFLICT (user_id) DO NOTHING
			RETURNING key, user_id, created_at
		)
		SELECT key, user_id, created_at FROM ins
		UNION ALL
		SELECT key, user_id, created_at FROM accounts_token WHERE user_id=$2
		LIMIT 1`,
		newKey, userID, now,
	).Scan(&tok.Key, &tok.UserID, &tok.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Token{}, ErrUserNotFound
		}
		return Token{}, fmt.Errorf("issue token: %w", err)
	}
	return tok, nil
}

func (s *PostgresStore) UserByToken(ctx context.Context, key string) (User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM accounts_token t JOIN accounts_user u ON u.id=t.user_id WHERE t.key=$1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrTokenNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("load token: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) DeleteToken(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts_token WHERE key=$1`, key)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
