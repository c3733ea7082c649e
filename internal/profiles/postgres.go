package profiles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore keeps profiles in NUMERIC columns. Values cross the driver as text so no
// precision is lost.
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
		`CREATE TABLE IF NOT EXISTS financial_profile (
			id TEXT PRIMARY KEY,
			user_ref TEXT NOT NULL,
			net_worth NUMERIC(14,2) NOT NULL,
			monthly_budget NUMERIC(14,2) NOT NULL,
			total_balance NUMERIC(14,2) NOT NULL,
			monthly_spending NUMERIC(14,2) NOT NULL,
			investments NUMERIC(14,2) NOT NULL,
			credit_score INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_financial_profile_created ON financial_profile (created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, p Profile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO financial_profile
			(id, user_ref, net_worth, monthly_budget, total_balance, monthly_spending, investments, credit_score, created_at, updated_at)
		 VALUES ($1,$2,$3::numeric,$4::numeric,$5::numeric,$6::numeric,$7::numeric,$8,$9,$10)`,
		p.ID, p.User,
		p.NetWorth.String(), p.MonthlyBudget.String(), p.TotalBalance.String(),
		p.MonthlySpending.String(), p.Investments.String(),
		p.CreditScore, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create financial profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Profile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_ref, net_worth::text, monthly_budget::text, total_balance::text,
		        monthly_spending::text, investments::text, credit_score, created_at, updated_at
		   FROM financial_profile ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list financial profiles: %w", err)
	}
	defer rows.Close()

	out := make([]Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list financial profiles: %w", err)
	}
	return out, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var (
		p     Profile
		money [5]string
	)
	if err := row.Scan(&p.ID, &p.User, &money[0], &money[1], &money[2], &money[3], &money[4],
		&p.CreditScore, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Profile{}, fmt.Errorf("scan financial profile: %w", err)
	}
	dst := []*decimal.Decimal{&p.NetWorth, &p.MonthlyBudget, &p.TotalBalance, &p.MonthlySpending, &p.Investments}
	for i, raw := range money {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return Profile{}, fmt.Errorf("decode money column %d: %w", i, err)
		}
		*dst[i] = d
	}
	return p, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
