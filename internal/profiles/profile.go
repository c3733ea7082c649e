// Package profiles stores user-entered financial summaries. Money is kept as exact decimals.
package profiles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MinCreditScore = 300
	MaxCreditScore = 900
	moneyPlaces    = 2
)

var maxMoney = decimal.New(1, 12)

type Profile struct {
	ID              string          `json:"id"`
	User            string          `json:"user"`
	NetWorth        decimal.Decimal `json:"net_worth"`
	MonthlyBudget   decimal.Decimal `json:"monthly_budget"`
	TotalBalance    decimal.Decimal `json:"total_balance"`
	MonthlySpending decimal.Decimal `json:"monthly_spending"`
	Investments     decimal.Decimal `json:"investments"`
	CreditScore     *int            `json:"credit_score"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CreateRequest uses pointers so absent fields can be reported.
type CreateRequest struct {
	User            string           `json:"user"`
	NetWorth        *decimal.Decimal `json:"net_worth"`
	MonthlyBudget   *decimal.Decimal `json:"monthly_budget"`
	TotalBalance    *decimal.Decimal `json:"total_balance"`
	MonthlySpending *decimal.Decimal `json:"monthly_spending"`
	Investments     *decimal.Decimal `json:"investments"`
	CreditScore     *int             `json:"credit_score"`
}

// FieldErrors maps a field name to its validation messages.
type FieldErrors map[string][]string

func (e FieldErrors) Error() string { return "invalid financial profile" }

func (e FieldErrors) add(field, msg string) { e[field] = append(e[field], msg) }

type Store interface {
	Create(ctx context.Context, p Profile) error
	List(ctx context.Context) ([]Profile, error)
	Close() error
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Create validates req and stores a new profile.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Profile, error) {
	errs := FieldErrors{}
	user := strings.TrimSpace(req.User)
	if user == "" {
		errs.add("user", "This field is required.")
	}
	money := []struct {
		field       string
		value       *decimal.Decimal
		nonNegative bool
	}{
		{"net_worth", req.NetWorth, false},
		{"monthly_budget", req.MonthlyBudget, true},
		{"total_balance", req.TotalBalance, false},
		{"monthly_spending", req.MonthlySpending, true},
		{"investments", req.Investments, true},
	}
	for _, m := range money {
		checkMoney(errs, m.field, m.value, m.nonNegative)
	}
	if req.CreditScore != nil && (*req.CreditScore < MinCreditScore || *req.CreditScore > MaxCreditScore) {
		errs.add("credit_score", fmt.Sprintf("Ensure this value is between %d and %d.", MinCreditScore, MaxCreditScore))
	}
	if len(errs) > 0 {
		return Profile{}, errs
	}

	now := s.now().UTC()
	p := Profile{
		ID:              uuid.NewString(),
		User:            user,
		NetWorth:        *req.NetWorth,
		MonthlyBudget:   *req.MonthlyBudget,
		TotalBalance:    *req.TotalBalance,
		MonthlySpending: *req.MonthlySpending,
		Investments:     *req.Investments,
		CreditScore:     req.CreditScore,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]Profile, error) {
	return s.store.List(ctx)
}

func checkMoney(errs FieldErrors, field string, v *decimal.Decimal, nonNegative bool) {
	switch {
	case v == nil:
		errs.add(field, "This field is required.")
	case v.Exponent() < -moneyPlaces && !v.Equal(v.Round(moneyPlaces)):
		errs.add(field, "Ensure that there are no more than 2 decimal places.")
	case v.Abs().GreaterThanOrEqual(maxMoney):
		errs.add(field, "Ensure that there are no more than 12 digits before the decimal point.")
	case nonNegative && v.IsNegative():
		errs.add(field, "Ensure this value is greater than or equal to 0.")
	}
}
