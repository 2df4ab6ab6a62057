// Package repository provides data access for categorized transactions.
package repository

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is a categorized money movement derived from one captured
// message.
type Transaction struct {
	ID          uuid.UUID       `db:"id"`
	MessageID   uuid.UUID       `db:"message_id"`
	UserID      int64           `db:"user_id"`
	Username    string          `db:"username"`
	Amount      decimal.Decimal `db:"amount"`
	Description string          `db:"description"`
	Category    string          `db:"category"`
	Currency    string          `db:"currency"`
	IsIncome    bool            `db:"is_income"`
	RawMessage  string          `db:"raw_message"`
	OccurredAt  time.Time       `db:"occurred_at"`
	ProcessedAt time.Time       `db:"processed_at"`
	UpdatedAt   *time.Time      `db:"updated_at"`
}

// CurrencyTotals sums transactions in a single currency. Amounts in
// different currencies are never added together.
type CurrencyTotals struct {
	Currency     string          `json:"currency" db:"currency"`
	ExpenseCount int64           `json:"expense_count" db:"expense_count"`
	ExpenseTotal decimal.Decimal `json:"expense_total" db:"expense_total"`
	IncomeCount  int64           `json:"income_count" db:"income_count"`
	IncomeTotal  decimal.Decimal `json:"income_total" db:"income_total"`
	Net          decimal.Decimal `json:"net" db:"net"`
}

// CategoryTotal is one row of the category breakdown.
type CategoryTotal struct {
	Category string          `json:"category" db:"category"`
	IsIncome bool            `json:"is_income" db:"is_income"`
	Count    int64           `json:"count" db:"count"`
	Total    decimal.Decimal `json:"total" db:"total"`
}

// Stats summarizes every stored transaction.
type Stats struct {
	Currencies []CurrencyTotals `json:"currencies"`
	Categories []CategoryTotal  `json:"categories"`
}

// TransactionRepository stores categorized transactions.
type TransactionRepository interface {
	// SaveTransaction assigns ID and ProcessedAt when they are zero.
	SaveTransaction(ctx context.Context, tx *Transaction) error
	// LatestTransactionForUser returns the user's most recent transaction,
	// or common.ErrNotFound.
	LatestTransactionForUser(ctx context.Context, userID int64) (*Transaction, error)
	// UpdateTransactionAmount replaces the amount, and the description when
	// one is given.
	UpdateTransactionAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal, description *string) error
	// ListRecentTransactions returns transactions that occurred at or after
	// since, newest first.
	ListRecentTransactions(ctx context.Context, since time.Time) ([]*Transaction, error)
	// ListTransactionsBetween returns transactions with from <= occurred_at
	// < to, oldest first.
	ListTransactionsBetween(ctx context.Context, from, to time.Time) ([]*Transaction, error)
	Stats(ctx context.Context) (*Stats, error)
}

func prepareForSave(tx *Transaction) {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.ProcessedAt.IsZero() {
		tx.ProcessedAt = time.Now().UTC()
	}
	if tx.OccurredAt.IsZero() {
		tx.OccurredAt = tx.ProcessedAt
	}
	tx.Amount = tx.Amount.Round(2)
}

// sortCategories orders income before expense, then larger totals first.
func sortCategories(categories []CategoryTotal) {
	sort.SliceStable(categories, func(i, j int) bool {
		a, b := categories[i], categories[j]
		if a.IsIncome != b.IsIncome {
			return a.IsIncome
		}
		if c := a.Total.Cmp(b.Total); c != 0 {
			return c > 0
		}
		return a.Category < b.Category
	})
}
