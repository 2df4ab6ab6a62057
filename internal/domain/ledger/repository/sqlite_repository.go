package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	captureRepo "github.com/FACorreiaa/quick-capture/internal/domain/capture/repository"
	"github.com/FACorreiaa/quick-capture/internal/domain/common"
)

var _ TransactionRepository = (*SQLiteTransactionRepository)(nil)

const (
	sqliteInsertTransactionQuery = `
		INSERT INTO transactions (
			id, message_id, user_id, username, amount, description, category,
			currency, is_income, raw_message, occurred_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING
	`

	sqliteSelectTransactionColumns = `
		SELECT id, message_id, user_id, username, amount, description, category,
		       currency, is_income, raw_message, occurred_at, processed_at, updated_at
		FROM transactions
	`

	sqliteUpdateTransactionAmountQuery = `
		UPDATE transactions
		SET amount = ?, description = COALESCE(?, description), updated_at = ?
		WHERE id = ?
	`
)

// SQLiteTransactionRepository stores transactions in SQLite. SQLite has no
// exact decimal type, so amounts are stored as text and totals are summed in
// Go.
type SQLiteTransactionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteTransactionRepository creates a SQLite-backed transaction repository.
func NewSQLiteTransactionRepository(db *sql.DB) *SQLiteTransactionRepository {
	return &SQLiteTransactionRepository{db: db, now: time.Now}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(captureRepo.SQLiteTimeLayout)
}

// SaveTransaction inserts a categorized transaction.
func (r *SQLiteTransactionRepository) SaveTransaction(ctx context.Context, tx *Transaction) error {
	prepareForSave(tx)

	_, err := r.db.ExecContext(ctx, sqliteInsertTransactionQuery,
		tx.ID.String(), tx.MessageID.String(), tx.UserID, tx.Username, tx.Amount.StringFixed(2),
		tx.Description, tx.Category, tx.Currency, tx.IsIncome, tx.RawMessage,
		formatTime(tx.OccurredAt), formatTime(tx.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// LatestTransactionForUser returns the most recent transaction of a user.
func (r *SQLiteTransactionRepository) LatestTransactionForUser(ctx context.Context, userID int64) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, sqliteSelectTransactionColumns+`
		WHERE user_id = ?
		ORDER BY occurred_at DESC, processed_at DESC
		LIMIT 1`, userID)

	tx, err := scanSQLiteTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest transaction: %w", err)
	}
	return tx, nil
}

// UpdateTransactionAmount corrects a stored transaction.
func (r *SQLiteTransactionRepository) UpdateTransactionAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal, description *string) error {
	res, err := r.db.ExecContext(ctx, sqliteUpdateTransactionAmountQuery,
		amount.Round(2).StringFixed(2), description, formatTime(r.now()), id.String())
	if err != nil {
		return fmt.Errorf("failed to update transaction amount: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// ListRecentTransactions returns transactions since the given instant.
func (r *SQLiteTransactionRepository) ListRecentTransactions(ctx context.Context, since time.Time) ([]*Transaction, error) {
	rows, err := r.db.QueryContext(ctx, sqliteSelectTransactionColumns+`
		WHERE occurred_at >= ?
		ORDER BY occurred_at DESC`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to list recent transactions: %w", err)
	}
	return collectSQLiteTransactions(rows)
}

// ListTransactionsBetween returns transactions in the half-open range
// [from, to).
func (r *SQLiteTransactionRepository) ListTransactionsBetween(ctx context.Context, from, to time.Time) ([]*Transaction, error) {
	rows, err := r.db.QueryContext(ctx, sqliteSelectTransactionColumns+`
		WHERE occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at ASC, processed_at ASC`, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions between: %w", err)
	}
	return collectSQLiteTransactions(rows)
}

func collectSQLiteTransactions(rows *sql.Rows) ([]*Transaction, error) {
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		tx, err := scanSQLiteTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}

// Stats aggregates totals per currency and per category.
func (r *SQLiteTransactionRepository) Stats(ctx context.Context) (*Stats, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT currency, category, is_income, amount FROM transactions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for stats: %w", err)
	}
	defer rows.Close()

	type categoryKey struct {
		category string
		isIncome bool
	}
	currencies := map[string]*CurrencyTotals{}
	categories := map[categoryKey]*CategoryTotal{}

	for rows.Next() {
		var (
			currency, category, rawAmount string
			isIncome                      bool
		)
		if err := rows.Scan(&currency, &category, &isIncome, &rawAmount); err != nil {
			return nil, fmt.Errorf("failed to scan transaction for stats: %w", err)
		}
		amount, err := decimal.NewFromString(rawAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid stored amount %q: %w", rawAmount, err)
		}

		ct, ok := currencies[currency]
		if !ok {
			ct = &CurrencyTotals{Currency: currency}
			currencies[currency] = ct
		}
		if isIncome {
			ct.IncomeCount++
			ct.IncomeTotal = ct.IncomeTotal.Add(amount)
			ct.Net = ct.Net.Add(amount)
		} else {
			ct.ExpenseCount++
			ct.ExpenseTotal = ct.ExpenseTotal.Add(amount)
			ct.Net = ct.Net.Sub(amount)
		}

		key := categoryKey{category: category, isIncome: isIncome}
		cat, ok := categories[key]
		if !ok {
			cat = &CategoryTotal{Category: category, IsIncome: isIncome}
			categories[key] = cat
		}
		cat.Count++
		cat.Total = cat.Total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions for stats: %w", err)
	}

	stats := &Stats{
		Currencies: make([]CurrencyTotals, 0, len(currencies)),
		Categories: make([]CategoryTotal, 0, len(categories)),
	}
	for _, ct := range currencies {
		stats.Currencies = append(stats.Currencies, *ct)
	}
	sort.Slice(stats.Currencies, func(i, j int) bool {
		return stats.Currencies[i].Currency < stats.Currencies[j].Currency
	})
	for _, cat := range categories {
		stats.Categories = append(stats.Categories, *cat)
	}
	sortCategories(stats.Categories)

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTransaction(s rowScanner) (*Transaction, error) {
	var (
		tx                      Transaction
		id, messageID           string
		amount                  string
		occurredAt, processedAt string
		updatedAt               sql.NullString
	)

	if err := s.Scan(
		&id, &messageID, &tx.UserID, &tx.Username, &amount, &tx.Description, &tx.Category,
		&tx.Currency, &tx.IsIncome, &tx.RawMessage, &occurredAt, &processedAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if tx.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid transaction id %q: %w", id, err)
	}
	if tx.MessageID, err = uuid.Parse(messageID); err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", messageID, err)
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	if tx.OccurredAt, err = captureRepo.ParseSQLiteTime(occurredAt); err != nil {
		return nil, err
	}
	if tx.ProcessedAt, err = captureRepo.ParseSQLiteTime(processedAt); err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		t, err := captureRepo.ParseSQLiteTime(updatedAt.String)
		if err != nil {
			return nil, err
		}
		tx.UpdatedAt = &t
	}
	return &tx, nil
}
