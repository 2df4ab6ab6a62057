package repository

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/quick-capture/internal/domain/capture/parser"
	captureRepo "github.com/FACorreiaa/quick-capture/internal/domain/capture/repository"
	"github.com/FACorreiaa/quick-capture/internal/domain/common"
	"github.com/FACorreiaa/quick-capture/pkg/db"
)

type sqliteFixture struct {
	db       *sql.DB
	messages *captureRepo.SQLiteMessageRepository
	repo     *SQLiteTransactionRepository
}

func newSQLiteFixture(t *testing.T) *sqliteFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sqlDB, err := db.OpenSQLite(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return &sqliteFixture{
		db:       sqlDB,
		messages: captureRepo.NewSQLiteMessageRepository(sqlDB),
		repo:     NewSQLiteTransactionRepository(sqlDB),
	}
}

// save stores the message text and a transaction derived from it.
func (f *sqliteFixture) save(t *testing.T, userID int64, text, category string, at time.Time) *Transaction {
	t.Helper()
	ctx := context.Background()

	parsed := parser.Parse(text)
	msg := captureRepo.NewPendingMessage(common.Sender{UserID: userID}, parsed)
	msg.CreatedAt = at
	require.NoError(t, f.messages.SaveMessage(ctx, msg))

	tx := &Transaction{
		MessageID:   msg.ID,
		UserID:      userID,
		Amount:      parsed.Amount.Decimal,
		Description: parsed.DescriptionOr("unspecified"),
		Category:    category,
		Currency:    parsed.Currency,
		IsIncome:    parsed.IsIncome == parser.Yes,
		RawMessage:  text,
		OccurredAt:  at,
	}
	require.NoError(t, f.repo.SaveTransaction(ctx, tx))
	return tx
}

func TestSQLiteTransactionRepository_SaveAndLatest(t *testing.T) {
	f := newSQLiteFixture(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	f.save(t, 42, "coffee 5", "Food & Dining", base)
	second := f.save(t, 42, "spent 8.60 on book", "Shopping", base.Add(time.Hour))
	f.save(t, 99, "lunch 12", "Food & Dining", base.Add(2*time.Hour))

	latest, err := f.repo.LatestTransactionForUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, second.MessageID, latest.MessageID)
	assert.Equal(t, "book", latest.Description)
	assert.True(t, latest.Amount.Equal(decimal.RequireFromString("8.60")))
	assert.Nil(t, latest.UpdatedAt)

	_, err = f.repo.LatestTransactionForUser(context.Background(), 1)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteTransactionRepository_UpdateTransactionAmount(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	fixed := time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)
	f.repo.now = func() time.Time { return fixed }

	tx := f.save(t, 42, "coffee 5", "Food & Dining", fixed.Add(-time.Hour))

	require.NoError(t, f.repo.UpdateTransactionAmount(ctx, tx.ID, decimal.RequireFromString("12.5"), nil))
	got, err := f.repo.LatestTransactionForUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "12.50", got.Amount.StringFixed(2))
	assert.Equal(t, "coffee", got.Description)
	require.NotNil(t, got.UpdatedAt)
	assert.True(t, fixed.Equal(*got.UpdatedAt))

	desc := "lunch"
	require.NoError(t, f.repo.UpdateTransactionAmount(ctx, tx.ID, decimal.NewFromInt(15), &desc))
	got, err = f.repo.LatestTransactionForUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "lunch", got.Description)

	err = f.repo.UpdateTransactionAmount(ctx, uuid.New(), decimal.NewFromInt(1), nil)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteTransactionRepository_ListRecentTransactions(t *testing.T) {
	f := newSQLiteFixture(t)
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	f.save(t, 42, "coffee 5", "Food & Dining", base.Add(-10*24*time.Hour))
	f.save(t, 42, "lunch 12", "Food & Dining", base.Add(-2*24*time.Hour))
	f.save(t, 42, "taxi 9", "Transportation", base.Add(-time.Hour))

	recent, err := f.repo.ListRecentTransactions(context.Background(), base.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "taxi 9", recent[0].RawMessage)
	assert.Equal(t, "lunch 12", recent[1].RawMessage)
}

func TestSQLiteTransactionRepository_ListTransactionsBetween(t *testing.T) {
	f := newSQLiteFixture(t)
	from := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	f.save(t, 42, "coffee 5", "Food & Dining", from.Add(-time.Second))
	f.save(t, 42, "taxi 9", "Transportation", from.Add(48*time.Hour))
	f.save(t, 42, "lunch 12", "Food & Dining", from)
	f.save(t, 42, "beer 6", "Food & Dining", to)

	txs, err := f.repo.ListTransactionsBetween(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "lunch 12", txs[0].RawMessage)
	assert.Equal(t, "taxi 9", txs[1].RawMessage)
}

func TestSQLiteTransactionRepository_Stats(t *testing.T) {
	f := newSQLiteFixture(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	f.save(t, 42, "coffee 5", "Food & Dining", base)
	f.save(t, 42, "lunch 12.50", "Food & Dining", base.Add(time.Minute))
	f.save(t, 42, "spent 8.60 on book", "Shopping", base.Add(2*time.Minute))
	f.save(t, 42, "Earned 200 from client", "Freelance", base.Add(3*time.Minute))
	f.save(t, 42, "lunch 20 euros", "Food & Dining", base.Add(4*time.Minute))

	stats, err := f.repo.Stats(context.Background())
	require.NoError(t, err)

	require.Len(t, stats.Currencies, 2)
	eur, usd := stats.Currencies[0], stats.Currencies[1]
	assert.Equal(t, "EUR", eur.Currency)
	assert.Equal(t, int64(1), eur.ExpenseCount)
	assert.Equal(t, "-20.00", eur.Net.StringFixed(2))

	assert.Equal(t, "USD", usd.Currency)
	assert.Equal(t, int64(3), usd.ExpenseCount)
	assert.Equal(t, "26.10", usd.ExpenseTotal.StringFixed(2))
	assert.Equal(t, int64(1), usd.IncomeCount)
	assert.Equal(t, "200.00", usd.IncomeTotal.StringFixed(2))
	assert.Equal(t, "173.90", usd.Net.StringFixed(2))

	require.Len(t, stats.Categories, 3)
	assert.Equal(t, "Freelance", stats.Categories[0].Category)
	assert.True(t, stats.Categories[0].IsIncome)
	assert.Equal(t, "Food & Dining", stats.Categories[1].Category)
	assert.Equal(t, int64(3), stats.Categories[1].Count)
	assert.Equal(t, "37.50", stats.Categories[1].Total.StringFixed(2))
	assert.Equal(t, "Shopping", stats.Categories[2].Category)
}

func TestSortCategories(t *testing.T) {
	cats := []CategoryTotal{
		{Category: "b", Total: decimal.NewFromInt(5)},
		{Category: "salary", IsIncome: true, Total: decimal.NewFromInt(1)},
		{Category: "a", Total: decimal.NewFromInt(5)},
		{Category: "c", Total: decimal.NewFromInt(9)},
	}
	sortCategories(cats)

	var names []string
	for _, c := range cats {
		names = append(names, c.Category)
	}
	assert.Equal(t, []string{"salary", "c", "a", "b"}, names)
}
