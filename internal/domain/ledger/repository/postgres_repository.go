package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/quick-capture/internal/domain/common"
)

// PgxPool abstracts the subset of pgxpool.Pool used by the repository to allow mocking in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var (
	_ PgxPool               = (*pgxpool.Pool)(nil)
	_ TransactionRepository = (*PostgresTransactionRepository)(nil)
)

const (
	insertTransactionQuery = `
		INSERT INTO transactions (
			id, message_id, user_id, username, amount, description, category,
			currency, is_income, raw_message, occurred_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (message_id) DO NOTHING
	`

	selectTransactionColumns = `
		SELECT id, message_id, user_id, username, amount, description, category,
		       currency, is_income, raw_message, occurred_at, processed_at, updated_at
		FROM transactions
	`

	latestTransactionQuery = selectTransactionColumns + `
		WHERE user_id = $1
		ORDER BY occurred_at DESC, processed_at DESC
		LIMIT 1
	`

	updateTransactionAmountQuery = `
		UPDATE transactions
		SET amount = $2, description = COALESCE($3, description), updated_at = NOW()
		WHERE id = $1
	`

	listRecentTransactionsQuery = selectTransactionColumns + `
		WHERE occurred_at >= $1
		ORDER BY occurred_at DESC
	`

	listTransactionsBetweenQuery = selectTransactionColumns + `
		WHERE occurred_at >= $1 AND occurred_at < $2
		ORDER BY occurred_at ASC, processed_at ASC
	`

	currencyTotalsQuery = `
		SELECT currency,
		       COUNT(*) FILTER (WHERE NOT is_income)                 AS expense_count,
		       COALESCE(SUM(amount) FILTER (WHERE NOT is_income), 0) AS expense_total,
		       COUNT(*) FILTER (WHERE is_income)                     AS income_count,
		       COALESCE(SUM(amount) FILTER (WHERE is_income), 0)     AS income_total,
		       COALESCE(SUM(CASE WHEN is_income THEN amount ELSE -amount END), 0) AS net
		FROM transactions
		GROUP BY currency
		ORDER BY currency
	`

	categoryTotalsQuery = `
		SELECT category, is_income, COUNT(*) AS count, SUM(amount) AS total
		FROM transactions
		GROUP BY category, is_income
		ORDER BY is_income DESC, total DESC, category
	`
)

// PostgresTransactionRepository stores transactions in PostgreSQL.
type PostgresTransactionRepository struct {
	pgpool PgxPool
}

// NewPostgresTransactionRepository creates a PostgreSQL-backed transaction repository.
func NewPostgresTransactionRepository(pgpool PgxPool) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{pgpool: pgpool}
}

func startSpan(ctx context.Context, name, operation string) (context.Context, trace.Span) {
	return otel.Tracer("TransactionRepository").Start(ctx, name, trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", "transactions"),
	))
}

// SaveTransaction inserts a categorized transaction.
func (r *PostgresTransactionRepository) SaveTransaction(ctx context.Context, tx *Transaction) error {
	ctx, span := startSpan(ctx, "SaveTransaction", "INSERT")
	defer span.End()

	prepareForSave(tx)

	_, err := r.pgpool.Exec(ctx, insertTransactionQuery,
		tx.ID, tx.MessageID, tx.UserID, tx.Username, tx.Amount, tx.Description, tx.Category,
		tx.Currency, tx.IsIncome, tx.RawMessage, tx.OccurredAt, tx.ProcessedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	span.SetAttributes(
		attribute.String("transaction.category", tx.Category),
		attribute.Bool("transaction.is_income", tx.IsIncome),
	)
	return nil
}

// LatestTransactionForUser returns the most recent transaction of a user.
func (r *PostgresTransactionRepository) LatestTransactionForUser(ctx context.Context, userID int64) (*Transaction, error) {
	ctx, span := startSpan(ctx, "LatestTransactionForUser", "SELECT")
	defer span.End()

	rows, err := r.pgpool.Query(ctx, latestTransactionQuery, userID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get latest transaction: %w", err)
	}

	tx, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Transaction])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to scan latest transaction: %w", err)
	}
	return tx, nil
}

// UpdateTransactionAmount corrects a stored transaction.
func (r *PostgresTransactionRepository) UpdateTransactionAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal, description *string) error {
	ctx, span := startSpan(ctx, "UpdateTransactionAmount", "UPDATE")
	defer span.End()

	tag, err := r.pgpool.Exec(ctx, updateTransactionAmountQuery, id, amount.Round(2), description)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return fmt.Errorf("failed to update transaction amount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

// ListRecentTransactions returns transactions since the given instant.
func (r *PostgresTransactionRepository) ListRecentTransactions(ctx context.Context, since time.Time) ([]*Transaction, error) {
	ctx, span := startSpan(ctx, "ListRecentTransactions", "SELECT")
	defer span.End()

	rows, err := r.pgpool.Query(ctx, listRecentTransactionsQuery, since)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list recent transactions: %w", err)
	}

	txs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Transaction])
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to scan recent transactions: %w", err)
	}
	span.SetAttributes(attribute.Int("db.rows", len(txs)))
	return txs, nil
}

// ListTransactionsBetween returns transactions in the half-open range
// [from, to).
func (r *PostgresTransactionRepository) ListTransactionsBetween(ctx context.Context, from, to time.Time) ([]*Transaction, error) {
	ctx, span := startSpan(ctx, "ListTransactionsBetween", "SELECT")
	defer span.End()

	rows, err := r.pgpool.Query(ctx, listTransactionsBetweenQuery, from, to)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list transactions between: %w", err)
	}

	txs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Transaction])
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to scan transactions between: %w", err)
	}
	span.SetAttributes(attribute.Int("db.rows", len(txs)))
	return txs, nil
}

// Stats aggregates totals per currency and per category in the database.
func (r *PostgresTransactionRepository) Stats(ctx context.Context) (*Stats, error) {
	ctx, span := startSpan(ctx, "Stats", "SELECT")
	defer span.End()

	rows, err := r.pgpool.Query(ctx, currencyTotalsQuery)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query currency totals: %w", err)
	}
	currencies, err := pgx.CollectRows(rows, pgx.RowToStructByName[CurrencyTotals])
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to scan currency totals: %w", err)
	}

	rows, err = r.pgpool.Query(ctx, categoryTotalsQuery)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query category totals: %w", err)
	}
	categories, err := pgx.CollectRows(rows, pgx.RowToStructByName[CategoryTotal])
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to scan category totals: %w", err)
	}

	return &Stats{Currencies: currencies, Categories: categories}, nil
}
