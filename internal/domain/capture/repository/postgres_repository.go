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

	"github.com/FACorreiaa/quick-capture/internal/domain/capture/parser"
	"github.com/FACorreiaa/quick-capture/internal/domain/common"
)

// PgxPool abstracts the subset of pgxpool.Pool used by the repository to allow mocking in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ PgxPool           = (*pgxpool.Pool)(nil)
	_ MessageRepository = (*PostgresMessageRepository)(nil)
)

const (
	insertMessageQuery = `
		INSERT INTO pending_messages (
			id, user_id, username, chat_id, raw_message, message_type,
			amount, currency, description, is_income, confidence, processed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12)
	`

	selectMessageColumns = `
		SELECT id, user_id, username, chat_id, raw_message, message_type,
		       amount, currency, description, is_income, confidence, processed, created_at
		FROM pending_messages
	`

	getMessageQuery = selectMessageColumns + `WHERE id = $1`

	listUnprocessedQuery = selectMessageColumns + `
		WHERE processed = FALSE AND amount IS NOT NULL
		ORDER BY created_at ASC
		LIMIT $1
	`

	markProcessedQuery = `UPDATE pending_messages SET processed = TRUE WHERE id = $1`

	listRecentMessagesQuery = selectMessageColumns + `
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
)

// messageRow mirrors a pending_messages row.
type messageRow struct {
	ID          uuid.UUID           `db:"id"`
	UserID      int64               `db:"user_id"`
	Username    string              `db:"username"`
	ChatID      int64               `db:"chat_id"`
	RawMessage  string              `db:"raw_message"`
	MessageType string              `db:"message_type"`
	Amount      decimal.NullDecimal `db:"amount"`
	Currency    string              `db:"currency"`
	Description *string             `db:"description"`
	IsIncome    *bool               `db:"is_income"`
	Confidence  int16               `db:"confidence"`
	Processed   bool                `db:"processed"`
	CreatedAt   time.Time           `db:"created_at"`
}

func (r messageRow) toMessage() *PendingMessage {
	return &PendingMessage{
		ID:          r.ID,
		UserID:      r.UserID,
		Username:    r.Username,
		ChatID:      r.ChatID,
		RawMessage:  r.RawMessage,
		Kind:        parser.Kind(r.MessageType),
		Amount:      r.Amount,
		Currency:    r.Currency,
		Description: r.Description,
		IsIncome:    parser.TristateFromPtr(r.IsIncome),
		Confidence:  parser.Confidence(r.Confidence),
		Processed:   r.Processed,
		CreatedAt:   r.CreatedAt,
	}
}

// PostgresMessageRepository stores messages in PostgreSQL.
type PostgresMessageRepository struct {
	pgpool PgxPool
}

// NewPostgresMessageRepository creates a PostgreSQL-backed message repository.
func NewPostgresMessageRepository(pgpool PgxPool) *PostgresMessageRepository {
	return &PostgresMessageRepository{pgpool: pgpool}
}

func startSpan(ctx context.Context, name, operation string) (context.Context, trace.Span) {
	return otel.Tracer("MessageRepository").Start(ctx, name, trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", "pending_messages"),
	))
}

// SaveMessage inserts a new pending message.
func (r *PostgresMessageRepository) SaveMessage(ctx context.Context, msg *PendingMessage) error {
	ctx, span := startSpan(ctx, "SaveMessage", "INSERT")
	defer span.End()

	prepareForSave(msg)

	_, err := r.pgpool.Exec(ctx, insertMessageQuery,
		msg.ID, msg.UserID, msg.Username, msg.ChatID, msg.RawMessage, string(msg.Kind),
		msg.Amount, msg.Currency, msg.Description, msg.IsIncome.Ptr(), int16(msg.Confidence),
		msg.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return fmt.Errorf("failed to save pending message: %w", err)
	}

	span.SetAttributes(attribute.String("message.kind", string(msg.Kind)))
	return nil
}

// GetMessage fetches one message by ID.
func (r *PostgresMessageRepository) GetMessage(ctx context.Context, id uuid.UUID) (*PendingMessage, error) {
	ctx, span := startSpan(ctx, "GetMessage", "SELECT")
	defer span.End()

	rows, err := r.pgpool.Query(ctx, getMessageQuery, id)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get pending message: %w", err)
	}

	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[messageRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to scan pending message: %w", err)
	}

	return row.toMessage(), nil
}

// ListUnprocessed returns up to limit unprocessed messages with an amount,
// oldest first.
func (r *PostgresMessageRepository) ListUnprocessed(ctx context.Context, limit int) ([]*PendingMessage, error) {
	ctx, span := startSpan(ctx, "ListUnprocessed", "SELECT")
	defer span.End()

	return r.list(ctx, span, listUnprocessedQuery, limit)
}

// MarkProcessed flags a message as handled.
func (r *PostgresMessageRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	ctx, span := startSpan(ctx, "MarkProcessed", "UPDATE")
	defer span.End()

	tag, err := r.pgpool.Exec(ctx, markProcessedQuery, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "message not found")
		return common.ErrNotFound
	}
	return nil
}

// ListRecentMessages returns up to limit messages for a user, newest first.
func (r *PostgresMessageRepository) ListRecentMessages(ctx context.Context, userID int64, limit int) ([]*PendingMessage, error) {
	ctx, span := startSpan(ctx, "ListRecentMessages", "SELECT")
	defer span.End()

	return r.list(ctx, span, listRecentMessagesQuery, userID, limit)
}

func (r *PostgresMessageRepository) list(ctx context.Context, span trace.Span, query string, args ...any) ([]*PendingMessage, error) {
	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}

	dbRows, err := pgx.CollectRows(rows, pgx.RowToStructByName[messageRow])
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to scan pending messages: %w", err)
	}

	messages := make([]*PendingMessage, 0, len(dbRows))
	for _, row := range dbRows {
		messages = append(messages, row.toMessage())
	}
	span.SetAttributes(attribute.Int("db.rows", len(messages)))
	return messages, nil
}
