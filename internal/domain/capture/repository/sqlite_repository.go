package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/quick-capture/internal/domain/capture/parser"
	"github.com/FACorreiaa/quick-capture/internal/domain/common"
)

var _ MessageRepository = (*SQLiteMessageRepository)(nil)

// SQLiteTimeLayout is fixed width so stored timestamps sort as text.
const SQLiteTimeLayout = "2006-01-02 15:04:05.000000000"

const (
	sqliteInsertMessageQuery = `
		INSERT INTO pending_messages (
			id, user_id, username, chat_id, raw_message, message_type,
			amount, currency, description, is_income, confidence, processed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`

	sqliteSelectMessageColumns = `
		SELECT id, user_id, username, chat_id, raw_message, message_type,
		       amount, currency, description, is_income, confidence, processed, created_at
		FROM pending_messages
	`

	sqliteListUnprocessedQuery = sqliteSelectMessageColumns + `
		WHERE processed = 0 AND amount IS NOT NULL
		ORDER BY created_at ASC
		LIMIT ?
	`

	sqliteListRecentMessagesQuery = sqliteSelectMessageColumns + `
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
)

// SQLiteMessageRepository stores messages in SQLite. Amounts are kept as
// decimal text so no precision is lost.
type SQLiteMessageRepository struct {
	db *sql.DB
}

// NewSQLiteMessageRepository creates a SQLite-backed message repository.
func NewSQLiteMessageRepository(db *sql.DB) *SQLiteMessageRepository {
	return &SQLiteMessageRepository{db: db}
}

// SaveMessage inserts a new pending message.
func (r *SQLiteMessageRepository) SaveMessage(ctx context.Context, msg *PendingMessage) error {
	prepareForSave(msg)

	var amount any
	if msg.Amount.Valid {
		amount = msg.Amount.Decimal.StringFixed(2)
	}

	_, err := r.db.ExecContext(ctx, sqliteInsertMessageQuery,
		msg.ID.String(), msg.UserID, msg.Username, msg.ChatID, msg.RawMessage, string(msg.Kind),
		amount, msg.Currency, msg.Description, msg.IsIncome.Ptr(), int64(msg.Confidence),
		msg.CreatedAt.UTC().Format(SQLiteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save pending message: %w", err)
	}
	return nil
}

// GetMessage fetches one message by ID.
func (r *SQLiteMessageRepository) GetMessage(ctx context.Context, id uuid.UUID) (*PendingMessage, error) {
	row := r.db.QueryRowContext(ctx, sqliteSelectMessageColumns+`WHERE id = ?`, id.String())

	msg, err := scanSQLiteMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending message: %w", err)
	}
	return msg, nil
}

// ListUnprocessed returns up to limit unprocessed messages with an amount,
// oldest first.
func (r *SQLiteMessageRepository) ListUnprocessed(ctx context.Context, limit int) ([]*PendingMessage, error) {
	return r.list(ctx, sqliteListUnprocessedQuery, limit)
}

// MarkProcessed flags a message as handled.
func (r *SQLiteMessageRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE pending_messages SET processed = 1 WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
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

// ListRecentMessages returns up to limit messages for a user, newest first.
func (r *SQLiteMessageRepository) ListRecentMessages(ctx context.Context, userID int64, limit int) ([]*PendingMessage, error) {
	return r.list(ctx, sqliteListRecentMessagesQuery, userID, limit)
}

func (r *SQLiteMessageRepository) list(ctx context.Context, query string, args ...any) ([]*PendingMessage, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	defer rows.Close()

	var messages []*PendingMessage
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending messages: %w", err)
	}
	return messages, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMessage(s rowScanner) (*PendingMessage, error) {
	var (
		msg         PendingMessage
		id          string
		kind        string
		amount      sql.NullString
		description sql.NullString
		isIncome    sql.NullBool
		confidence  int64
		processed   bool
		createdAt   string
	)

	if err := s.Scan(
		&id, &msg.UserID, &msg.Username, &msg.ChatID, &msg.RawMessage, &kind,
		&amount, &msg.Currency, &description, &isIncome, &confidence, &processed, &createdAt,
	); err != nil {
		return nil, err
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", id, err)
	}
	msg.ID = parsedID
	msg.Kind = parser.Kind(kind)
	msg.Confidence = parser.Confidence(confidence)
	msg.Processed = processed

	if amount.Valid {
		d, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, fmt.Errorf("invalid stored amount %q: %w", amount.String, err)
		}
		msg.Amount = decimal.NewNullDecimal(d)
	}
	if description.Valid {
		msg.Description = &description.String
	}
	if isIncome.Valid {
		msg.IsIncome = parser.TristateOf(isIncome.Bool)
	}

	msg.CreatedAt, err = ParseSQLiteTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParseSQLiteTime reads a timestamp written with SQLiteTimeLayout.
func ParseSQLiteTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(SQLiteTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}
