package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/quick-capture/internal/domain/capture/parser"
	"github.com/FACorreiaa/quick-capture/internal/domain/common"
)

// PendingMessage is a parsed message as stored, waiting to be categorized.
type PendingMessage struct {
	ID          uuid.UUID
	UserID      int64
	Username    string
	ChatID      int64
	RawMessage  string
	Kind        parser.Kind
	Amount      decimal.NullDecimal
	Currency    string
	Description *string
	IsIncome    parser.Tristate
	Confidence  parser.Confidence
	Processed   bool
	CreatedAt   time.Time
}

// NewPendingMessage pairs a parse result with its sender. ID and CreatedAt
// are assigned on save.
func NewPendingMessage(sender common.Sender, msg parser.ParsedMessage) *PendingMessage {
	return &PendingMessage{
		UserID:      sender.UserID,
		Username:    sender.Username,
		ChatID:      sender.ChatID,
		RawMessage:  msg.RawText,
		Kind:        msg.Kind,
		Amount:      msg.Amount,
		Currency:    msg.Currency,
		Description: msg.Description,
		IsIncome:    msg.IsIncome,
		Confidence:  msg.Confidence,
	}
}

// Parsed rebuilds the parse result that was stored.
func (m *PendingMessage) Parsed() parser.ParsedMessage {
	return parser.ParsedMessage{
		RawText:     m.RawMessage,
		Amount:      m.Amount,
		Currency:    m.Currency,
		Description: m.Description,
		IsIncome:    m.IsIncome,
		Confidence:  m.Confidence,
		Kind:        m.Kind,
	}
}

// MessageRepository stores parsed messages.
type MessageRepository interface {
	// SaveMessage assigns ID and CreatedAt when they are zero.
	SaveMessage(ctx context.Context, msg *PendingMessage) error
	GetMessage(ctx context.Context, id uuid.UUID) (*PendingMessage, error)
	// ListUnprocessed returns unprocessed messages that carry an amount,
	// oldest first.
	ListUnprocessed(ctx context.Context, limit int) ([]*PendingMessage, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	// ListRecentMessages returns a user's messages, newest first.
	ListRecentMessages(ctx context.Context, userID int64, limit int) ([]*PendingMessage, error)
}

func prepareForSave(msg *PendingMessage) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
}
