// Package service parses incoming messages and records them for the ledger
// processor.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/FACorreiaa/quick-capture/internal/domain/capture/parser"
	"github.com/FACorreiaa/quick-capture/internal/domain/capture/repository"
	"github.com/FACorreiaa/quick-capture/internal/domain/common"
	"github.com/FACorreiaa/quick-capture/pkg/observability"
)

const (
	DefaultMaxMessageBytes = 4096
	DefaultRecentLimit     = 10
	MaxRecentLimit         = 100
)

// CaptureService is the contract the capture handlers depend on.
type CaptureService interface {
	// Validate rejects text the parser should never see.
	Validate(text string) error
	Parse(ctx context.Context, text string) parser.ParsedMessage
	// Capture parses and stores text. Commands are returned unsaved, with a
	// zero ID.
	Capture(ctx context.Context, sender common.Sender, text string) (*repository.PendingMessage, error)
	RecentMessages(ctx context.Context, userID int64, limit int) ([]*repository.PendingMessage, error)
}

var _ CaptureService = (*CaptureServiceImpl)(nil)

// CaptureServiceImpl implements CaptureService.
type CaptureServiceImpl struct {
	parser   *parser.Parser
	repo     repository.MessageRepository
	maxBytes int
	logger   *slog.Logger
}

// NewCaptureService creates a capture service. A non-positive maxBytes uses
// DefaultMaxMessageBytes.
func NewCaptureService(p *parser.Parser, repo repository.MessageRepository, maxBytes int, logger *slog.Logger) *CaptureServiceImpl {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	return &CaptureServiceImpl{
		parser:   p,
		repo:     repo,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Validate checks that text is non-blank and within the size limit.
func (s *CaptureServiceImpl) Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: message is empty", common.ErrBadRequest)
	}
	if len(text) > s.maxBytes {
		return fmt.Errorf("%w: message is %d bytes, limit is %d", common.ErrBadRequest, len(text), s.maxBytes)
	}
	return nil
}

// Parse runs the parser and records the outcome. Nothing is stored.
func (s *CaptureServiceImpl) Parse(ctx context.Context, text string) parser.ParsedMessage {
	msg, trace := s.parser.ParseWithTrace(text)

	observability.MessagesTotal.WithLabelValues(string(msg.Kind), strconv.Itoa(int(msg.Confidence))).Inc()
	s.logger.DebugContext(ctx, "Message parsed",
		slog.String("kind", string(msg.Kind)),
		slog.Int("confidence", int(msg.Confidence)),
		slog.String("currency_rule", trace.Currency),
		slog.String("correction_rule", trace.Correction),
		slog.String("intent_rule", trace.Intent),
		slog.String("extraction_rule", trace.Extraction),
	)
	return msg
}

// Capture parses text and stores the result for the processor.
func (s *CaptureServiceImpl) Capture(ctx context.Context, sender common.Sender, text string) (*repository.PendingMessage, error) {
	ctx, span := otel.Tracer("CaptureService").Start(ctx, "Capture")
	defer span.End()

	l := s.logger.With(slog.String("method", "Capture"), slog.Int64("userID", sender.UserID))
	l.DebugContext(ctx, "Capturing message")

	parsed := s.Parse(ctx, text)
	msg := repository.NewPendingMessage(sender, parsed)
	span.SetAttributes(attribute.String("message.kind", string(parsed.Kind)))

	if parsed.Kind == parser.KindCommand {
		return msg, nil
	}

	if err := s.repo.SaveMessage(ctx, msg); err != nil {
		l.ErrorContext(ctx, "Failed to save message", slog.Any("error", err))
		span.RecordError(err)
		return nil, fmt.Errorf("failed to capture message: %w", err)
	}

	l.InfoContext(ctx, "Message captured",
		slog.String("message_id", msg.ID.String()),
		slog.String("kind", string(msg.Kind)),
	)
	return msg, nil
}

// RecentMessages lists a user's latest messages. limit is clamped to
// [1, MaxRecentLimit]; zero means DefaultRecentLimit.
func (s *CaptureServiceImpl) RecentMessages(ctx context.Context, userID int64, limit int) ([]*repository.PendingMessage, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}

	l := s.logger.With(slog.String("method", "RecentMessages"), slog.Int64("userID", userID))
	l.DebugContext(ctx, "Fetching recent messages", slog.Int("limit", limit))

	msgs, err := s.repo.ListRecentMessages(ctx, userID, limit)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch recent messages", slog.Any("error", err))
		return nil, fmt.Errorf("failed to fetch recent messages: %w", err)
	}
	return msgs, nil
}
