// Package service turns captured messages into categorized ledger
// transactions and reports on them.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/quick-capture/internal/domain/capture/parser"
	captureRepo "github.com/FACorreiaa/quick-capture/internal/domain/capture/repository"
	"github.com/FACorreiaa/quick-capture/internal/domain/common"
	"github.com/FACorreiaa/quick-capture/internal/domain/ledger/categorizer"
	"github.com/FACorreiaa/quick-capture/internal/domain/ledger/repository"
	"github.com/FACorreiaa/quick-capture/pkg/observability"
)

const (
	DefaultBatchSize  = 50
	DefaultRecentDays = 7
	DefaultInterval   = time.Minute

	// UnspecifiedDescription stands in for messages that carried an amount
	// but no description.
	UnspecifiedDescription = "unspecified"
)

// DefaultBusinessCategories are the tax report's deduction categories.
var DefaultBusinessCategories = []string{"Professional & Work", "Education & Learning", "Transportation"}

// ProcessResult summarizes one ProcessPending batch.
type ProcessResult struct {
	Total       int `json:"total"`
	Categorized int `json:"categorized"`
	Corrected   int `json:"corrected"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
}

// LedgerService is the contract the ledger handlers depend on.
type LedgerService interface {
	ProcessPending(ctx context.Context) (*ProcessResult, error)
	Stats(ctx context.Context) (*repository.Stats, error)
	RecentTransactions(ctx context.Context, days int) ([]*repository.Transaction, error)
	Summary(ctx context.Context, req PeriodRequest) (*PeriodSummary, error)
	CompareWeeks(ctx context.Context, n int) (*WeekComparison, error)
	TaxReport(ctx context.Context, year int) (*TaxReport, error)
	Ask(ctx context.Context, question string) (string, error)
}

var _ LedgerService = (*Processor)(nil)

// Processor categorizes pending messages and applies corrections.
type Processor struct {
	messages     captureRepo.MessageRepository
	transactions repository.TransactionRepository
	categorizer  categorizer.Categorizer
	batchSize    int
	logger       *slog.Logger
	now          func() time.Time

	businessCategories []string
	advisor            *Advisor
}

// NewProcessor creates a processor. A non-positive batchSize uses
// DefaultBatchSize.
func NewProcessor(
	messages captureRepo.MessageRepository,
	transactions repository.TransactionRepository,
	cat categorizer.Categorizer,
	batchSize int,
	logger *slog.Logger,
	opts ...ProcessorOption,
) *Processor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	p := &Processor{
		messages:           messages,
		transactions:       transactions,
		categorizer:        cat,
		batchSize:          batchSize,
		logger:             logger,
		now:                time.Now,
		businessCategories: DefaultBusinessCategories,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessPending handles one batch of unprocessed messages in arrival order.
// A failing record is logged, counted and left pending; only failing to list
// the batch is an error.
func (p *Processor) ProcessPending(ctx context.Context) (*ProcessResult, error) {
	ctx, span := otel.Tracer("LedgerProcessor").Start(ctx, "ProcessPending")
	defer span.End()

	l := p.logger.With(slog.String("method", "ProcessPending"))
	l.DebugContext(ctx, "Processing pending messages", slog.Int("batch_size", p.batchSize))

	start := time.Now()
	defer func() { observability.ProcessorRunDuration.Observe(time.Since(start).Seconds()) }()

	pending, err := p.messages.ListUnprocessed(ctx, p.batchSize)
	if err != nil {
		l.ErrorContext(ctx, "Failed to list pending messages", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}

	result := &ProcessResult{Total: len(pending)}
	for _, msg := range pending {
		if err := ctx.Err(); err != nil {
			l.WarnContext(ctx, "Processing interrupted", slog.Any("error", err))
			break
		}

		outcome, err := p.processOne(ctx, msg)
		if err != nil {
			outcome = observability.OutcomeFailed
			l.ErrorContext(ctx, "Failed to process message",
				slog.String("message_id", msg.ID.String()),
				slog.String("kind", string(msg.Kind)),
				slog.Any("error", err),
			)
		}
		observability.ProcessedTotal.WithLabelValues(outcome).Inc()

		switch outcome {
		case observability.OutcomeCategorized:
			result.Categorized++
		case observability.OutcomeCorrected:
			result.Corrected++
		case observability.OutcomeSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("messages.total", result.Total),
		attribute.Int("messages.failed", result.Failed),
	)
	l.InfoContext(ctx, "Pending messages processed",
		slog.Int("total", result.Total),
		slog.Int("categorized", result.Categorized),
		slog.Int("corrected", result.Corrected),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

func (p *Processor) processOne(ctx context.Context, msg *captureRepo.PendingMessage) (string, error) {
	if !msg.Amount.Valid {
		// ListUnprocessed never returns these; mark it so it cannot block the queue.
		if err := p.messages.MarkProcessed(ctx, msg.ID); err != nil {
			return "", err
		}
		return observability.OutcomeSkipped, nil
	}
	if msg.Kind == parser.KindCorrection {
		return p.applyCorrection(ctx, msg)
	}
	return p.categorize(ctx, msg)
}

// applyCorrection rewrites the sender's latest transaction. A correction
// with nothing to correct is marked processed and skipped.
func (p *Processor) applyCorrection(ctx context.Context, msg *captureRepo.PendingMessage) (string, error) {
	l := p.logger.With(slog.String("method", "applyCorrection"), slog.String("message_id", msg.ID.String()))

	latest, err := p.transactions.LatestTransactionForUser(ctx, msg.UserID)
	if errors.Is(err, common.ErrNotFound) {
		l.WarnContext(ctx, "Correction has no earlier transaction", slog.Any("error", common.ErrNothingToFix))
		if err := p.messages.MarkProcessed(ctx, msg.ID); err != nil {
			return "", fmt.Errorf("failed to mark correction processed: %w", err)
		}
		return observability.OutcomeSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find transaction to correct: %w", err)
	}

	if err := p.transactions.UpdateTransactionAmount(ctx, latest.ID, msg.Amount.Decimal, msg.Description); err != nil {
		return "", fmt.Errorf("failed to apply correction: %w", err)
	}
	if err := p.messages.MarkProcessed(ctx, msg.ID); err != nil {
		return "", fmt.Errorf("failed to mark correction processed: %w", err)
	}

	l.InfoContext(ctx, "Correction applied",
		slog.String("transaction_id", latest.ID.String()),
		slog.String("old_amount", latest.Amount.StringFixed(2)),
		slog.String("new_amount", msg.Amount.Decimal.StringFixed(2)),
	)
	return observability.OutcomeCorrected, nil
}

func (p *Processor) categorize(ctx context.Context, msg *captureRepo.PendingMessage) (string, error) {
	isIncome := msg.IsIncome == parser.Yes
	description := msg.Parsed().DescriptionOr(UnspecifiedDescription)

	category, err := p.categorizer.Categorize(ctx, description, msg.Amount.Decimal, isIncome)
	if err != nil {
		return "", err
	}

	tx := &repository.Transaction{
		MessageID:   msg.ID,
		UserID:      msg.UserID,
		Username:    msg.Username,
		Amount:      msg.Amount.Decimal,
		Description: description,
		Category:    category,
		Currency:    msg.Currency,
		IsIncome:    isIncome,
		RawMessage:  msg.RawMessage,
		OccurredAt:  msg.CreatedAt,
	}
	if err := p.transactions.SaveTransaction(ctx, tx); err != nil {
		return "", err
	}
	if err := p.messages.MarkProcessed(ctx, msg.ID); err != nil {
		return "", fmt.Errorf("failed to mark message processed: %w", err)
	}

	observability.CategorizedTotal.WithLabelValues(category).Inc()
	p.logger.DebugContext(ctx, "Message categorized",
		slog.String("message_id", msg.ID.String()),
		slog.String("category", category),
	)
	return observability.OutcomeCategorized, nil
}

// Run calls ProcessPending immediately and then every interval until ctx is
// cancelled. A non-positive interval uses DefaultInterval.
func (p *Processor) Run(ctx context.Context, interval time.Duration) {
	l := p.logger.With(slog.String("method", "Run"))
	if interval <= 0 {
		l.WarnContext(ctx, "Non-positive processor interval, using default",
			slog.Duration("interval", interval), slog.Duration("default", DefaultInterval))
		interval = DefaultInterval
	}
	l.InfoContext(ctx, "Processor started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.ProcessPending(ctx); err != nil {
			l.ErrorContext(ctx, "Processor batch failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			l.InfoContext(context.WithoutCancel(ctx), "Processor stopped")
			return
		case <-ticker.C:
		}
	}
}

// Stats returns totals over every stored transaction.
func (p *Processor) Stats(ctx context.Context) (*repository.Stats, error) {
	l := p.logger.With(slog.String("method", "Stats"))
	l.DebugContext(ctx, "Fetching ledger stats")

	stats, err := p.transactions.Stats(ctx)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch ledger stats", slog.Any("error", err))
		return nil, fmt.Errorf("failed to fetch stats: %w", err)
	}
	return stats, nil
}

// RecentTransactions returns transactions from the last days days, newest
// first. A non-positive days uses DefaultRecentDays.
func (p *Processor) RecentTransactions(ctx context.Context, days int) ([]*repository.Transaction, error) {
	if days <= 0 {
		days = DefaultRecentDays
	}
	l := p.logger.With(slog.String("method", "RecentTransactions"), slog.Int("days", days))
	l.DebugContext(ctx, "Fetching recent transactions")

	since := p.now().AddDate(0, 0, -days)
	txs, err := p.transactions.ListRecentTransactions(ctx, since)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch recent transactions", slog.Any("error", err))
		return nil, fmt.Errorf("failed to fetch recent transactions: %w", err)
	}
	return txs, nil
}
