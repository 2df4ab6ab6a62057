package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/quick-capture/internal/domain/common"
	"github.com/FACorreiaa/quick-capture/internal/domain/ledger/categorizer"
	"github.com/FACorreiaa/quick-capture/internal/domain/ledger/repository"
	"github.com/FACorreiaa/quick-capture/pkg/observability"
)

const (
	// AskWindowDays is how far back questions look.
	AskWindowDays     = 30
	askRecentListed   = 10
	MaxQuestionLength = 1000
)

// Advisor holds the models used for summary insights and free-form
// questions. Either may be nil.
type Advisor struct {
	Insights categorizer.Generator
	Chat     categorizer.Generator
	// Timeout bounds each request; zero leaves the caller's deadline.
	Timeout time.Duration
}

// ProcessorOption configures optional Processor behaviour.
type ProcessorOption func(*Processor)

// WithBusinessCategories sets the categories the tax report lists as
// potential deductions. An empty list keeps DefaultBusinessCategories.
func WithBusinessCategories(names []string) ProcessorOption {
	return func(p *Processor) {
		if len(names) > 0 {
			p.businessCategories = names
		}
	}
}

// WithAdvisor enables model insights on summaries and Ask.
func WithAdvisor(a *Advisor) ProcessorOption {
	return func(p *Processor) { p.advisor = a }
}

// Summary reports on the requested period. Insights are attached when an
// advisor is configured; a failing model only drops them.
func (p *Processor) Summary(ctx context.Context, req PeriodRequest) (*PeriodSummary, error) {
	ctx, span := otel.Tracer("LedgerProcessor").Start(ctx, "Summary")
	defer span.End()

	period, err := req.Resolve(p.now())
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("period.kind", string(period.Kind)), attribute.String("period.name", period.Name))

	l := p.logger.With(slog.String("method", "Summary"), slog.String("period", period.Name))
	l.DebugContext(ctx, "Building period summary")

	txs, err := p.transactions.ListTransactionsBetween(ctx, period.Start, period.End)
	if err != nil {
		l.ErrorContext(ctx, "Failed to load period transactions", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, fmt.Errorf("failed to load transactions for %s: %w", period.Name, err)
	}
	summary := Summarize(period, txs)

	if p.advisor != nil && p.advisor.Insights != nil && summary.TransactionCount > 0 {
		var previous *PeriodSummary
		if period.Kind == PeriodWeek {
			prev := Period{Kind: PeriodWeek, Name: "previous week", Start: period.Start.AddDate(0, 0, -7), End: period.Start}
			prevTxs, err := p.transactions.ListTransactionsBetween(ctx, prev.Start, prev.End)
			if err != nil {
				l.WarnContext(ctx, "Failed to load previous week for comparison", slog.Any("error", err))
			} else {
				previous = Summarize(prev, prevTxs)
			}
		}
		summary.Insights = p.generate(ctx, p.advisor.Insights, BuildInsightsPrompt(summary, previous), l)
	}

	observability.ReportsTotal.WithLabelValues("summary", insightsLabel(summary.Insights)).Inc()
	l.InfoContext(ctx, "Period summary built", slog.Int("transactions", summary.TransactionCount))
	return summary, nil
}

// CompareWeeks summarizes the last n weeks, the current one included, and
// derives spending trends. A non-positive n uses DefaultCompareWeeks.
func (p *Processor) CompareWeeks(ctx context.Context, n int) (*WeekComparison, error) {
	ctx, span := otel.Tracer("LedgerProcessor").Start(ctx, "CompareWeeks")
	defer span.End()

	if n <= 0 {
		n = DefaultCompareWeeks
	}
	if n > MaxCompareWeeks {
		return nil, fmt.Errorf("%w: at most %d weeks can be compared", common.ErrBadRequest, MaxCompareWeeks)
	}
	l := p.logger.With(slog.String("method", "CompareWeeks"), slog.Int("weeks", n))

	now := p.now()
	periods := make([]Period, 0, n)
	for ago := n - 1; ago >= 0; ago-- {
		periods = append(periods, WeekPeriod(now, ago))
	}

	txs, err := p.transactions.ListTransactionsBetween(ctx, periods[0].Start, periods[n-1].End)
	if err != nil {
		l.ErrorContext(ctx, "Failed to load weekly transactions", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, fmt.Errorf("failed to load transactions for week comparison: %w", err)
	}

	comparison := &WeekComparison{Weeks: make([]*PeriodSummary, 0, n)}
	for _, period := range periods {
		comparison.Weeks = append(comparison.Weeks, Summarize(period, txs))
	}
	comparison.Trends = CompareSummaries(comparison.Weeks)

	observability.ReportsTotal.WithLabelValues("compare_weeks", "false").Inc()
	return comparison, nil
}

// TaxReport collects a year's potential business deductions and category
// totals.
func (p *Processor) TaxReport(ctx context.Context, year int) (*TaxReport, error) {
	ctx, span := otel.Tracer("LedgerProcessor").Start(ctx, "TaxReport")
	defer span.End()

	if year < minReportYear || year > maxReportYear {
		return nil, fmt.Errorf("%w: year %d out of range", common.ErrBadRequest, year)
	}
	l := p.logger.With(slog.String("method", "TaxReport"), slog.Int("year", year))

	period := YearPeriod(year)
	txs, err := p.transactions.ListTransactionsBetween(ctx, period.Start, period.End)
	if err != nil {
		l.ErrorContext(ctx, "Failed to load transactions for tax report", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, fmt.Errorf("failed to load transactions for %d: %w", year, err)
	}

	report := BuildTaxReport(year, p.businessCategories, txs)
	observability.ReportsTotal.WithLabelValues("tax", "false").Inc()
	l.InfoContext(ctx, "Tax report built",
		slog.Int("transactions", report.TransactionCount),
		slog.Int("deductions", len(report.Deductions)),
	)
	return report, nil
}

// Ask answers a question about the last AskWindowDays days of transactions.
func (p *Processor) Ask(ctx context.Context, question string) (string, error) {
	ctx, span := otel.Tracer("LedgerProcessor").Start(ctx, "Ask")
	defer span.End()

	if p.advisor == nil || p.advisor.Chat == nil {
		return "", fmt.Errorf("advisor: %w", common.ErrUnavailable)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question is empty", common.ErrBadRequest)
	}
	if len(question) > MaxQuestionLength {
		return "", fmt.Errorf("%w: question exceeds %d bytes", common.ErrBadRequest, MaxQuestionLength)
	}
	l := p.logger.With(slog.String("method", "Ask"))

	now := p.now()
	window := CustomPeriod(now.AddDate(0, 0, -AskWindowDays), now)
	txs, err := p.transactions.ListRecentTransactions(ctx, window.Start)
	if err != nil {
		l.ErrorContext(ctx, "Failed to load recent transactions", slog.Any("error", err))
		span.RecordError(err)
		return "", fmt.Errorf("failed to load recent transactions: %w", err)
	}

	answer := p.generate(ctx, p.advisor.Chat, BuildQuestionPrompt(question, Summarize(window, txs), txs), l)
	if answer == "" {
		span.SetStatus(codes.Error, "no answer")
		return "", fmt.Errorf("advisor gave no answer: %w", common.ErrUnavailable)
	}
	observability.ReportsTotal.WithLabelValues("ask", "true").Inc()
	return answer, nil
}

// generate returns the trimmed answer, or "" after logging a failure.
func (p *Processor) generate(ctx context.Context, gen categorizer.Generator, prompt string, l *slog.Logger) string {
	if p.advisor.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.advisor.Timeout)
		defer cancel()
	}
	answer, err := gen.Generate(ctx, prompt)
	if err != nil {
		l.WarnContext(ctx, "Advisor request failed", slog.Any("error", err))
		return ""
	}
	return strings.TrimSpace(answer)
}

func insightsLabel(insights string) string {
	if insights == "" {
		return "false"
	}
	return "true"
}

// BuildInsightsPrompt asks for a short reflection on summary. previous, when
// given, is the week before a weekly summary.
func BuildInsightsPrompt(summary *PeriodSummary, previous *PeriodSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a practical personal finance assistant. Write insights about this %s summary for %s.\n\n",
		summary.Period.Kind, summary.Period.Name)

	b.WriteString("TOTALS:\n")
	for _, c := range summary.Currencies {
		fmt.Fprintf(&b, "- %s: income %s, expenses %s, net %s, %d transactions\n",
			c.Currency, c.IncomeTotal.StringFixed(2), c.ExpenseTotal.StringFixed(2), signed(c.Net),
			c.IncomeCount+c.ExpenseCount)
	}

	if previous != nil {
		b.WriteString("\nCOMPARED TO THE PREVIOUS WEEK:\n")
		for _, c := range summary.Currencies {
			before, _ := previous.Currency(c.Currency)
			change := c.ExpenseTotal.Sub(before.ExpenseTotal)
			trend := "similar"
			switch change.Sign() {
			case 1:
				trend = "higher"
			case -1:
				trend = "lower"
			}
			fmt.Fprintf(&b, "- %s: expenses %s (%s), income %s\n",
				c.Currency, signed(change), trend, signed(c.IncomeTotal.Sub(before.IncomeTotal)))
		}
	}

	b.WriteString("\nCATEGORY BREAKDOWN:\n")
	for _, c := range summary.Currencies {
		for _, cat := range c.Categories {
			fmt.Fprintf(&b, "- [%s] %s (%s): %s total, %d transactions, avg %s, range %s-%s\n",
				flowLabel(cat.IsIncome), cat.Category, c.Currency, cat.Total.StringFixed(2), cat.Count,
				cat.Average.StringFixed(2), cat.Smallest.StringFixed(2), cat.Largest.StringFixed(2))
		}
	}

	b.WriteString("\nReply in two or three short paragraphs of plain text. Describe how the period went and what stands out, ")
	b.WriteString("then give one practical suggestion for the next period. Be encouraging and refer to the actual numbers. ")
	b.WriteString("Never add amounts in different currencies together.")
	return b.String()
}

// BuildQuestionPrompt grounds a free-form question in the recent summary and
// the latest transactions. recent is expected newest first.
func BuildQuestionPrompt(question string, summary *PeriodSummary, recent []*repository.Transaction) string {
	var b strings.Builder
	b.WriteString("You are a pragmatic personal finance assistant. Answer the user's question using their recent transactions. ")
	b.WriteString("Ask a clarifying question when the data is not enough, and stay objective.\n\n")

	fmt.Fprintf(&b, "RECENT ACTIVITY (%s):\n", summary.Period.Name)
	if summary.TransactionCount == 0 {
		b.WriteString("- no transactions recorded\n")
	}
	for _, c := range summary.Currencies {
		fmt.Fprintf(&b, "- %s: expenses %s, income %s, net %s\n",
			c.Currency, c.ExpenseTotal.StringFixed(2), c.IncomeTotal.StringFixed(2), signed(c.Net))
	}

	if len(recent) > 0 {
		b.WriteString("\nLATEST TRANSACTIONS:\n")
	}
	for i, tx := range recent {
		if i == askRecentListed {
			break
		}
		fmt.Fprintf(&b, "- %s %s %s - %s - %s\n",
			tx.OccurredAt.UTC().Format("2006-01-02"), flowLabel(tx.IsIncome), money(tx.Amount, tx.Currency),
			tx.Category, tx.Description)
	}

	fmt.Fprintf(&b, "\nQUESTION: %q\n\nAnswer in plain text, at most three short paragraphs.", question)
	return b.String()
}
