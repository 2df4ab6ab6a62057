// Command report prints a period summary, a week-by-week comparison or a
// year's tax records.
//
//	report -period month -month 3 -year 2025
//	report -compare 8
//	report -tax 2024 -out tax_records_2024.txt
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/FACorreiaa/quick-capture/cmd/api"
	ledgerservice "github.com/FACorreiaa/quick-capture/internal/domain/ledger/service"
	"github.com/FACorreiaa/quick-capture/pkg/config"
)

const dateLayout = "2006-01-02"

type options struct {
	period   ledgerservice.PeriodRequest
	compare  int
	taxYear  int
	outPath  string
	from, to string
}

func main() {
	var opts options
	var kind string
	flag.StringVar(&kind, "period", "week", "week, month, quarter, year or custom")
	flag.IntVar(&opts.period.WeeksAgo, "weeks-ago", 0, "week offset for -period week")
	flag.IntVar(&opts.period.Year, "year", 0, "year for month, quarter and year periods (default current)")
	flag.IntVar(&opts.period.Month, "month", 0, "month 1-12 (default current)")
	flag.IntVar(&opts.period.Quarter, "quarter", 0, "quarter 1-4 (default current)")
	flag.StringVar(&opts.from, "from", "", "first day of a custom period, "+dateLayout)
	flag.StringVar(&opts.to, "to", "", "last day of a custom period, "+dateLayout)
	flag.IntVar(&opts.compare, "compare", 0, "compare the last N weeks instead")
	flag.IntVar(&opts.taxYear, "tax", 0, "export tax records for this year instead")
	flag.StringVar(&opts.outPath, "out", "", "write the report to this file instead of stdout")
	flag.Parse()
	opts.period.Kind = ledgerservice.PeriodKind(kind)

	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded, using process environment", slog.Any("error", err))
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Logs go to stderr so the report can be piped.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("report failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger) error {
	if err := opts.parseDates(); err != nil {
		return err
	}

	deps, err := api.InitDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	text, err := build(ctx, deps.Processor, opts)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if opts.outPath != "" {
		f, err := os.Create(opts.outPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.outPath, err)
		}
		defer f.Close()
		out = f
	}
	if _, err := fmt.Fprintln(out, text); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if opts.outPath != "" {
		logger.Info("report written", slog.String("path", opts.outPath))
	}
	return nil
}

func (o *options) parseDates() error {
	if o.from != "" {
		t, err := time.Parse(dateLayout, o.from)
		if err != nil {
			return fmt.Errorf("invalid -from: %w", err)
		}
		o.period.From = t
	}
	if o.to != "" {
		t, err := time.Parse(dateLayout, o.to)
		if err != nil {
			return fmt.Errorf("invalid -to: %w", err)
		}
		o.period.To = t
	}
	return nil
}

func build(ctx context.Context, svc ledgerservice.LedgerService, opts options) (string, error) {
	switch {
	case opts.taxYear != 0:
		report, err := svc.TaxReport(ctx, opts.taxYear)
		if err != nil {
			return "", err
		}
		return report.Text(), nil
	case opts.compare != 0:
		comparison, err := svc.CompareWeeks(ctx, opts.compare)
		if err != nil {
			return "", err
		}
		return comparison.Text(), nil
	default:
		summary, err := svc.Summary(ctx, opts.period)
		if err != nil {
			return "", err
		}
		return summary.Text(), nil
	}
}
