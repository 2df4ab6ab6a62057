// Command processor categorizes every pending message once and prints the
// resulting ledger statistics.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/FACorreiaa/quick-capture/cmd/api"
	"github.com/FACorreiaa/quick-capture/pkg/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded, using process environment", slog.Any("error", err))
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("processing failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := api.InitDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	// Failed records stay pending and would head the next batch again.
	for {
		result, err := deps.Processor.ProcessPending(ctx)
		if err != nil {
			return err
		}
		logger.Info("batch processed",
			slog.Int("total", result.Total),
			slog.Int("categorized", result.Categorized),
			slog.Int("corrected", result.Corrected),
			slog.Int("skipped", result.Skipped),
			slog.Int("failed", result.Failed),
		)
		if result.Total < cfg.Processor.BatchSize || result.Failed > 0 {
			break
		}
	}

	stats, err := deps.Processor.Stats(ctx)
	if err != nil {
		return err
	}
	for _, c := range stats.Currencies {
		logger.Info("currency totals",
			slog.String("currency", c.Currency),
			slog.Int64("expense_count", c.ExpenseCount),
			slog.String("expense_total", c.ExpenseTotal.StringFixed(2)),
			slog.Int64("income_count", c.IncomeCount),
			slog.String("income_total", c.IncomeTotal.StringFixed(2)),
			slog.String("net", c.Net.StringFixed(2)),
		)
	}
	for _, c := range stats.Categories {
		logger.Info("category total",
			slog.String("category", c.Category),
			slog.Bool("is_income", c.IsIncome),
			slog.Int64("count", c.Count),
			slog.String("total", c.Total.StringFixed(2)),
		)
	}
	return nil
}
