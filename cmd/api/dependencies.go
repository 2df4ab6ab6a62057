package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	capturehandler "github.com/FACorreiaa/quick-capture/internal/domain/capture/handler"
	"github.com/FACorreiaa/quick-capture/internal/domain/capture/parser"
	capturerepo "github.com/FACorreiaa/quick-capture/internal/domain/capture/repository"
	captureservice "github.com/FACorreiaa/quick-capture/internal/domain/capture/service"
	"github.com/FACorreiaa/quick-capture/internal/domain/ledger/categorizer"
	ledgerhandler "github.com/FACorreiaa/quick-capture/internal/domain/ledger/handler"
	ledgerrepo "github.com/FACorreiaa/quick-capture/internal/domain/ledger/repository"
	ledgerservice "github.com/FACorreiaa/quick-capture/internal/domain/ledger/service"

	"github.com/FACorreiaa/quick-capture/pkg/config"
	"github.com/FACorreiaa/quick-capture/pkg/db"
	"github.com/FACorreiaa/quick-capture/pkg/telegram"
)

// Model settings for the advisor. Categorization keeps the generator's own.
const (
	insightsTemperature = 0.4
	insightsMaxTokens   = 500
	chatTemperature     = 0.7
	chatMaxTokens       = 400
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger

	// Exactly one of DB and SQLite is set, depending on Database.Driver.
	DB     *db.DB
	SQLite *sql.DB

	// Repositories
	MessageRepo     capturerepo.MessageRepository
	TransactionRepo ledgerrepo.TransactionRepository

	// Services
	Parser         *parser.Parser
	Categorizer    categorizer.Categorizer
	CaptureService *captureservice.CaptureServiceImpl
	Processor      *ledgerservice.Processor
	Bot            *telegram.Client

	// Handlers
	CaptureHandler  *capturehandler.CaptureHandler
	LedgerHandler   *ledgerhandler.LedgerHandler
	TelegramHandler *capturehandler.TelegramHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase connects to the configured driver and runs migrations
func (d *Dependencies) initDatabase(ctx context.Context) error {
	if d.Config.Database.Driver == config.DriverSQLite {
		sqlDB, err := db.OpenSQLite(ctx, d.Config.Database.SQLitePath, d.Logger)
		if err != nil {
			return err
		}
		d.SQLite = sqlDB
		return nil
	}

	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	switch {
	case d.DB != nil:
		d.MessageRepo = capturerepo.NewPostgresMessageRepository(d.DB.Pool)
		d.TransactionRepo = ledgerrepo.NewPostgresTransactionRepository(d.DB.Pool)
	case d.SQLite != nil:
		d.MessageRepo = capturerepo.NewSQLiteMessageRepository(d.SQLite)
		d.TransactionRepo = ledgerrepo.NewSQLiteTransactionRepository(d.SQLite)
	default:
		return fmt.Errorf("no database configured")
	}

	d.Logger.Info("repositories initialized", slog.String("driver", d.Config.Database.Driver))
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices(ctx context.Context) error {
	d.Parser = parser.New(
		parser.WithBaseCurrency(d.Config.Parser.BaseCurrency),
		parser.WithCommandPrefix(d.Config.Parser.CommandPrefix),
	)

	gen, err := NewGenerator(ctx, d.Config.LLM, d.Logger)
	if err != nil {
		return err
	}
	cat, err := NewCategorizer(d.Config.LLM, gen, d.Logger)
	if err != nil {
		return err
	}
	d.Categorizer = cat

	d.CaptureService = captureservice.NewCaptureService(d.Parser, d.MessageRepo, d.Config.Server.MaxMessageBytes, d.Logger)
	opts := []ledgerservice.ProcessorOption{ledgerservice.WithBusinessCategories(d.Config.Reports.BusinessCategories)}
	if advisor := NewAdvisor(gen, d.Config.Reports); advisor != nil {
		opts = append(opts, ledgerservice.WithAdvisor(advisor))
	}
	d.Processor = ledgerservice.NewProcessor(d.MessageRepo, d.TransactionRepo, d.Categorizer, d.Config.Processor.BatchSize, d.Logger, opts...)

	if d.Config.Telegram.BotToken != "" {
		d.Bot = telegram.NewClient(d.Config.Telegram.BotToken, d.Config.Telegram.APIBaseURL, nil)
	}

	d.Logger.Info("services initialized")
	return nil
}

// NewGenerator returns the Gemini client, or nil when no API key is set.
func NewGenerator(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*categorizer.GeminiGenerator, error) {
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set; every transaction gets the fallback category and questions are disabled")
		return nil, nil
	}
	gen, err := categorizer.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	logger.Info("gemini enabled", slog.String("model", cfg.Model))
	return gen, nil
}

// NewCategorizer returns the Gemini categorizer when gen is set and the
// fallback categorizer otherwise.
func NewCategorizer(cfg config.LLMConfig, gen *categorizer.GeminiGenerator, logger *slog.Logger) (categorizer.Categorizer, error) {
	categories, err := categorizer.LoadCategories(cfg.CategoriesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	if gen == nil {
		return categorizer.NewFallbackCategorizer(categories), nil
	}
	return categorizer.NewLLMCategorizer(gen, categories, cfg.Timeout, logger), nil
}

// NewAdvisor tunes gen for summary insights and questions. It returns nil
// without a generator.
func NewAdvisor(gen *categorizer.GeminiGenerator, cfg config.ReportsConfig) *ledgerservice.Advisor {
	if gen == nil {
		return nil
	}
	return &ledgerservice.Advisor{
		Insights: gen.WithSettings(insightsTemperature, insightsMaxTokens),
		Chat:     gen.WithSettings(chatTemperature, chatMaxTokens),
		Timeout:  cfg.AdvisorTimeout,
	}
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.CaptureHandler = capturehandler.NewCaptureHandler(d.CaptureService)
	d.LedgerHandler = ledgerhandler.NewLedgerHandler(d.Processor)

	if d.Config.Telegram.WebhookSecret == "" {
		d.Logger.Warn("TELEGRAM_WEBHOOK_SECRET is empty; the telegram webhook is disabled")
	} else {
		var bot telegram.Sender
		if d.Bot != nil {
			bot = d.Bot
		} else {
			d.Logger.Warn("TELEGRAM_BOT_TOKEN is empty; webhook updates are captured without replies")
		}
		d.TelegramHandler = capturehandler.NewTelegramHandler(
			d.CaptureService,
			d.Processor,
			bot,
			capturehandler.WebhookConfig{
				Secret:         d.Config.Telegram.WebhookSecret,
				AllowedUserIDs: d.Config.Telegram.AllowedUserIDs,
				RatePerSecond:  1,
				Burst:          5,
			},
			d.Logger,
		)
	}

	d.Logger.Info("handlers initialized")
	return nil
}

// Health pings whichever database is configured.
func (d *Dependencies) Health() error {
	switch {
	case d.DB != nil:
		return d.DB.Health()
	case d.SQLite != nil:
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return d.SQLite.PingContext(ctx)
	default:
		return fmt.Errorf("no database configured")
	}
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	if d.SQLite != nil {
		if err := d.SQLite.Close(); err != nil {
			d.Logger.Error("failed to close sqlite", slog.Any("error", err))
		}
	}
	d.Logger.Info("cleanup completed")
}
