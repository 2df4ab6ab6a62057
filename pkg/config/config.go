// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the full service configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Telegram      TelegramConfig
	LLM           LLMConfig
	Parser        ParserConfig
	Processor     ProcessorConfig
	Reports       ReportsConfig
	Profiling     ProfilingConfig
	Observability ObservabilityConfig
	LogLevel      string
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
	MaxMessageBytes    int
}

type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
}

// DSN builds a postgres connection URL.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Name,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

type AuthConfig struct {
	JWTSecret string
}

type TelegramConfig struct {
	BotToken       string
	WebhookSecret  string
	AllowedUserIDs []int64
	APIBaseURL     string
}

type LLMConfig struct {
	GeminiAPIKey   string
	Model          string
	Timeout        time.Duration
	CategoriesFile string
}

type ParserConfig struct {
	BaseCurrency  string
	CommandPrefix string
}

type ProcessorConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
}

// ReportsConfig drives period summaries, the tax report and the advisor.
type ReportsConfig struct {
	// BusinessCategories are listed as potential deductions in the tax
	// report.
	BusinessCategories []string
	// AdvisorTimeout bounds insight and question requests to the model.
	AdvisorTimeout time.Duration
}

type ProfilingConfig struct {
	Enabled bool
	Port    int
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	ServiceName    string
}

// Load reads the configuration. Call godotenv.Load first if a .env file
// should be honoured.
func Load() (*Config, error) {
	allowed, err := getEnvAsInt64Slice("TELEGRAM_ALLOWED_USER_IDS")
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvAsInt("RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),
			MaxMessageBytes:    getEnvAsInt("MAX_MESSAGE_BYTES", 4096),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnvAsInt("DB_PORT", 5432),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", "postgres"),
			Name:       getEnv("DB_NAME", "quick_capture"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "quick_capture.db"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Telegram: TelegramConfig{
			BotToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
			WebhookSecret:  getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
			AllowedUserIDs: allowed,
			APIBaseURL:     getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
		},
		LLM: LLMConfig{
			GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
			Model:          getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			Timeout:        getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
			CategoriesFile: getEnv("CATEGORIES_FILE", ""),
		},
		Parser: ParserConfig{
			BaseCurrency:  strings.ToUpper(getEnv("BASE_CURRENCY", "USD")),
			CommandPrefix: getEnv("COMMAND_PREFIX", "/"),
		},
		Processor: ProcessorConfig{
			Enabled:   getEnvAsBool("PROCESSOR_ENABLED", true),
			Interval:  getEnvAsDuration("PROCESSOR_INTERVAL", time.Minute),
			BatchSize: getEnvAsInt("PROCESSOR_BATCH_SIZE", 50),
		},
		Reports: ReportsConfig{
			BusinessCategories: getEnvAsStringSlice("REPORT_BUSINESS_CATEGORIES",
				[]string{"Professional & Work", "Education & Learning", "Transportation"}),
			AdvisorTimeout: getEnvAsDuration("ADVISOR_TIMEOUT", time.Minute),
		},
		Profiling: ProfilingConfig{
			Enabled: getEnvAsBool("PPROF_ENABLED", false),
			Port:    getEnvAsInt("PPROF_PORT", 6060),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			ServiceName:    getEnv("SERVICE_NAME", "quick-capture"),
		},
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	if len(c.Parser.BaseCurrency) != 3 {
		errs = append(errs, fmt.Errorf("BASE_CURRENCY must be a 3-letter code, got %q", c.Parser.BaseCurrency))
	}
	if c.Server.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_BYTES must be positive"))
	}
	if c.Processor.BatchSize <= 0 {
		errs = append(errs, errors.New("PROCESSOR_BATCH_SIZE must be positive"))
	}
	if c.Processor.Enabled && c.Processor.Interval <= 0 {
		errs = append(errs, errors.New("PROCESSOR_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func getEnvAsBool(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("invalid boolean in environment, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

// getEnvAsStringSlice splits a comma separated list, dropping empty items.
func getEnvAsStringSlice(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAsInt64Slice parses a comma separated list of integers.
func getEnvAsInt64Slice(key string) ([]int64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}
