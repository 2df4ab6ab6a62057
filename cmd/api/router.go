package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	c "connectrpc.com/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	capturehandler "github.com/FACorreiaa/quick-capture/internal/domain/capture/handler"
	ledgerhandler "github.com/FACorreiaa/quick-capture/internal/domain/ledger/handler"
	"github.com/FACorreiaa/quick-capture/pkg/interceptors"
	"github.com/FACorreiaa/quick-capture/pkg/observability"
)

// SetupRouter configures all routes and returns the HTTP service
func SetupRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	jwtSecret := []byte(deps.Config.Auth.JWTSecret)
	if len(jwtSecret) == 0 {
		deps.Logger.Warn("JWT secret is empty; authentication interceptor will reject requests")
	}

	publicProcedures := []string{
		capturehandler.ParseMessageProcedure,
	}

	tracer := otel.GetTracerProvider().Tracer(deps.Config.Observability.ServiceName + "/api")

	chain := []connect.Interceptor{
		interceptors.NewRequestIDInterceptor("X-Request-ID"),
		interceptors.NewTracingInterceptor(tracer),
	}
	if deps.Config.Server.RateLimitPerSecond > 0 && deps.Config.Server.RateLimitBurst > 0 {
		limiter := rate.NewLimiter(
			rate.Limit(float64(deps.Config.Server.RateLimitPerSecond)),
			deps.Config.Server.RateLimitBurst,
		)
		chain = append(chain, interceptors.NewRateLimitInterceptor(limiter))
	}
	chain = append(chain,
		interceptors.NewRecoveryInterceptor(deps.Logger),
		interceptors.NewLoggingInterceptor(deps.Logger),
		interceptors.NewAuthInterceptor(jwtSecret, publicProcedures...),
		observability.NewMetricsInterceptor(),
	)
	interceptorChain := connect.WithInterceptors(chain...)

	registerConnectRoutes(mux, deps, interceptorChain)

	if deps.TelegramHandler != nil {
		mux.Handle("POST "+capturehandler.WebhookPath, deps.TelegramHandler)
		deps.Logger.Info("registered webhook", "path", capturehandler.WebhookPath)
	}

	registerUtilityRoutes(mux, deps)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   c.AllowedMethods(),
		AllowedHeaders:   append(c.AllowedHeaders(), "Authorization", "X-Request-ID"),
		ExposedHeaders:   append(c.ExposedHeaders(), "X-Request-ID"),
		AllowCredentials: false,
		MaxAge:           7200,
	})

	return corsHandler.Handler(mux)
}

// registerConnectRoutes registers all Connect RPC services
func registerConnectRoutes(mux *http.ServeMux, deps *Dependencies, opts connect.HandlerOption) {
	maxBody := int64(deps.Config.Server.MaxMessageBytes) + 1024

	capturePath, captureHandler := capturehandler.NewCaptureServiceHandler(deps.CaptureHandler, opts)
	mux.Handle(capturePath, limitBody(captureHandler, maxBody))
	deps.Logger.Info("registered Connect RPC service", "path", capturePath)

	ledgerPath, ledgerHandler := ledgerhandler.NewLedgerServiceHandler(deps.LedgerHandler, opts)
	mux.Handle(ledgerPath, limitBody(ledgerHandler, maxBody))
	deps.Logger.Info("registered Connect RPC service", "path", ledgerPath)

	deps.Logger.Info("Connect RPC routes configured")
}

func limitBody(next http.Handler, maxBodyBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Content-Type-Options", "nosniff")

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		next.ServeHTTP(w, r)
	})
}

// registerUtilityRoutes registers health check, metrics, and other utility routes
func registerUtilityRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if err := deps.Health(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, writeErr := w.Write([]byte("database unhealthy")); writeErr != nil {
				deps.Logger.Error("failed to write health response", slog.Any("error", writeErr))
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			deps.Logger.Error("failed to write health response", slog.Any("error", err))
		}
	})
	deps.Logger.Info("registered health check", "path", "/health")

	mux.HandleFunc("/health/details", func(w http.ResponseWriter, _ *http.Request) {
		type status struct {
			Status string `json:"status"`
			Detail string `json:"detail,omitempty"`
		}
		result := map[string]status{
			"db":       {Status: "ok", Detail: deps.Config.Database.Driver},
			"llm":      {Status: "ok"},
			"telegram": {Status: "ok"},
			"ready":    {Status: "ok"},
		}

		if err := deps.Health(); err != nil {
			result["db"] = status{Status: "fail", Detail: err.Error()}
			result["ready"] = status{Status: "fail", Detail: "db unavailable"}
		}
		if deps.Config.LLM.GeminiAPIKey == "" {
			result["llm"] = status{Status: "warn", Detail: "GEMINI_API_KEY missing, fallback categories only"}
		}
		switch {
		case deps.TelegramHandler == nil:
			result["telegram"] = status{Status: "warn", Detail: "webhook disabled"}
		case deps.Bot == nil:
			result["telegram"] = status{Status: "warn", Detail: "replies disabled"}
		}

		code := http.StatusOK
		if result["ready"].Status == "fail" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(result); err != nil {
			deps.Logger.Error("failed to encode health details", slog.Any("error", err))
		}
	})
	deps.Logger.Info("registered health details", "path", "/health/details")

	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ready")); err != nil {
			deps.Logger.Error("failed to write readiness response", slog.Any("error", err))
		}
	})
	deps.Logger.Info("registered readiness check", "path", "/ready")

	if deps.Config.Observability.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		deps.Logger.Info("registered metrics endpoint", "path", "/metrics")
	}
}
