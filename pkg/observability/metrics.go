package observability

import (
	"context"
	"errors"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total number of RPC requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quick_capture_rpc_requests_total",
			Help: "Total number of RPC requests",
		},
		[]string{"procedure", "code"},
	)

	// RequestDuration tracks request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quick_capture_rpc_duration_seconds",
			Help:    "RPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"procedure"},
	)

	// ActiveRequests tracks currently active requests
	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quick_capture_rpc_active_requests",
			Help: "Number of active RPC requests",
		},
		[]string{"procedure"},
	)

	// MessagesTotal counts parse results by kind and confidence.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quick_capture_messages_total",
			Help: "Parsed messages by kind and confidence",
		},
		[]string{"kind", "confidence"},
	)

	// ProcessedTotal counts pending messages handled by the processor.
	ProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quick_capture_processed_total",
			Help: "Pending messages handled by the processor, by outcome",
		},
		[]string{"outcome"},
	)

	// CategorizedTotal counts saved transactions by category.
	CategorizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quick_capture_categorized_total",
			Help: "Saved transactions by category",
		},
		[]string{"category"},
	)

	// ProcessorRunDuration observes one ProcessPending batch.
	ProcessorRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quick_capture_processor_run_seconds",
			Help:    "Duration of one processor batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	// WebhookUpdatesTotal counts Telegram updates by how they were handled.
	WebhookUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quick_capture_webhook_updates_total",
			Help: "Telegram webhook updates by result",
		},
		[]string{"result"},
	)

	// ReportsTotal counts generated reports by kind and whether model
	// insights were attached.
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quick_capture_reports_total",
			Help: "Generated reports by kind",
		},
		[]string{"report", "insights"},
	)
)

// Processor outcomes.
const (
	OutcomeCategorized = "categorized"
	OutcomeCorrected   = "corrected"
	OutcomeSkipped     = "skipped"
	OutcomeFailed      = "failed"
)

// NewMetricsInterceptor creates an interceptor that collects Prometheus metrics
func NewMetricsInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure

			ActiveRequests.WithLabelValues(procedure).Inc()
			defer ActiveRequests.WithLabelValues(procedure).Dec()

			start := time.Now()
			defer func() {
				RequestDuration.WithLabelValues(procedure).Observe(time.Since(start).Seconds())
			}()

			resp, err := next(ctx, req)

			RequestsTotal.WithLabelValues(procedure, CodeOf(err)).Inc()
			return resp, err
		}
	}
}

// CodeOf returns the Connect code label for err, "ok" for nil.
func CodeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr.Code().String()
	}
	return "unknown"
}
