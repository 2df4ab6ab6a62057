package interceptors

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/quick-capture/internal/domain/common"
	"github.com/FACorreiaa/quick-capture/pkg/rpc"
)

const (
	publicProcedure  = "/test.v1.EchoService/Public"
	privateProcedure = "/test.v1.EchoService/Private"
	panicProcedure   = "/test.v1.EchoService/Panic"
)

type echoRequest struct {
	Text string `json:"text"`
}

type echoResponse struct {
	Text      string `json:"text"`
	UserID    int64  `json:"user_id"`
	RequestID string `json:"request_id"`
}

var testSecret = []byte("test-secret")

func echo(ctx context.Context, req *connect.Request[echoRequest]) (*connect.Response[echoResponse], error) {
	userID, _ := UserIDFromContext(ctx)
	return connect.NewResponse(&echoResponse{
		Text:      req.Msg.Text,
		UserID:    userID,
		RequestID: RequestIDFromContext(ctx),
	}), nil
}

func newTestServer(t *testing.T, interceptors ...connect.Interceptor) *httptest.Server {
	t.Helper()
	opts := rpc.HandlerOptions(connect.WithInterceptors(interceptors...))

	mux := http.NewServeMux()
	mux.Handle(publicProcedure, connect.NewUnaryHandler(publicProcedure, echo, opts...))
	mux.Handle(privateProcedure, connect.NewUnaryHandler(privateProcedure, echo, opts...))
	mux.Handle(panicProcedure, connect.NewUnaryHandler(panicProcedure,
		func(context.Context, *connect.Request[echoRequest]) (*connect.Response[echoResponse], error) {
			panic("boom")
		}, opts...))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, procedure string, header http.Header) (*connect.Response[echoResponse], error) {
	t.Helper()
	client := connect.NewClient[echoRequest, echoResponse](srv.Client(), srv.URL+procedure, connect.WithCodec(rpc.JSONCodec{}))
	req := connect.NewRequest(&echoRequest{Text: "coffee 5"})
	for k, v := range header {
		req.Header()[k] = v
	}
	return client.CallUnary(context.Background(), req)
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestAuthInterceptor(t *testing.T) {
	srv := newTestServer(t, NewAuthInterceptor(testSecret, publicProcedure))

	resp, err := call(t, srv, publicProcedure, nil)
	require.NoError(t, err)
	assert.Equal(t, "coffee 5", resp.Msg.Text)
	assert.Zero(t, resp.Msg.UserID)

	_, err = call(t, srv, privateProcedure, nil)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	token, err := IssueToken(testSecret, 42, "ana", time.Hour)
	require.NoError(t, err)
	resp, err = call(t, srv, privateProcedure, bearer(token))
	require.NoError(t, err)
	assert.Equal(t, int64(42), resp.Msg.UserID)
}

func TestAuthInterceptor_RejectsBadTokens(t *testing.T) {
	srv := newTestServer(t, NewAuthInterceptor(testSecret))

	expired, err := IssueToken(testSecret, 42, "ana", -time.Minute)
	require.NoError(t, err)
	wrongKey, err := IssueToken([]byte("other"), 42, "ana", time.Hour)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, common.Claims{UserID: 42}).SignedString(testSecret)
	require.NoError(t, err)
	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, common.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(testSecret)
	require.NoError(t, err)

	for name, header := range map[string]http.Header{
		"expired":      bearer(expired),
		"wrong key":    bearer(wrongKey),
		"no expiry":    bearer(noExpiry),
		"no user":      bearer(noUser),
		"not bearer":   {"Authorization": []string{"Basic abc"}},
		"empty bearer": bearer(""),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := call(t, srv, privateProcedure, header)
			assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
		})
	}
}

func TestAuthInterceptor_EmptySecretRejects(t *testing.T) {
	srv := newTestServer(t, NewAuthInterceptor(nil))

	token, err := IssueToken(testSecret, 42, "ana", time.Hour)
	require.NoError(t, err)
	_, err = call(t, srv, privateProcedure, bearer(token))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestIssueToken_RequiresSecret(t *testing.T) {
	_, err := IssueToken(nil, 1, "", time.Hour)
	assert.Error(t, err)
}

func TestUserIDFromContext(t *testing.T) {
	_, err := UserIDFromContext(context.Background())
	assert.ErrorIs(t, err, common.ErrUnauthenticated)

	id, err := UserIDFromContext(WithClaims(context.Background(), &common.Claims{UserID: 9}))
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
}

func TestRequestIDInterceptor(t *testing.T) {
	srv := newTestServer(t, NewRequestIDInterceptor("X-Request-ID"))

	resp, err := call(t, srv, publicProcedure, http.Header{"X-Request-Id": []string{"req-123"}})
	require.NoError(t, err)
	assert.Equal(t, "req-123", resp.Msg.RequestID)
	assert.Equal(t, "req-123", resp.Header().Get("X-Request-ID"))

	resp, err = call(t, srv, publicProcedure, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Msg.RequestID)
	assert.Equal(t, resp.Msg.RequestID, resp.Header().Get("X-Request-ID"))
}

func TestRateLimitInterceptor(t *testing.T) {
	srv := newTestServer(t, NewRateLimitInterceptor(rate.NewLimiter(rate.Every(time.Hour), 1)))

	_, err := call(t, srv, publicProcedure, nil)
	require.NoError(t, err)

	_, err = call(t, srv, publicProcedure, nil)
	assert.Equal(t, connect.CodeResourceExhausted, connect.CodeOf(err))
}

func TestRecoveryAndLoggingInterceptors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := newTestServer(t,
		NewRequestIDInterceptor("X-Request-ID"),
		NewTracingInterceptor(nil),
		NewRecoveryInterceptor(logger),
		NewLoggingInterceptor(logger),
	)

	_, err := call(t, srv, panicProcedure, nil)
	var connectErr *connect.Error
	require.True(t, errors.As(err, &connectErr))
	assert.Equal(t, connect.CodeInternal, connectErr.Code())
	assert.NotEmpty(t, connectErr.Meta().Get("X-Request-ID"))

	resp, err := call(t, srv, publicProcedure, nil)
	require.NoError(t, err)
	assert.Equal(t, "coffee 5", resp.Msg.Text)
}

func TestSplitProcedure(t *testing.T) {
	tests := []struct {
		procedure string
		service   string
		method    string
		span      string
	}{
		{"/capture.v1.CaptureService/ParseMessage", "capture.v1.CaptureService", "ParseMessage", "capture.v1.CaptureService/ParseMessage"},
		{"/ledger.v1.LedgerService/GetStats", "ledger.v1.LedgerService", "GetStats", "ledger.v1.LedgerService/GetStats"},
		{"noslash", "noslash", "", "noslash"},
		{"", "", "", "rpc"},
	}

	for _, tt := range tests {
		service, method := splitProcedure(tt.procedure)
		assert.Equal(t, tt.service, service, tt.procedure)
		assert.Equal(t, tt.method, method, tt.procedure)
		assert.Equal(t, tt.span, spanName(service, method), tt.procedure)
	}
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestTracingInterceptor(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	srv := newTestServer(t,
		NewRequestIDInterceptor("X-Request-ID"),
		NewTracingInterceptor(provider.Tracer("test")),
		NewRecoveryInterceptor(slog.New(slog.NewTextHandler(io.Discard, nil))),
		NewAuthInterceptor(testSecret, publicProcedure, panicProcedure),
	)

	token, err := IssueToken(testSecret, 42, "ana", time.Hour)
	require.NoError(t, err)
	_, err = call(t, srv, privateProcedure, bearer(token))
	require.NoError(t, err)
	_, err = call(t, srv, privateProcedure, nil)
	require.Error(t, err)
	_, err = call(t, srv, panicProcedure, nil)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	ok := spans[0]
	assert.Equal(t, "test.v1.EchoService/Private", ok.Name())
	assert.Equal(t, trace.SpanKindServer, ok.SpanKind())
	assert.Equal(t, codes.Ok, ok.Status().Code)
	okAttrs := attrs(ok)
	assert.Equal(t, "test.v1.EchoService", okAttrs["rpc.service"].AsString())
	assert.Equal(t, "Private", okAttrs["rpc.method"].AsString())
	assert.Equal(t, int64(42), okAttrs[AttrUserID].AsInt64())
	assert.Equal(t, "ok", okAttrs[AttrStatusCode].AsString())
	assert.NotEmpty(t, okAttrs[AttrRequestID].AsString())

	unauthenticated := spans[1]
	assert.Equal(t, codes.Unset, unauthenticated.Status().Code)
	assert.Equal(t, "unauthenticated", attrs(unauthenticated)[AttrStatusCode].AsString())
	assert.NotContains(t, attrs(unauthenticated), AttrUserID)

	internal := spans[2]
	assert.Equal(t, "test.v1.EchoService/Panic", internal.Name())
	assert.Equal(t, codes.Error, internal.Status().Code)
	assert.Equal(t, "internal", attrs(internal)[AttrStatusCode].AsString())
}
