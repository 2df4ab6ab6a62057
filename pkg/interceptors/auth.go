package interceptors

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/quick-capture/internal/domain/common"
)

type claimsKey struct{}

// AuthInterceptor requires a valid HS256 bearer token on every procedure
// except the public ones.
type AuthInterceptor struct {
	secret []byte
	public map[string]struct{}
}

// NewAuthInterceptor creates an auth interceptor. With an empty secret every
// non-public procedure is rejected.
func NewAuthInterceptor(secret []byte, publicProcedures ...string) *AuthInterceptor {
	public := make(map[string]struct{}, len(publicProcedures))
	for _, p := range publicProcedures {
		public[p] = struct{}{}
	}
	return &AuthInterceptor{secret: secret, public: public}
}

// WrapUnary implements connect.Interceptor.
func (i *AuthInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		if _, ok := i.public[req.Spec().Procedure]; ok {
			return next(ctx, req)
		}

		claims, err := i.authenticate(req.Header().Get("Authorization"))
		if err != nil {
			return nil, connect.NewError(connect.CodeUnauthenticated, err)
		}
		trace.SpanFromContext(ctx).SetAttributes(AttrUserID.Int64(claims.UserID))
		return next(context.WithValue(ctx, claimsKey{}, claims), req)
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *AuthInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

// WrapStreamingHandler implements connect.Interceptor.
func (i *AuthInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if _, ok := i.public[conn.Spec().Procedure]; ok {
			return next(ctx, conn)
		}
		claims, err := i.authenticate(conn.RequestHeader().Get("Authorization"))
		if err != nil {
			return connect.NewError(connect.CodeUnauthenticated, err)
		}
		return next(context.WithValue(ctx, claimsKey{}, claims), conn)
	}
}

func (i *AuthInterceptor) authenticate(header string) (*common.Claims, error) {
	if len(i.secret) == 0 {
		return nil, fmt.Errorf("%w: authentication is not configured", common.ErrUnauthenticated)
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: missing bearer token", common.ErrUnauthenticated)
	}

	claims := &common.Claims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnauthenticated, err)
	}

	if claims.UserID == 0 {
		id, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("%w: token carries no user id", common.ErrUnauthenticated)
		}
		claims.UserID = id
	}
	return claims, nil
}

// ClaimsFromContext returns the claims stored by AuthInterceptor.
func ClaimsFromContext(ctx context.Context) (*common.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*common.Claims)
	return claims, ok
}

// UserIDFromContext returns the authenticated user's ID.
func UserIDFromContext(ctx context.Context) (int64, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return 0, common.ErrUnauthenticated
	}
	return claims.UserID, nil
}

// WithClaims stores claims in ctx the way AuthInterceptor does.
func WithClaims(ctx context.Context, claims *common.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// IssueToken signs an HS256 token for userID that expires after ttl.
func IssueToken(secret []byte, userID int64, username string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is required")
	}
	now := time.Now()
	claims := common.Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}
