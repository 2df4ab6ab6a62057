package observability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "ok", CodeOf(nil))
	assert.Equal(t, "unknown", CodeOf(errors.New("plain")))
	assert.Equal(t, "not_found", CodeOf(connect.NewError(connect.CodeNotFound, errors.New("x"))))
	assert.Equal(t, "invalid_argument", CodeOf(fmt.Errorf("wrapped: %w", connect.NewError(connect.CodeInvalidArgument, errors.New("x")))))
}

func TestMetricsInterceptor(t *testing.T) {
	const procedure = "/test.v1.MetricsService/Echo"
	interceptor := NewMetricsInterceptor()

	ok := interceptor(func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) {
		return connect.NewResponse(&struct{}{}), nil
	})
	failing := interceptor(func(context.Context, connect.AnyRequest) (connect.AnyResponse, error) {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("bad"))
	})

	req := connect.NewRequest(&struct{}{})
	// A bare NewRequest carries an empty Spec.
	_, _ = ok(context.Background(), withProcedure(req, procedure))
	_, _ = failing(context.Background(), withProcedure(req, procedure))

	assert.Equal(t, float64(1), testutil.ToFloat64(RequestsTotal.WithLabelValues(procedure, "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(RequestsTotal.WithLabelValues(procedure, "invalid_argument")))
	assert.Equal(t, float64(0), testutil.ToFloat64(ActiveRequests.WithLabelValues(procedure)))
}

type specRequest struct {
	connect.AnyRequest
	spec connect.Spec
}

func (r specRequest) Spec() connect.Spec { return r.spec }

func withProcedure(req connect.AnyRequest, procedure string) connect.AnyRequest {
	return specRequest{AnyRequest: req, spec: connect.Spec{Procedure: procedure}}
}
