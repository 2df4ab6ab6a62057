package interceptors

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on RPC spans.
const (
	AttrRequestID  = attribute.Key("request.id")
	AttrUserID     = attribute.Key("enduser.id")
	AttrStatusCode = attribute.Key("rpc.connect_rpc.status_code")
)

// Codes that describe a bad call rather than a server fault. They leave the
// span status unset.
var callerFaults = map[connect.Code]struct{}{
	connect.CodeCanceled:           {},
	connect.CodeInvalidArgument:    {},
	connect.CodeNotFound:           {},
	connect.CodeAlreadyExists:      {},
	connect.CodePermissionDenied:   {},
	connect.CodeUnauthenticated:    {},
	connect.CodeResourceExhausted:  {},
	connect.CodeFailedPrecondition: {},
}

// NewTracingInterceptor starts a server span per RPC, named
// "capture.v1.CaptureService/ParseMessage" style. A nil tracer uses the
// global provider.
func NewTracingInterceptor(tracer trace.Tracer) connect.UnaryInterceptorFunc {
	if tracer == nil {
		tracer = otel.Tracer("quick-capture/interceptors")
	}
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				return next(ctx, req)
			}

			service, method := splitProcedure(req.Spec().Procedure)
			ctx, span := tracer.Start(ctx, spanName(service, method),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("rpc.system", "connect_rpc"),
					attribute.String("rpc.service", service),
					attribute.String("rpc.method", method),
					attribute.String("network.protocol.name", req.Peer().Protocol),
				),
			)
			defer span.End()

			if id := RequestIDFromContext(ctx); id != "" {
				span.SetAttributes(AttrRequestID.String(id))
			}

			resp, err := next(ctx, req)
			if err == nil {
				span.SetAttributes(AttrStatusCode.String("ok"))
				span.SetStatus(codes.Ok, "")
				return resp, nil
			}

			code := connect.CodeOf(err)
			span.SetAttributes(AttrStatusCode.String(code.String()))
			if _, ok := callerFaults[code]; !ok {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return resp, err
		}
	}
}

// splitProcedure turns "/pkg.Service/Method" into its service and method.
func splitProcedure(procedure string) (service, method string) {
	procedure = strings.TrimPrefix(procedure, "/")
	i := strings.LastIndex(procedure, "/")
	if i < 0 {
		return procedure, ""
	}
	return procedure[:i], procedure[i+1:]
}

func spanName(service, method string) string {
	switch {
	case service == "" && method == "":
		return "rpc"
	case method == "":
		return service
	default:
		return service + "/" + method
	}
}
