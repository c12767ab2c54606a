package observability

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware instruments HTTP requests with a span and request metrics.
// With telemetry disabled it is a pass-through.
func HTTPMiddleware(tel *Telemetry, serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			tracer := tel.TracerProvider().Tracer(serviceName)

			attrs := []attribute.KeyValue{
				AttrHTTPMethod.String(r.Method),
				AttrHTTPTarget.String(r.URL.Path),
			}
			if r.Host != "" {
				attrs = append(attrs, AttrHTTPHost.String(r.Host))
			}
			if r.RemoteAddr != "" {
				attrs = append(attrs, AttrHTTPRemoteAddr.String(r.RemoteAddr))
			}

			ctx, span := tracer.Start(
				r.Context(),
				r.Method+" "+r.URL.Path,
				trace.WithAttributes(attrs...),
			)

			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))

			duration := time.Since(start)

			if m := tel.Metrics(); m != nil {
				attrs := []attribute.KeyValue{
					AttrHTTPMethod.String(r.Method),
					AttrHTTPStatusCode.Int(rw.status),
				}
				m.HTTPRequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
				m.HTTPRequestDuration.Record(ctx, float64(duration.Milliseconds()),
					metric.WithAttributes(attrs...))
			}

			if rw.status >= 400 {
				span.SetStatus(codes.Error, http.StatusText(rw.status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.SetAttributes(AttrHTTPStatusCode.Int(rw.status))
			span.End()
		})
	}
}

// RecordFlowStarted counts a login attempt.
func (t *Telemetry) RecordFlowStarted(ctx context.Context) {
	if t.metrics == nil {
		return
	}
	t.metrics.FlowStarted.Add(ctx, 1)
}

// RecordFlowCompleted counts a finished login attempt; result is "success",
// "invalid_state", or "upstream_error".
func (t *Telemetry) RecordFlowCompleted(ctx context.Context, result string) {
	if t.metrics == nil {
		return
	}
	t.metrics.FlowCompleted.Add(ctx, 1,
		metric.WithAttributes(AttrFlowResult.String(result)))
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}
