package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"liquiditygauge/observability/metrics"
)

// HeaderRequestID carries the request identifier echoed on every response.
const HeaderRequestID = "X-Request-ID"

// Observability traces and measures every request. Spans go to the globally
// registered tracer provider, which is a no-op unless the daemon installs one.
type Observability struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.HTTPMetrics
}

func NewObservability(serviceName string, logger *slog.Logger, m *metrics.HTTPMetrics) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	if serviceName == "" {
		serviceName = "gaugesd"
	}
	return &Observability{logger: logger, tracer: otel.Tracer(serviceName), metrics: m}
}

func (o *Observability) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		parent := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := o.tracer.Start(parent, r.Method+" "+r.URL.Path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.request_id", requestID),
		))
		defer span.End()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		span.SetName(r.Method + " " + route)
		span.SetAttributes(attribute.String("http.route", route), attribute.Int("http.status_code", recorder.status))
		duration := time.Since(start)
		o.metrics.Observe(route, recorder.status, duration)
		o.logger.Debug("gateway: request",
			slog.String("requestId", requestID),
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", recorder.status),
			slog.Duration("duration", duration))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
