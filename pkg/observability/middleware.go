package observability

import (
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware records a span and request metrics for every request.
// route derives the metric label from the request; pass the router's
// pattern function so path parameters do not explode label cardinality.
// A nil route falls back to the raw URL path.
func HTTPMiddleware(metrics Metrics, tracer trace.Tracer, route func(*http.Request) string) func(http.Handler) http.Handler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := r.Context()
			var span trace.Span
			if tracer != nil {
				ctx, span = tracer.Start(ctx, SpanHTTPRequest,
					trace.WithAttributes(
						attribute.String("http.method", r.Method),
						attribute.String("http.path", r.URL.Path),
					))
				defer span.End()
			}

			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			label := r.URL.Path
			if route != nil {
				if p := route(r); p != "" {
					label = p
				}
			}

			if span != nil {
				span.SetAttributes(attribute.Int("http.status_code", wrapped.status))
				if wrapped.status >= 400 {
					span.SetAttributes(attribute.String("error.type", fmt.Sprintf("HTTP %d", wrapped.status)))
				}
			}
			metrics.RecordHTTPRequest(r.Method, label, wrapped.status, time.Since(start))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.status = http.StatusOK
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

// Flush implements http.Flusher for streaming handlers.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
