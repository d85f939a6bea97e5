package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

type annotationsKey struct{}

// annotations collects fields that inner handlers attach to the access log.
type annotations struct {
	mu     sync.Mutex
	fields []zap.Field
}

// AnnotateRequest adds fields to the access log line of the request carried by
// ctx. It is a no-op outside LoggingMiddleware.
func AnnotateRequest(ctx context.Context, fields ...zap.Field) {
	if ctx == nil {
		return
	}
	a, ok := ctx.Value(annotationsKey{}).(*annotations)
	if !ok {
		return
	}
	a.mu.Lock()
	a.fields = append(a.fields, fields...)
	a.mu.Unlock()
}

// requestAnnotations returns a copy of the fields annotated so far.
func requestAnnotations(ctx context.Context) []zap.Field {
	a, ok := ctx.Value(annotationsKey{}).(*annotations)
	if !ok {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]zap.Field(nil), a.fields...)
}

// LoggingMiddleware writes one access log line per request. Policy handlers
// annotate it with the evaluated customer and the decision outcome.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			notes := &annotations{}

			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), annotationsKey{}, notes)))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", routePattern(r)),
				zap.Int("status", rw.status),
				zap.String("trace_id", TraceIDFromContext(r.Context())),
				zap.Duration("duration", time.Since(start)),
			}
			if replay := rw.Header().Get("X-Idempotent-Replay"); replay != "" {
				fields = append(fields, zap.String("idempotent_replay", replay))
			}
			notes.mu.Lock()
			fields = append(fields, notes.fields...)
			notes.mu.Unlock()

			switch {
			case rw.status >= http.StatusInternalServerError:
				logger.Error("http_request", fields...)
			case rw.status >= http.StatusBadRequest:
				logger.Warn("http_request", fields...)
			default:
				logger.Info("http_request", fields...)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}
