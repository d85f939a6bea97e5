package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/ayo6706/wallet-policy/internal/api/problem"
	"go.uber.org/zap"
)

// RecoverMiddleware turns a panicking handler into a 500 problem. A panic
// mid-resolve may already have granted cashback, so the log carries the
// caller and customer annotations needed to reconcile usage. It must run
// inside LoggingMiddleware to see them.
func RecoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				fields := []zap.Field{
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("route", routePattern(r)),
					zap.String("trace_id", TraceIDFromContext(r.Context())),
					zap.ByteString("stack", debug.Stack()),
				}
				fields = append(fields, requestAnnotations(r.Context())...)
				logger.Error("panic recovered", fields...)

				problem.Write(w, r, http.StatusInternalServerError, problem.Type("internal-server-error"), "", "unexpected server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
