package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayo6706/wallet-policy/internal/api/problem"
	"github.com/go-chi/httprate"
)

func rateLimited(scope string, rps int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r, http.StatusTooManyRequests, problem.Type("rate-limit-exceeded"), "",
			fmt.Sprintf("rate limit of %d req/s exceeded for this %s", rps, scope))
	}
}

// PublicRateLimiter limits health, metrics and docs traffic per client IP.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimited("IP", rps)),
	)
}

// CallerRateLimiter gives each calling service its own budget. Many wallet
// instances share one service subject, so the budget is per service rather
// than per pod. It must run after AuthMiddleware.
func CallerRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if caller, ok := CallerFromContext(r.Context()); ok {
				return "caller:" + caller.Subject, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(rateLimited("caller", rps)),
	)
}
