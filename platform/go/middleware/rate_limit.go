package middleware

import (
	"fmt"
	"net/http"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/zenGate-Global/rentflow/platform/go/httpapi"
)

// RateLimit throttles requests per client IP. rate uses the limiter format, e.g. "30-M".
// Counters live in process memory.
func RateLimit(rate string, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit %q: %w", rate, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	instance := limiter.New(memory.NewStore(), parsed, limiter.WithTrustForwardHeader(true))
	mw := stdlib.NewMiddleware(instance,
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("rate limit reached", zap.String("path", r.URL.Path))
			httpapi.WriteProblem(w, httpapi.NewProblem(
				"Too many requests",
				"rate limit exceeded, retry later",
				httpapi.ProblemTypeRateLimited,
				http.StatusTooManyRequests,
				nil,
			))
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("rate limiter failed", zap.Error(err))
			httpapi.WriteProblem(w, httpapi.NewProblem(
				"Internal server error",
				"an unexpected error occurred",
				httpapi.ProblemTypeInternal,
				http.StatusInternalServerError,
				nil,
			))
		}),
	)
	return mw.Handler, nil
}
