package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/rentflow/platform/go/auth"
	"github.com/zenGate-Global/rentflow/platform/go/httpapi"
	platformlogging "github.com/zenGate-Global/rentflow/platform/go/logging"
	"github.com/zenGate-Global/rentflow/platform/go/requesttrace"
)

// RequestTrace resolves the caller of the request into a requesttrace.AuditInfo and tags the
// request logger with it. Mount it after auth.JWT.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger, _ := platformlogging.FromContext(r.Context())
		requestID := middleware.GetReqID(r.Context())

		audit := requesttrace.Anonymous(requestID)
		if creds, ok := platformauth.UserFromContext(r.Context()); ok {
			var err error
			if audit, err = requesttrace.FromCredentials(creds, requestID); err != nil {
				if logger != nil {
					logger.Warn("rejecting credentials without subject", zap.Error(err))
				}
				httpapi.WriteProblem(w, httpapi.NewProblem("Unauthorized", "credentials are incomplete", httpapi.ProblemTypeAuth, http.StatusUnauthorized, nil))
				return
			}
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		if logger != nil {
			ctx = platformlogging.WithLogger(ctx, logger.With(audit.LogFields()...))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
