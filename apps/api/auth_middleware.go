package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/rentflow/platform/go/auth"
	"github.com/zenGate-Global/rentflow/platform/go/gcp"
)

// buildAuthMiddleware verifies bearer tokens with Firebase, or accepts unsigned tokens when
// AUTH_PROVIDER=dev.
func buildAuthMiddleware(ctx context.Context, cfg config, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	var verify platformauth.VerifyFunc
	switch cfg.AuthProvider {
	case "firebase":
		client, err := gcp.NewFirebaseAuth(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		verify = platformauth.FirebaseTokenVerifier(client)
	case "dev":
		logger.Warn("using dev auth middleware; do not use in production")
		verify = platformauth.UnsignedTokenVerifier()
	default:
		return nil, fmt.Errorf("unsupported AUTH_PROVIDER %q (use firebase or dev)", cfg.AuthProvider)
	}

	return platformauth.JWT(verify, platformauth.DefaultCredentialExtractor), nil
}
