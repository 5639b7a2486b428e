package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// FirebaseTokenVerifier checks ID tokens with Firebase Auth, signature and expiry included.
func FirebaseTokenVerifier(client *firebaseauth.Client) VerifyFunc {
	if client == nil {
		panic("auth.FirebaseTokenVerifier: client must not be nil")
	}
	return func(ctx context.Context, token string) (Claims, error) {
		t, err := client.VerifyIDToken(ctx, token)
		if err != nil {
			return nil, err
		}

		claims := make(Claims, len(t.Claims)+2)
		for k, v := range t.Claims {
			claims[k] = v
		}
		claims["uid"] = t.UID
		claims["sub"] = t.Subject
		return claims, nil
	}
}

// UnsignedTokenVerifier decodes the payload of "header.payload[.signature]" tokens without
// checking any signature. Only exp is enforced. AUTH_PROVIDER=dev only.
func UnsignedTokenVerifier() VerifyFunc {
	return func(_ context.Context, token string) (Claims, error) {
		claims, err := decodePayload(token)
		if err != nil {
			return nil, err
		}
		if exp, ok := claims["exp"].(float64); ok && time.Unix(int64(exp), 0).Before(time.Now()) {
			return nil, ErrTokenExpired
		}
		return claims, nil
	}
}

func decodePayload(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, errors.New("token is not a JWT")
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("decode token payload: %w", err)
	}
	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, fmt.Errorf("decode token payload: %w", err)
	}
	if claims == nil {
		return nil, errors.New("token payload is empty")
	}
	return claims, nil
}
