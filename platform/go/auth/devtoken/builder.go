// Package devtoken mints unsigned Firebase-shaped ID tokens for AUTH_PROVIDER=dev.
package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zenGate-Global/rentflow/platform/go/validation"
)

const defaultTTL = time.Hour

// Params describes the identity the token asserts. Audience and Issuer default to the values
// Firebase would use for ProjectID.
type Params struct {
	ProjectID     string `validate:"required"`
	UserID        string `validate:"required"`
	Email         string `validate:"required,email"`
	Name          string
	EmailVerified bool
	Roles         []string
	ExpiresIn     time.Duration `validate:"gte=0"`
	Audience      string
	Issuer        string
}

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

type firebaseInfo struct {
	Identities     map[string][]string `json:"identities"`
	SignInProvider string              `json:"sign_in_provider"`
}

type claims struct {
	Issuer        string       `json:"iss"`
	Audience      string       `json:"aud"`
	Subject       string       `json:"sub"`
	UserID        string       `json:"user_id"`
	AuthTime      int64        `json:"auth_time"`
	IssuedAt      int64        `json:"iat"`
	ExpiresAt     int64        `json:"exp"`
	Email         string       `json:"email"`
	EmailVerified bool         `json:"email_verified"`
	Name          string       `json:"name,omitempty"`
	Roles         []string     `json:"roles,omitempty"`
	Firebase      firebaseInfo `json:"firebase"`
}

// BuildUnsignedFirebaseToken returns "header.payload" with alg "none". The auth middleware
// accepts it only through UnsignedTokenVerifier.
func BuildUnsignedFirebaseToken(p Params, now time.Time) (string, error) {
	if errs := validation.Struct(p); errs != nil {
		return "", fmt.Errorf("invalid token params: %s", describe(errs))
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	ttl := p.ExpiresIn
	if ttl == 0 {
		ttl = defaultTTL
	}

	c := claims{
		Issuer:        firstNonBlank(p.Issuer, "https://securetoken.google.com/"+p.ProjectID),
		Audience:      firstNonBlank(p.Audience, p.ProjectID),
		Subject:       p.UserID,
		UserID:        p.UserID,
		AuthTime:      now.Unix(),
		IssuedAt:      now.Unix(),
		ExpiresAt:     now.Add(ttl).Unix(),
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		Name:          p.Name,
		Roles:         p.Roles,
		Firebase: firebaseInfo{
			Identities:     map[string][]string{"email": {p.Email}},
			SignInProvider: "password",
		},
	}

	head, err := segment(header{Alg: "none", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	body, err := segment(c)
	if err != nil {
		return "", err
	}
	return head + "." + body, nil
}

func segment(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode token segment: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func firstNonBlank(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func describe(errs map[string][]string) string {
	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, errs[f]...)
	}
	return strings.Join(msgs, "; ")
}
