package devtoken

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/rentflow/platform/go/auth"
)

func TestBuildUnsignedFirebaseToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()

	token, err := BuildUnsignedFirebaseToken(Params{
		ProjectID:     "local-rentflow",
		UserID:        "manager-123",
		Email:         "manager@example.com",
		Name:          "Dev Manager",
		EmailVerified: true,
		Roles:         []string{"manager"},
		ExpiresIn:     2 * time.Hour,
	}, now)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 2)
	require.Equal(t, "none", decode(t, parts[0])["alg"])

	payload := decode(t, parts[1])
	require.Equal(t, "https://securetoken.google.com/local-rentflow", payload["iss"])
	require.Equal(t, "local-rentflow", payload["aud"])
	require.Equal(t, "manager-123", payload["sub"])
	require.Equal(t, "manager@example.com", payload["email"])
	require.Equal(t, float64(now.Add(2*time.Hour).Unix()), payload["exp"])
	require.Equal(t, []interface{}{"manager"}, payload["roles"])
}

func TestBuildUnsignedFirebaseTokenDefaults(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()

	token, err := BuildUnsignedFirebaseToken(Params{
		ProjectID: "p",
		UserID:    "u-1",
		Email:     "ana@example.com",
		Audience:  "custom-aud",
	}, now)
	require.NoError(t, err)

	payload := decode(t, strings.Split(token, ".")[1])
	require.Equal(t, "custom-aud", payload["aud"])
	require.Equal(t, float64(now.Add(time.Hour).Unix()), payload["exp"])
	require.NotContains(t, payload, "roles")
	require.NotContains(t, payload, "name")
}

func TestBuildUnsignedFirebaseTokenValidatesParams(t *testing.T) {
	_, err := BuildUnsignedFirebaseToken(Params{ProjectID: "p", Email: "a@example.com"}, time.Now())
	require.ErrorContains(t, err, "UserID is required")

	_, err = BuildUnsignedFirebaseToken(Params{ProjectID: "p", UserID: "u", Email: "not-an-email"}, time.Now())
	require.ErrorContains(t, err, "valid email")
}

func TestTokenRoundTripsThroughUnsignedVerifier(t *testing.T) {
	token, err := BuildUnsignedFirebaseToken(Params{
		ProjectID: "p",
		UserID:    "manager-9",
		Email:     "m@example.com",
		Roles:     []string{platformauth.RoleManager},
	}, time.Now())
	require.NoError(t, err)

	claims, err := platformauth.UnsignedTokenVerifier()(context.Background(), token)
	require.NoError(t, err)
	creds, err := platformauth.DefaultCredentialExtractor(claims)
	require.NoError(t, err)
	require.Equal(t, "manager-9", creds.Id)
	require.True(t, creds.HasRole(platformauth.RoleManager))
}

func decode(t *testing.T, segment string) map[string]interface{} {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}
