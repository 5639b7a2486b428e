package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/rentflow/platform/go/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := Command()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDevTokenCarriesManagerRole(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "devtoken", "--project-id", "rentflow-dev", "--user-id", "mgr-1", "--email", "m@example.com", "--manager")
	require.NoError(t, err)

	claims, err := platformauth.UnsignedTokenVerifier()(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	creds, err := platformauth.DefaultCredentialExtractor(claims)
	require.NoError(t, err)
	require.Equal(t, "mgr-1", creds.Id)
	require.True(t, creds.HasRole(platformauth.RoleManager))
}

func TestDevTokenRequiresIdentity(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "devtoken", "--project-id", "rentflow-dev")
	require.Error(t, err)
}

func TestDecodeShowsIdentity(t *testing.T) {
	t.Parallel()

	token, err := execute(t, "devtoken", "--project-id", "rentflow-dev", "--user-id", "ana", "--email", "ana@example.com")
	require.NoError(t, err)

	out, err := execute(t, "decode", strings.TrimSpace(token))
	require.NoError(t, err)

	var got struct {
		UserID  string `json:"userId"`
		Email   string `json:"email"`
		Manager bool   `json:"manager"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "ana", got.UserID)
	require.Equal(t, "ana@example.com", got.Email)
	require.False(t, got.Manager)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "decode", "garbage")
	require.Error(t, err)
}
