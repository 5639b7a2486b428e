package contracts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadValidDocument(t *testing.T) {
	t.Parallel()

	spec, err := Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, spec.Servers)
	require.NotNil(t, spec.Paths.Find("/api/v1/applications/{applicationId}/approve"))
	require.NotNil(t, spec.Paths.Find("/api/v1/public/invites/{token}"))
	require.Contains(t, spec.Components.SecuritySchemes, "bearerAuth")
}
