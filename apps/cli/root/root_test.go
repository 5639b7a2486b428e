package root

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegistersOperatorCommands(t *testing.T) {
	cmd := New()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	require.Subset(t, names, []string{"migrate", "invites", "applications", "leads", "auth"})

	found, _, err := cmd.Find([]string{"auth", "devtoken"})
	require.NoError(t, err)
	require.Equal(t, "devtoken", found.Name())
}
