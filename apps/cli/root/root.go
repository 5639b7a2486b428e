// Package root assembles the rentflow operator command tree.
package root

import (
	"github.com/spf13/cobra"

	applicationscmd "github.com/zenGate-Global/rentflow/apps/cli/cmd/applications"
	authcmd "github.com/zenGate-Global/rentflow/apps/cli/cmd/auth"
	invitescmd "github.com/zenGate-Global/rentflow/apps/cli/cmd/invites"
	leadscmd "github.com/zenGate-Global/rentflow/apps/cli/cmd/leads"
	migratecmd "github.com/zenGate-Global/rentflow/apps/cli/cmd/migrate"
)

// New returns a fresh command tree, so tests can execute it without shared flag state.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rentflow",
		Short:         "Operator utilities for rentflow",
		Long:          "Run migrations, manage invite tokens, archive applications and leads, and mint dev tokens.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(
		migratecmd.Command(),
		invitescmd.Command(),
		applicationscmd.Command(),
		leadscmd.Command(),
		authcmd.Command(),
	)
	return cmd
}
