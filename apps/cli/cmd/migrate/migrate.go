package migratecmd

import (
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/rentflow/apps/cli/cmd/cmdutil"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
)

// Command groups schema migration helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the embedded database migrations",
	}
	cmd.AddCommand(upCommand(), statusCommand())
	return cmd
}

func upCommand() *cobra.Command {
	var databaseURL string
	c := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := cmdutil.OpenPool(cmd.Context(), databaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			return persistence.Migrate(cmd.Context(), pool)
		},
	}
	cmdutil.DatabaseURLFlag(c, &databaseURL)
	return c
}

func statusCommand() *cobra.Command {
	var databaseURL string
	c := &cobra.Command{
		Use:   "status",
		Short: "Print the applied state of each migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := cmdutil.OpenPool(cmd.Context(), databaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			return persistence.MigrationStatus(cmd.Context(), pool)
		},
	}
	cmdutil.DatabaseURLFlag(c, &databaseURL)
	return c
}
