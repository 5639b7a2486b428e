package applicationscmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/rentflow/apps/cli/cmd/cmdutil"
)

// Command groups application maintenance helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "applications",
		Short: "Application maintenance",
	}
	cmd.AddCommand(archiveCommand())
	return cmd
}

func archiveCommand() *cobra.Command {
	var databaseURL string
	c := &cobra.Command{
		Use:   "archive <application-id>...",
		Short: "Archive applications; ones whose status does not allow it are reported and skipped",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uuid.UUID, 0, len(args))
			for _, arg := range args {
				id, err := uuid.Parse(arg)
				if err != nil {
					return fmt.Errorf("invalid application id %q: %w", arg, err)
				}
				ids = append(ids, id)
			}
			return cmdutil.Run(cmd.Context(), databaseURL, func(ctx context.Context, svcs cmdutil.Services, logger *zap.Logger) error {
				for _, id := range ids {
					result, err := svcs.Applications.Archive(ctx, id)
					if err != nil {
						return fmt.Errorf("archive %s: %w", id, err)
					}
					if !result.Applied {
						logger.Warn("application not archived", zap.String("application_id", id.String()), zap.String("status", string(result.Application.Status)))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tarchived\n", id)
				}
				return nil
			})
		},
	}
	cmdutil.DatabaseURLFlag(c, &databaseURL)
	return c
}
