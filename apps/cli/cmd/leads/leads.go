package leadscmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/rentflow/apps/cli/cmd/cmdutil"
	"github.com/zenGate-Global/rentflow/platform/go/requesttrace"
)

// Command groups lead maintenance helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "Lead funnel maintenance",
	}
	cmd.AddCommand(archiveCommand(), linkUserCommand())
	return cmd
}

func archiveCommand() *cobra.Command {
	var databaseURL string
	c := &cobra.Command{
		Use:   "archive <lead-id>",
		Short: "Archive a lead",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid lead id: %w", err)
			}
			return cmdutil.Run(cmd.Context(), databaseURL, func(ctx context.Context, svcs cmdutil.Services, logger *zap.Logger) error {
				lead, err := svcs.Leads.Archive(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", lead.ID, lead.Status)
				return nil
			})
		},
	}
	cmdutil.DatabaseURLFlag(c, &databaseURL)
	return c
}

// linkUserCommand attaches an applicant account to a lead created before the prospect signed up.
// The user id may be a uuid or an identity-provider subject.
func linkUserCommand() *cobra.Command {
	var databaseURL string
	c := &cobra.Command{
		Use:   "link-user <lead-id> <user>",
		Short: "Link a lead to an applicant account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid lead id: %w", err)
			}
			userID := requesttrace.ActorUUID(args[1])
			return cmdutil.Run(cmd.Context(), databaseURL, func(ctx context.Context, svcs cmdutil.Services, logger *zap.Logger) error {
				lead, err := svcs.Leads.LinkUser(ctx, id, userID)
				if err != nil {
					return err
				}
				logger.Debug("lead linked", zap.Stringer("lead_id", lead.ID), zap.Stringer("user_id", userID))
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", lead.ID, lead.Status, userID)
				return nil
			})
		},
	}
	cmdutil.DatabaseURLFlag(c, &databaseURL)
	return c
}
