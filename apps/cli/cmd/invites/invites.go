package invitescmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/rentflow/apps/cli/cmd/cmdutil"
	"github.com/zenGate-Global/rentflow/domains/invites/be/domain"
	"github.com/zenGate-Global/rentflow/domains/invites/be/service"
)

// Command groups invite token helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invites",
		Short: "Manage property invite tokens",
	}
	cmd.AddCommand(ensureDefaultCommand(), createCommand(), showCommand())
	return cmd
}

func ensureDefaultCommand() *cobra.Command {
	var (
		databaseURL string
		propertyID  string
	)
	c := &cobra.Command{
		Use:   "ensure-default",
		Short: "Return the property's open default token, creating it if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(propertyID)
			if err != nil {
				return fmt.Errorf("invalid --property-id: %w", err)
			}
			return cmdutil.Run(cmd.Context(), databaseURL, func(ctx context.Context, svcs cmdutil.Services, logger *zap.Logger) error {
				token, err := svcs.Invites.EnsureDefault(ctx, id)
				if err != nil {
					return err
				}
				printToken(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmdutil.DatabaseURLFlag(c, &databaseURL)
	c.Flags().StringVar(&propertyID, "property-id", "", "property id")
	_ = c.MarkFlagRequired("property-id")
	return c
}

func createCommand() *cobra.Command {
	var (
		databaseURL string
		propertyID  string
		input       service.CreateInput
		maxUses     int
		expiresIn   time.Duration
	)
	c := &cobra.Command{
		Use:   "create",
		Short: "Create a personal or open invite token",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(propertyID)
			if err != nil {
				return fmt.Errorf("invalid --property-id: %w", err)
			}
			input.PropertyID = id
			if cmd.Flags().Changed("max-uses") {
				input.MaxUses = &maxUses
			}
			if expiresIn > 0 {
				at := time.Now().UTC().Add(expiresIn)
				input.ExpiresAt = &at
			}
			return cmdutil.Run(cmd.Context(), databaseURL, func(ctx context.Context, svcs cmdutil.Services, logger *zap.Logger) error {
				token, err := svcs.Invites.Create(ctx, input)
				if err != nil {
					return err
				}
				printToken(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmdutil.DatabaseURLFlag(c, &databaseURL)
	c.Flags().StringVar(&propertyID, "property-id", "", "property id")
	c.Flags().StringVar(&input.Type, "type", string(domain.TypeInvite), "token type: invite or open")
	c.Flags().StringVar(&input.Email, "email", "", "applicant email, required for invite tokens")
	c.Flags().StringVar(&input.Name, "name", "", "label shown to managers")
	c.Flags().IntVar(&maxUses, "max-uses", 0, "use limit; omit for unlimited")
	c.Flags().DurationVar(&expiresIn, "expires-in", 0, "lifetime from now, e.g. 336h; omit for the default")
	_ = c.MarkFlagRequired("property-id")
	return c
}

// showCommand looks a token up by its string, the value prospects receive in their link.
func showCommand() *cobra.Command {
	var databaseURL string
	c := &cobra.Command{
		Use:   "show <token>",
		Short: "Print a token's usage and validity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.Run(cmd.Context(), databaseURL, func(ctx context.Context, svcs cmdutil.Services, _ *zap.Logger) error {
				token, err := svcs.Invites.GetByToken(ctx, args[0])
				if err != nil {
					return err
				}
				printToken(cmd.OutOrStdout(), token)
				fmt.Fprintf(cmd.OutOrStdout(), "valid=%t\n", token.IsValid(time.Now().UTC()))
				return nil
			})
		},
	}
	cmdutil.DatabaseURLFlag(c, &databaseURL)
	return c
}

func printToken(out io.Writer, token domain.Token) {
	remaining := "unlimited"
	if r := token.RemainingUses(); r != nil {
		remaining = fmt.Sprint(*r)
	}
	expires := "never"
	if token.ExpiresAt != nil {
		expires = token.ExpiresAt.Format(time.RFC3339)
	}
	fmt.Fprintf(out, "%s\ttoken=%s\ttype=%s\tremaining=%s\texpires=%s\n", token.ID, token.Token, token.Type, remaining, expires)
}
