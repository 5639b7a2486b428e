// Package auth holds the development-only credential helpers.
package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	platformauth "github.com/zenGate-Global/rentflow/platform/go/auth"
	"github.com/zenGate-Global/rentflow/platform/go/auth/devtoken"
)

func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Mint and inspect AUTH_PROVIDER=dev tokens",
	}
	cmd.AddCommand(devTokenCommand(), decodeCommand())
	return cmd
}

func devTokenCommand() *cobra.Command {
	var (
		p       devtoken.Params
		manager bool
	)

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Print an unsigned Firebase-shaped ID token",
		Example: "  rentflow auth devtoken --project-id rentflow-dev --user-id mgr-1 --email m@example.com --manager\n" +
			"  rentflow auth devtoken --project-id rentflow-dev --user-id ana --email ana@example.com --expires-in 30m",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if manager {
				p.Roles = append(p.Roles, platformauth.RoleManager)
			}
			token, err := devtoken.BuildUnsignedFirebaseToken(p, time.Now().UTC())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&p.ProjectID, "project-id", "", "Firebase project id, used for iss and aud")
	f.StringVar(&p.UserID, "user-id", "", "subject of the token")
	f.StringVar(&p.Email, "email", "", "email claim")
	f.StringVar(&p.Name, "name", "", "display name")
	f.BoolVar(&p.EmailVerified, "email-verified", true, "email_verified claim")
	f.StringSliceVar(&p.Roles, "roles", nil, "extra roles, comma separated")
	f.BoolVar(&manager, "manager", false, "shorthand for --roles manager")
	f.DurationVar(&p.ExpiresIn, "expires-in", time.Hour, "token lifetime")
	f.StringVar(&p.Audience, "audience", "", "aud override")
	f.StringVar(&p.Issuer, "issuer", "", "iss override")
	for _, name := range []string{"project-id", "user-id", "email"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// decodeCommand prints the credentials the API would derive from a dev token.
func decodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode TOKEN",
		Short: "Show the caller identity carried by an unsigned token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := platformauth.UnsignedTokenVerifier()(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			creds, err := platformauth.DefaultCredentialExtractor(claims)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				UserID  string   `json:"userId"`
				Email   string   `json:"email,omitempty"`
				Roles   []string `json:"roles,omitempty"`
				Manager bool     `json:"manager"`
			}{creds.Id, creds.Email, creds.Roles, creds.HasRole(platformauth.RoleManager)})
		},
	}
}
