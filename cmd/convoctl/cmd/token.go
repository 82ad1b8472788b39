package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"convodb/pkg/api/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		secret string
		issuer string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a user token signed with the server JWT secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProfile(cmd)
			if err != nil {
				return err
			}
			if secret == "" {
				secret = p.JWTSecret
			}
			if issuer == "" {
				issuer = p.Issuer
			}
			if !cmd.Flags().Changed("ttl") {
				if ttl, err = p.TTL(ttl); err != nil {
					return err
				}
			}
			tok, err := auth.NewTokens(secret, issuer, 0).Issue(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "JWT secret (defaults to the profile)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "token issuer (defaults to the profile, then convodb)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

// newSignCmd prints the HMAC signature a backend hands to a frontend for userID.
func newSignCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "sign <user-id>",
		Short: "Print the X-User-Signature for a user id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				return fmt.Errorf("--key is required")
			}
			fmt.Fprintln(cmd.OutOrStdout(), auth.CreateHMACSignature(args[0], key))
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "signing key")
	return cmd
}
