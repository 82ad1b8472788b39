package cmd

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"convodb/cmd/convoctl/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or edit the convoctl profile",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProfile(cmd)
			if err != nil {
				return err
			}
			shown := *p
			if shown.JWTSecret != "" {
				shown.JWTSecret = "********"
			}
			data, err := yaml.Marshal(&shown)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", profilePath(cmd), data)
			return nil
		},
	}, &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one profile field (db_path, jwt_secret, issuer, token_ttl)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProfile(cmd)
			if err != nil {
				return err
			}
			if err := p.Set(args[0], args[1]); err != nil {
				return err
			}
			return config.SaveToFile(p, profilePath(cmd))
		},
	})
	return cmd
}
