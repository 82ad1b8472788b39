package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"convodb/cmd/convoctl/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "convoctl",
		Short: "Operator tool for convodb databases",
		Long: `convoctl inspects convodb stores offline, mints user tokens for
testing clients and clears presence left behind by a crashed server.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringP("config", "c", "", "profile path (default is $HOME/.convoctl.yaml)")
	root.PersistentFlags().String("db", "", "database directory (overrides the profile)")

	root.AddCommand(newInspectCmd(), newTokenCmd(), newSignCmd(), newSweepCmd(), newConfigCmd())
	return root
}

// Execute runs the CLI. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func profilePath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	return config.DefaultPath()
}

func loadProfile(cmd *cobra.Command) (*config.Profile, error) {
	return config.LoadFromFile(profilePath(cmd))
}

// dbPath resolves --db, then the profile.
func dbPath(cmd *cobra.Command, p *config.Profile) (string, error) {
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		return v, nil
	}
	if p.DBPath != "" {
		return p.DBPath, nil
	}
	return "", fmt.Errorf("no database path: pass --db or set db_path")
}
