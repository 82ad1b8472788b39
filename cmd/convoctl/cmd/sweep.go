package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"convodb/internal/sweeper"
	"convodb/pkg/models"
	"convodb/pkg/presence"
	"convodb/pkg/store/collection"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Clear presence left by a stopped server",
		Long: `sweep clears every observing session and typing flag. No server holds
live subscriptions while the store is opened offline, so all stored presence is stale.
Stop the server first; pebble refuses a second writer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, false)
			if err != nil {
				return err
			}
			defer store.Close()

			participants, err := collection.Open(store, models.Participants)
			if err != nil {
				return err
			}
			sw, err := sweeper.New("* * * * *", presence.NewTracker(participants), store)
			if err != nil {
				return err
			}
			res, err := sw.RunImmediate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d observing, %d typing at %s\n",
				res.Observing, res.Typing, time.Now().UTC().Format(time.RFC3339))
			return nil
		},
	}
}
