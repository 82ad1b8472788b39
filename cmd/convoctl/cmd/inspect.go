package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"convodb/internal/sweeper"
	"convodb/pkg/models"
	"convodb/pkg/store/collection"
	"convodb/pkg/store/docs"
	"convodb/pkg/store/keys"
	"convodb/pkg/store/selector"
)

var knownCollections = []string{models.Users, models.Conversations, models.Participants, models.Messages}

func newInspectCmd() *cobra.Command {
	var (
		coll  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize a database, or dump one collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, true)
			if err != nil {
				return err
			}
			defer store.Close()
			out := cmd.OutOrStdout()

			if coll != "" {
				c, err := collection.Open(store, coll)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				for _, d := range c.Find(selector.Where(), selector.Options{Sort: []selector.SortField{selector.Asc(docs.IDField)}, Limit: limit}) {
					if err := enc.Encode(d); err != nil {
						return err
					}
				}
				return nil
			}

			fmt.Fprintln(out, "Database summary")
			fmt.Fprintln(out, "=====================================")
			if v, err := store.GetKey(keys.SystemVersionKey); err == nil {
				fmt.Fprintf(out, "  Written by:  %s\n", v)
			}
			fmt.Fprintf(out, "  Disk usage:  %s\n", humanize.Bytes(store.DiskUsage()))
			for _, name := range knownCollections {
				c, err := collection.Open(store, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %-14s %s\n", name+":", humanize.Comma(int64(c.Len())))
			}
			if run, ok, err := sweeper.LastRun(store); err != nil {
				return err
			} else if ok {
				fmt.Fprintf(out, "  Last sweep:  %s (%s, %d observing, %d typing)\n",
					humanize.Time(run.Time), run.Trigger, run.Observing, run.Typing)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&coll, "collection", "", "dump documents of this collection as JSON")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum documents to dump (0 for all)")
	return cmd
}
