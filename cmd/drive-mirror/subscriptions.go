package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vertextoedge/drive-mirror/internal/adapter/sqlite"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "subscriptions",
		Short: "List persisted watch subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := sqlite.Open(cfg.GetDatabasePath())
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			subs, err := store.ListSubscriptions()
			if err != nil {
				return err
			}
			if len(subs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no subscriptions")
				return nil
			}

			now := time.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FOLDER\tNAME\tROOT\tCHANNEL\tEXPIRES")
			for _, sub := range subs {
				expires := humanize.RelTime(sub.ExpiresAt, now, "ago", "from now")
				if sub.IsExpired(now) {
					expires += " (expired)"
				}
				name := sub.FolderName
				if name == "" {
					name = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", sub.FolderID, name, sub.RootID, sub.ID, expires)
			}
			return w.Flush()
		},
	})
}
