package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vertextoedge/drive-mirror/internal/domain"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Reconcile every configured root once and exit",
		Long: "Reconcile every configured root once without starting the HTTP server.\n" +
			"Exits non-zero if any folder could not be reconciled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			run := a.syncer.ReconcileAll(cmd.Context(), domain.TriggerCLI)

			var bytes int64
			out := cmd.OutOrStdout()
			for _, f := range run.Folders {
				bytes += f.BytesDownloaded
				status := "ok"
				switch {
				case f.Failed():
					status = "failed: " + f.Err.Error()
				case f.Coalesced:
					status = "coalesced"
				}
				fmt.Fprintf(out, "%-12s %-24s +%d -%d !%d  %s\n",
					f.RootID, f.FolderName, f.Downloaded, f.Removed, len(f.Errors), status)
				for _, fe := range f.Errors {
					fmt.Fprintf(out, "    %v\n", fe)
				}
			}

			downloaded, removed, failed := run.Totals()
			fmt.Fprintf(out, "\n%d folders, %d downloaded (%s), %d removed, %d file failures\n",
				len(run.Folders), downloaded, humanize.Bytes(uint64(bytes)), removed, failed)

			if n := run.FolderFailures(); n > 0 {
				return fmt.Errorf("%d folder(s) failed to reconcile", n)
			}
			return nil
		},
	})
}
