package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zlyuan/issuedash/internal/logging"
	"github.com/zlyuan/issuedash/internal/syncer"
	"github.com/zlyuan/issuedash/internal/ui"
)

var syncPrune bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync from the sheet into the local database",
	Long: `Fetch the full sheet snapshot, normalize it, and reconcile it into the
local database.

The sync is conservative by default: rows that disappeared from the sheet
stay in the database. Pass --prune to delete them instead.

Running sync while the daemon (issuedash serve) has a run in flight is
safe; the second run is refused, not queued.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		st := openStore(cfg)
		defer st.Close()

		logger := logging.New("[sync] ", logging.Options{Path: cfg.LogPath, Quiet: true})
		coord := syncer.NewCoordinator(cfg.LockPath)
		s := syncer.New(st, buildSource(cfg), buildNormalizer(cfg), coord, syncerOptions(cfg, syncPrune), logger)

		res, err := s.RunSync(context.Background())
		if err == syncer.ErrSyncInProgress {
			fmt.Fprintf(os.Stderr, "Error: another sync is already running\n")
			os.Exit(1)
		}
		if err != nil {
			if res != nil {
				fmt.Print(ui.SyncSummary(res))
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Print(ui.SyncSummary(res))
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncPrune, "prune", false, "delete local rows missing from the sheet")
}
