package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zlyuan/issuedash/internal/daemon"
	"github.com/zlyuan/issuedash/internal/dashboard"
	"github.com/zlyuan/issuedash/internal/logging"
	"github.com/zlyuan/issuedash/internal/syncer"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon and dashboard server",
	Long: `Start the long-running service: scheduled syncs plus the dashboard.

The daemon syncs on the configured interval (hourly by default) and, when a
local snapshot file is configured, also re-syncs shortly after the file
changes. The dashboard serves the JSON API and pushes updates to connected
WebSocket clients.

Example usage:
  issuedash serve                # Dashboard on config/default port
  issuedash serve --port 9000    # Override the port`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if servePort > 0 {
			cfg.Port = servePort
		}

		st := openStore(cfg)
		defer st.Close()

		logger := logging.New("[issuedash] ", logging.Options{Path: cfg.LogPath})
		coord := syncer.NewCoordinator(cfg.LockPath)
		s := syncer.New(st, buildSource(cfg), buildNormalizer(cfg), coord, syncerOptions(cfg, cfg.Prune), logger)

		server := dashboard.NewServer(st, s, &dashboard.Config{
			Port:   cfg.Port,
			Logger: logger,
		})
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
			os.Exit(1)
		}

		dcfg := daemon.DefaultConfig()
		dcfg.SyncInterval = cfg.SyncInterval
		dcfg.Logger = logger
		// The server's wrapped runner broadcasts every run's outcome to
		// connected dashboard clients, including scheduled ones.
		d, err := daemon.New(server.Runner(), cfg.SnapshotPath, dcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create daemon: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Dashboard on http://localhost:%d (ws://localhost:%d/ws)\n", cfg.Port, cfg.Port)
		fmt.Printf("Syncing every %s\n", cfg.SyncInterval)
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: daemon failed: %v\n", err)
		}
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping dashboard: %v\n", err)
		}
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "dashboard port (overrides config)")
}
