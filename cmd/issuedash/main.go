// Command issuedash syncs a shared issue spreadsheet into a local SQLite
// database and serves a dashboard over it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zlyuan/issuedash/internal/config"
	"github.com/zlyuan/issuedash/internal/record"
	"github.com/zlyuan/issuedash/internal/sheet"
	"github.com/zlyuan/issuedash/internal/store"
	"github.com/zlyuan/issuedash/internal/syncer"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "issuedash",
	Short: "Issue log sync and dashboard",
	Long: `issuedash keeps a local, queryable copy of the team's issue spreadsheet.

A sync fetches the full sheet, normalizes each row into a typed issue
record, and reconciles it into a local SQLite database. The dashboard
serves filtered views, statistics, and sync history over HTTP, with live
updates pushed to connected WebSocket clients.

Configuration comes from issuedash.yaml (or --config) and ISSUEDASH_*
environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default issuedash.yaml)")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(annotateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads configuration honoring the --config flag.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openStore opens the configured database or exits.
func openStore(cfg *config.Config) *store.Store {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	return st
}

// buildSource picks the sheet source: a local snapshot file when configured,
// otherwise the published CSV URL.
func buildSource(cfg *config.Config) sheet.Source {
	if cfg.SnapshotPath != "" {
		return sheet.NewFileSource(cfg.SnapshotPath)
	}
	if cfg.SheetURL != "" {
		return sheet.NewHTTPSource(cfg.SheetURL, cfg.FetchTimeout)
	}
	fmt.Fprintf(os.Stderr, "Error: no sheet source configured (set sheet_url or snapshot_path)\n")
	os.Exit(1)
	return nil
}

// buildNormalizer loads the column mapping override when configured.
func buildNormalizer(cfg *config.Config) *record.Normalizer {
	var mapping record.ColumnMapping
	if cfg.MappingPath != "" {
		var err error
		mapping, err = record.LoadMapping(cfg.MappingPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading column mapping: %v\n", err)
			os.Exit(1)
		}
	}

	norm, err := record.NewNormalizer(mapping)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return norm
}

// syncerOptions maps config onto orchestrator options.
func syncerOptions(cfg *config.Config, prune bool) syncer.Options {
	opts := syncer.DefaultOptions()
	opts.Prune = prune
	if cfg.FetchTimeout > 0 {
		opts.FetchTimeout = cfg.FetchTimeout
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	return opts
}
