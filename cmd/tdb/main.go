package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/config"
	"github.com/templedb/templedb/internal/debug"
	"github.com/templedb/templedb/internal/storage/sqlite"
	"github.com/templedb/templedb/internal/telemetry"
)

// Version is the tdb release version, overridable at link time.
var Version = "0.4.0"

var (
	dbPath     string
	jsonOutput bool
	verbose    bool
	quiet      bool

	store *sqlite.Store

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// noDbCommands run without opening the database.
var noDbCommands = map[string]bool{
	"help":       true,
	"version":    true,
	"completion": true,
}

var rootCmd = &cobra.Command{
	Use:   "tdb",
	Short: "tdb - content-addressable project store",
	Long:  `A single-node project store with deduplicated content, per-file version history, portable cathedral packages and multi-agent work coordination.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		if !verbose {
			switch config.LogLevel() {
			case "debug":
				debug.SetLevel(debug.LevelDebug)
			case "info":
				debug.SetLevel(debug.LevelInfo)
			case "warn", "warning":
				debug.SetLevel(debug.LevelWarn)
			}
		}
		debug.SetVerbose(verbose)
		debug.SetQuiet(quiet)
		if err := telemetry.Init(rootCtx, "tdb", Version); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
		}

		if noDbCommands[cmd.Name()] || cmd.Name() == "tdb" {
			return nil
		}

		path := dbPath
		if path == "" {
			path = config.DBPath()
		}
		s, err := sqlite.New(rootCtx, path)
		if err != nil {
			return fmt.Errorf("open database %s: %w", path, err)
		}
		store = s
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
			store = nil
		}
		telemetry.Shutdown(context.Background())
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: TEMPLEDB_DB or ~/.templedb/templedb.db)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
