// Package main implements evoctl, the command-line front end for the
// evolutionary program-optimization engine. Collaborator concerns only:
// config file loading, logging setup, and flag parsing. The closed
// feedback loop itself lives in internal/driver and friends.
//
// Commands:
//   - init-db          create/migrate the persistence store
//   - run              start a new run
//   - resume           continue an existing run from its last generation
//   - inspect          print top candidates for a run
//   - export-archive   dump the archive's current state as JSON
//   - viz              export a run's candidates as CSV for external plotting
//   - tokens           print the precise token count for a file or stdin
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dbPath  string
	verbose bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "evoctl",
	Short: "evoctl drives the evolutionary program-optimization engine",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "evolve.db", "path to the persistence store")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(initDBCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(exportArchiveCmd)
	rootCmd.AddCommand(vizCmd)
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}

func main() {
	l, err := newLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}
	logger = l
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}
