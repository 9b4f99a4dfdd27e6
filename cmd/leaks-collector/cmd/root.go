// Package cmd implements the leaks-collector command line: one positional
// snapshot path plus the target-selection and cache-control flags.
package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/leaks-collector/internal/run"
	"github.com/leaks-collector/internal/target"
	"github.com/leaks-collector/pkg/config"
	"github.com/leaks-collector/pkg/utils"
)

var (
	targetClasses []string
	targetIDs     []string
	configPath    string
	logLevel      string
	noCache       bool
)

var rootCmd = &cobra.Command{
	Use:   "leaks-collector <snapshot-path>",
	Short: "Finds the GC-root retention paths holding a set of heap objects alive",
	Long: `leaks-collector parses a JVM heap dump (HPROF) and, for a selected set
of target objects, discovers a small set of diverse GC-root retention paths for
each — the chains of references a garbage collector would need broken to free
them.`,
	Args: cobra.ExactArgs(1),
	RunE: runRoot,
}

func init() {
	rootCmd.Flags().StringArrayVar(&targetClasses, "target-class", nil, "select every instance whose class name contains this substring (repeatable)")
	rootCmd.Flags().StringArrayVar(&targetIDs, "target-id", nil, "select an explicit object id, hex (0x-prefixed) or decimal (repeatable)")
	rootCmd.Flags().StringVar(&configPath, "config", "", "explicit config file path")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "force a rebuild of the reverse index even if a valid cache exists")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	// Argument-count errors have already printed usage by this point;
	// runtime failures below should not repeat it.
	cmd.SilenceUsage = true

	snapshotPath := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := utils.NewDefaultLogger(utils.ParseLogLevel(logLevel), os.Stderr)
	utils.SetGlobalLogger(logger)

	opts := run.Options{
		SnapshotPath: snapshotPath,
		Selection:    target.Selection{TargetClasses: targetClasses, TargetIDs: targetIDs},
		NoCache:      noCache,
		Config:       cfg,
		Logger:       logger,
	}

	return run.Execute(context.Background(), opts, os.Stdout)
}
