// Package cli implements the command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/herald/internal/config"
	"github.com/aidanlsb/herald/internal/logger"
	"github.com/aidanlsb/herald/internal/store"
)

var (
	// Global flags
	configPath string
	dbPathFlag string

	// Resolved values
	resolvedConfigPath string
	resolvedDBPath     string
	cfg                *config.Config
	log                logger.Logger = logger.NewNoopLogger()

	// stdout receives command output; tests replace it.
	stdout io.Writer = os.Stdout
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hrld",
	Short: "Herald - saved queries and subscription fan-out",
	Long: `Herald evaluates saved queries over builds, pull requests, commits and
issues, and decides who is notified when one of them changes.

Queries read like "failed and branch is main order by number desc".
Users subscribe to them per project or globally; "hrld notify" runs the
fan-out for stored entities.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "completion", "help", "version", "parse", "vocab":
			return nil
		}

		resolvedConfigPath = config.ResolveConfigPath(configPath)
		loaded, err := config.LoadFrom(resolvedConfigPath)
		if err != nil {
			return handleError(ErrConfigInvalid, err, "Fix the file or pass --config")
		}
		cfg = loaded

		if dbPathFlag != "" {
			resolvedDBPath = dbPathFlag
		} else {
			resolvedDBPath = cfg.DatabasePath(resolvedConfigPath)
		}

		l, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
		if err != nil {
			return handleError(ErrConfigInvalid, err, "")
		}
		log = l
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errReported) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "Path to the database (overrides database in config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (for agent/script use)")
}

// getConfig returns the loaded config.
func getConfig() *config.Config {
	if cfg == nil {
		return config.Default()
	}
	return cfg
}

// openStore opens the resolved database.
func openStore() (*store.Store, error) {
	if resolvedDBPath == "" {
		return nil, fmt.Errorf("no database configured")
	}
	return store.Open(resolvedDBPath)
}
