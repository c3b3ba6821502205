package cli

import (
	"github.com/spf13/cobra"

	"github.com/aidanlsb/herald/internal/config"
	"github.com/aidanlsb/herald/internal/store"
	"github.com/aidanlsb/herald/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config file and database",
	Long: `Writes a commented default config file (unless one exists) and creates
the database schema at the configured path. Safe to run repeatedly.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		created, err := config.CreateDefault(resolvedConfigPath)
		if err != nil {
			return handleError(ErrConfigInvalid, err, "")
		}

		s, err := openStore()
		if err != nil {
			return handleError(ErrDatabaseError, err, "Check the database path and its permissions")
		}
		defer s.Close()

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"config":         resolvedConfigPath,
				"config_created": created,
				"database":       resolvedDBPath,
				"schema_version": store.CurrentSchemaVersion,
			}, nil)
			return nil
		}

		if created {
			printf("%s\n", ui.Successf("Created config %s", ui.Reference(resolvedConfigPath)))
		} else {
			printf("%s\n", ui.Hint("Using existing config "+resolvedConfigPath))
		}
		printf("%s\n", ui.Successf("Database ready at %s", ui.Reference(resolvedDBPath)))
		printf("\n%s\n", ui.Hint("Next: hrld catalog import catalog.yaml"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
