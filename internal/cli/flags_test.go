package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func TestCommandFlagsAreDocumented(t *testing.T) {
	var walk func(cmd *cobra.Command)
	walk = func(cmd *cobra.Command) {
		cmd.LocalFlags().VisitAll(func(flag *pflag.Flag) {
			if flag.Name == "help" {
				return
			}
			if flag.Usage == "" {
				t.Errorf("%s --%s has no usage text", cmd.CommandPath(), flag.Name)
			}
			if rootCmd.PersistentFlags().Lookup(flag.Name) != nil && cmd != rootCmd {
				t.Errorf("%s --%s shadows a global flag", cmd.CommandPath(), flag.Name)
			}
		})
		for _, sub := range cmd.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
}

func TestGlobalFlags(t *testing.T) {
	for _, name := range []string{"config", "db", "json"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("missing global flag --%s", name)
		}
	}
}
