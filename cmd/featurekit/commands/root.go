package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/featurekit/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	logLevel   string
	jsonOutput bool
	optionsDB  string
	envPath    string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "featurekit",
		Short: "featurekit - feature tree lifecycle toolkit",
		Long: `featurekit builds feature trees from declarative manifests and reports
how they behave in a given environment.

A manifest declares features as nodes with children, permissions and
granting rules, dependency checkers, hooks and deferred setup events.
featurekit validates manifests, initializes their trees against an
environment fixture, reports unmet dependencies and audits the resulting
permission grants.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				zerolog.SetGlobalLevel(telemetry.ParseLevel(logLevel))
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&optionsDB, "options-db", "", "SQLite option store used as settings source")
	rootCmd.PersistentFlags().StringVarP(&envPath, "env", "e", "", "environment fixture (YAML)")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newDepsCommand())
	rootCmd.AddCommand(newPermissionsCommand())
	rootCmd.AddCommand(newOptionsCommand())

	return rootCmd
}
