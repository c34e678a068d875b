package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/featurekit/pkg/config"
)

type validateResult struct {
	Valid  bool                     `json:"valid"`
	Files  []string                 `json:"files,omitempty"`
	Nodes  int                      `json:"nodes"`
	Errors []config.ValidationError `json:"errors,omitempty"`
}

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate a feature manifest",
		Long: `Validate a feature manifest (YAML file, CUE file or CUE package directory).

This command checks:
  - Field constraints (ids, rule types, hook kinds)
  - Conformance to the built-in CUE manifest schema
  - References between nodes: unknown or duplicate ids, nodes with two
    parents, child and module dependency cycles, undeclared roles and
    permissions, unknown hook handlers`,
		Example: `  # Validate a YAML manifest
  featurekit validate manifest.yaml

  # Validate a CUE package and print the result as JSON
  featurekit validate --json ./manifest`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			log.Debug().Str("path", path).Msg("Validating manifest")

			loaded, err := config.NewManifestLoader().Load(ctx, path)
			if err != nil {
				return err
			}

			result := validateResult{
				Files: loaded.SourceFiles,
				Nodes: len(loaded.Manifest.Nodes),
			}
			result.Errors = config.ValidationErrors(config.NewValidator().Validate(ctx, loaded.Manifest))
			result.Valid = len(result.Errors) == 0

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := writeJSON(out, result); err != nil {
					return err
				}
			} else if result.Valid {
				fmt.Fprintf(out, "%s %s (%d nodes)\n", okStyle.Render("valid"), path, result.Nodes)
			} else {
				fmt.Fprintf(out, "%s %s\n", errorStyle.Render("invalid"), path)
				for _, ve := range result.Errors {
					fmt.Fprintf(out, "  %s\n", ve.Error())
				}
			}

			if !result.Valid {
				return fmt.Errorf("manifest %s has %d problem(s)", path, len(result.Errors))
			}
			return nil
		},
	}

	return cmd
}
