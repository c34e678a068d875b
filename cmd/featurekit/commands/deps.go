package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDepsCommand() *cobra.Command {
	var includeOptional bool

	cmd := &cobra.Command{
		Use:   "deps <manifest>",
		Short: "Report unmet dependencies",
		Long: `Evaluate every dependency handler declared by a manifest against an
environment and report which descriptors are not met.

Checkers whose id contains "optional" only decide a handler's result when
--include-optional is set; their missing descriptors are always listed.
Settings are read from the option store when --options-db is given.`,
		Example: `  # Report unmet dependencies
  featurekit deps manifest.yaml --env env.yaml

  # Treat optional checkers as required
  featurekit deps manifest.yaml --env env.yaml --include-optional`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close(ctx) }()

			loaded, err := s.loadManifest(ctx, args[0])
			if err != nil {
				return err
			}
			rt, err := s.build(ctx, loaded.Manifest)
			if err != nil {
				return err
			}

			reports := rt.tree.Dependencies.Reports(includeOptional)

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, reports)
			}

			if len(reports) == 0 {
				fmt.Fprintln(out, "no dependency handlers declared")
				return nil
			}
			for _, r := range reports {
				fmt.Fprintf(out, "%s %s\n", r.Handler, flag(r.Fulfilled, "fulfilled", "unfulfilled"))
				for _, line := range missingLines(r.Status) {
					fmt.Fprintf(out, "  %s\n", line)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeOptional, "include-optional", false, "optional checkers must also be fulfilled")

	return cmd
}
