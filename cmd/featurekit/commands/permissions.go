package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/featurekit/pkg/permissions"
	"github.com/openfroyo/featurekit/pkg/policy"
)

type permissionsResult struct {
	Permissions []string            `json:"permissions"`
	Matrix      permissions.Matrix  `json:"matrix"`
	ByRole      map[string][]string `json:"by_role"`
	Check       *checkResult        `json:"check,omitempty"`
	Audit       *policy.AuditResult `json:"audit,omitempty"`
}

type checkResult struct {
	Roles      []string `json:"roles"`
	Permission string   `json:"permission"`
	Allowed    bool     `json:"allowed"`
}

func newPermissionsCommand() *cobra.Command {
	var (
		roles       []string
		check       string
		audit       bool
		policyPaths []string
	)

	cmd := &cobra.Command{
		Use:   "permissions <manifest>",
		Short: "Show aggregated permissions and grants",
		Long: `Aggregate the permissions declared by a manifest's enabled nodes and the
roles their granting rules give them.

With --role and --check the grants are installed into the policy engine
and the given permission is checked for the roles. With --audit the
built-in and user-supplied audit policies are evaluated against the
grants: permissions no role is granted are reported as warnings, grants to
roles the manifest does not declare as errors.`,
		Example: `  # Show the permission matrix
  featurekit permissions manifest.yaml

  # Check a grant
  featurekit permissions manifest.yaml --role editor --check "edit quotes"

  # Audit grants with extra Rego policies
  featurekit permissions manifest.yaml --audit --policy ./policies`,
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
			if err := rt.boot(ctx, s.cfg.ReadyEvent); err != nil {
				return err
			}

			root := rt.tree.RootFeature()
			matrix := rt.aggregator.CollectGrantingRules(root)
			result := permissionsResult{
				Permissions: rt.aggregator.CollectPermissions(root),
				Matrix:      matrix,
				ByRole:      matrix.ByRole(),
			}

			var failure error
			if check != "" || audit {
				engine, err := policy.NewEngine(s.logger)
				if err != nil {
					return err
				}
				paths := append(append([]string(nil), s.cfg.PolicyPaths...), policyPaths...)
				if len(paths) > 0 {
					if err := engine.LoadPolicies(ctx, paths); err != nil {
						return err
					}
				}
				if err := engine.Install(ctx, matrix, loaded.Manifest.Roles...); err != nil {
					return err
				}

				if check != "" {
					allowed, err := engine.Allowed(ctx, roles, check)
					if err != nil {
						return err
					}
					result.Check = &checkResult{Roles: roles, Permission: check, Allowed: allowed}
					if !allowed {
						failure = fmt.Errorf("roles %v are not granted %q", roles, check)
					}
				}

				if audit {
					res, err := engine.Audit(ctx)
					if err != nil {
						return err
					}
					result.Audit = res
					if !res.Passed && failure == nil {
						failure = fmt.Errorf("permission audit failed")
					}
				}
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := writeJSON(out, result); err != nil {
					return err
				}
				return failure
			}

			printMatrix(out, result.Permissions, result.Matrix)
			if result.Check != nil {
				fmt.Fprintf(out, "\n%s %s for %s\n",
					flag(result.Check.Allowed, "allowed", "denied"), check, strings.Join(roles, ", "))
			}
			if result.Audit != nil {
				printAudit(out, result.Audit)
			}
			return failure
		},
	}

	cmd.Flags().StringSliceVar(&roles, "role", nil, "roles to check the permission for")
	cmd.Flags().StringVar(&check, "check", "", "permission to check")
	cmd.Flags().BoolVar(&audit, "audit", false, "audit the grants with the policy engine")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "additional audit policy files or directories")
	cmd.MarkFlagsRequiredTogether("role", "check")

	return cmd
}

func printMatrix(w io.Writer, perms []string, matrix permissions.Matrix) {
	fmt.Fprintln(w, headerStyle.Render("PERMISSIONS"))
	for _, p := range perms {
		roles := matrix[p]
		granted := mutedStyle.Render("(no role)")
		if len(roles) > 0 {
			granted = strings.Join(roles, ", ")
		}
		fmt.Fprintf(w, "  %-24s %s\n", p, granted)
	}
}

func printAudit(w io.Writer, res *policy.AuditResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("AUDIT"), flag(res.Passed, "passed", "failed"))
	for _, f := range res.Findings {
		label := warnStyle.Render(string(f.Severity))
		if f.Severity == policy.SeverityError {
			label = errorStyle.Render(string(f.Severity))
		}
		fmt.Fprintf(w, "  %s %s: %s\n", label, f.Policy, f.Message)
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("skipped"), warning)
	}
}
