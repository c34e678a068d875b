package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/featurekit/pkg/stores"
)

func newOptionsCommand() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "options",
		Short: "Manage the option store",
		Long: `Read and write options in the SQLite option store given by --options-db.

Options are the settings seen by setting dependency checkers. Every change
is recorded together with the actor that made it.`,
	}

	cmd.PersistentFlags().StringVar(&actor, "actor", "featurekit", "actor recorded with changes")

	cmd.AddCommand(newOptionsGetCommand())
	cmd.AddCommand(newOptionsSetCommand(&actor))
	cmd.AddCommand(newOptionsDeleteCommand(&actor))
	cmd.AddCommand(newOptionsListCommand())
	cmd.AddCommand(newOptionsHistoryCommand())

	return cmd
}

// withStore opens a session with a required option store and runs fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store *stores.SQLiteStore) error) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close(ctx) }()

	store, err := s.requireStore()
	if err != nil {
		return err
	}
	return fn(ctx, store)
}

func newOptionsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print an option value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *stores.SQLiteStore) error {
				opt, err := store.GetOption(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), opt)
				}
				fmt.Fprintln(cmd.OutOrStdout(), opt.Value)
				return nil
			})
		},
	}
}

func newOptionsSetCommand(actor *string) *cobra.Command {
	var noAutoload bool

	cmd := &cobra.Command{
		Use:   "set <name>=<value>...",
		Short: "Set one or more options",
		Example: `  # Set a single option
  featurekit options set blog_public=1 --options-db options.db

  # Set several options in one transaction
  featurekit options set memory_limit=512M upload_max=64M --options-db options.db`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make(map[string]string, len(args))
			for _, arg := range args {
				name, value, ok := strings.Cut(arg, "=")
				if !ok || name == "" {
					return fmt.Errorf("invalid option %q, expected name=value", arg)
				}
				values[name] = value
			}

			return withStore(cmd, func(ctx context.Context, store *stores.SQLiteStore) error {
				if err := store.SetOptions(ctx, values, *actor); err != nil {
					return err
				}
				if noAutoload {
					for name := range values {
						if err := store.SetAutoload(ctx, name, false); err != nil {
							return err
						}
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d option(s) set\n", len(values))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&noAutoload, "no-autoload", false, "exclude the options from autoloading")

	return cmd
}

func newOptionsDeleteCommand(actor *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an option",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *stores.SQLiteStore) error {
				if err := store.DeleteOption(ctx, args[0], *actor); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "option %s deleted\n", args[0])
				return nil
			})
		},
	}
}

func newOptionsListCommand() *cobra.Command {
	var (
		prefix   string
		limit    int
		offset   int
		autoload bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *stores.SQLiteStore) error {
				out := cmd.OutOrStdout()

				if autoload {
					values, err := store.AutoloadOptions(ctx)
					if err != nil {
						return err
					}
					if jsonOutput {
						return writeJSON(out, values)
					}
					names := make([]string, 0, len(values))
					for name := range values {
						names = append(names, name)
					}
					sort.Strings(names)
					for _, name := range names {
						fmt.Fprintf(out, "%s=%s\n", name, values[name])
					}
					return nil
				}

				opts, err := store.ListOptions(ctx, prefix, limit, offset)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, opts)
				}
				for _, opt := range opts {
					line := fmt.Sprintf("%s=%s", opt.Name, opt.Value)
					if !opt.Autoload {
						line += " " + mutedStyle.Render("(no autoload)")
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "only list options with this name prefix")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of options")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of options to skip")
	cmd.Flags().BoolVar(&autoload, "autoload", false, "list the autoloaded name/value set")

	return cmd
}

func newOptionsHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [name]",
		Short: "Show recorded option changes, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name *string
			if len(args) > 0 {
				name = &args[0]
			}

			return withStore(cmd, func(ctx context.Context, store *stores.SQLiteStore) error {
				changes, err := store.ListChanges(ctx, name, limit, 0)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					return writeJSON(out, changes)
				}
				for _, c := range changes {
					fmt.Fprintf(out, "%s %s %s: %s -> %s\n",
						c.ChangedAt.Format("2006-01-02 15:04:05"), c.Actor, c.Name,
						valueOrUnset(c.OldValue), valueOrUnset(c.NewValue))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of changes")

	return cmd
}

func valueOrUnset(v *string) string {
	if v == nil {
		return mutedStyle.Render("(unset)")
	}
	return *v
}
