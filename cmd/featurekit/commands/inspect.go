package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/featurekit/pkg/config"
	"github.com/openfroyo/featurekit/pkg/dependencies"
	"github.com/openfroyo/featurekit/pkg/telemetry"
)

type inspectResult struct {
	Nodes  []config.NodeStatus `json:"nodes"`
	Error  string              `json:"error,omitempty"`
	Events []telemetry.Event   `json:"events,omitempty"`
}

func newInspectCommand() *cobra.Command {
	var (
		showEvents  bool
		showMetrics bool
		eventNode   string
	)

	cmd := &cobra.Command{
		Use:   "inspect <manifest>",
		Short: "Initialize a feature tree and show node states",
		Long: `Build the tree described by a manifest, initialize it against an
environment and show where every node ended up.

The tree is initialized when the configured ready event fires, after which
the root is set up. Nodes with a deferred setup stay initialized until
their event fires. For every node the output shows its lifecycle state,
whether it is active, disabled, and whether its dependencies are met.`,
		Example: `  # Inspect a manifest against an environment fixture
  featurekit inspect manifest.yaml --env env.yaml

  # Include lifecycle events and metrics
  featurekit inspect manifest.yaml --env env.yaml --events --metrics`,
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

			bootErr := rt.boot(ctx, s.cfg.ReadyEvent)

			result := inspectResult{Nodes: rt.tree.Status()}
			if bootErr != nil {
				result.Error = bootErr.Error()
			}
			if showEvents {
				result.Events = filterEvents(s.tel.Events.History(), eventNode)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := writeJSON(out, result); err != nil {
					return err
				}
			} else {
				printStatus(out, result.Nodes, rt.tree.Dependencies)
				if showEvents {
					printEvents(out, result.Events)
				}
			}

			if showMetrics && !jsonOutput {
				fmt.Fprintln(out)
				if err := writeMetrics(out, s.tel.Metrics.Registry()); err != nil {
					return err
				}
			}

			return bootErr
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", false, "print the lifecycle event history")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print collected metrics")
	cmd.Flags().StringVar(&eventNode, "node", "", "only print events of this node")

	return cmd
}

func printStatus(w io.Writer, nodes []config.NodeStatus, deps *dependencies.Service) {
	fmt.Fprintln(w, headerStyle.Render("NODES"))
	for _, st := range nodes {
		indent := strings.Repeat("  ", st.Depth+1)

		var flags []string
		switch {
		case st.Disabled:
			flags = append(flags, mutedStyle.Render("disabled"))
		case st.Active:
			flags = append(flags, okStyle.Render("active"))
		default:
			flags = append(flags, warnStyle.Render("inactive"))
		}
		if st.Fulfilled != nil {
			flags = append(flags, flag(*st.Fulfilled, "deps met", "deps unmet"))
		}

		fmt.Fprintf(w, "%s%s [%s] %s\n", indent, st.ID, stateLabel(st), strings.Join(flags, " "))

		if st.Fulfilled == nil || *st.Fulfilled {
			continue
		}
		status, err := deps.Evaluate(dependencies.ActiveKey(st.ID))
		if err != nil {
			continue
		}
		for _, line := range missingLines(status) {
			fmt.Fprintf(w, "%s  %s\n", indent, mutedStyle.Render(line))
		}
	}
}

func stateLabel(st config.NodeStatus) string {
	switch st.State {
	case "ready":
		return okStyle.Render(string(st.State))
	case "failed":
		return errorStyle.Render(string(st.State))
	default:
		return string(st.State)
	}
}

// missingLines renders a status's unmet descriptors, sorted by checker then
// key.
func missingLines(status dependencies.Status) []string {
	checkers := make([]string, 0, len(status.Missing))
	for id := range status.Missing {
		checkers = append(checkers, id)
	}
	sort.Strings(checkers)

	var lines []string
	for _, id := range checkers {
		keys := make([]string, 0, len(status.Missing[id]))
		for k := range status.Missing[id] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			m := status.Missing[id][k]
			lines = append(lines, fmt.Sprintf("%s/%s: want %s, have %s", id, k, m.Expected, m.Actual))
		}
	}
	return lines
}

func filterEvents(events []telemetry.Event, nodeID string) []telemetry.Event {
	if nodeID == "" {
		return events
	}
	keep := telemetry.FilterByNodeID(nodeID)
	var out []telemetry.Event
	for _, e := range events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func printEvents(w io.Writer, events []telemetry.Event) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("EVENTS"))
	for _, e := range events {
		fmt.Fprintf(w, "  %s %-28s %s\n", e.Timestamp.Format("15:04:05.000"), e.Type, e.Message)
	}
}
