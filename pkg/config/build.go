package config

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/featurekit/pkg/dependencies"
	"github.com/openfroyo/featurekit/pkg/hooks"
	"github.com/openfroyo/featurekit/pkg/node"
	"github.com/openfroyo/featurekit/pkg/permissions"
)

// BuildOption configures Build.
type BuildOption func(*builder)

type builder struct {
	hooks      *hooks.Service
	aggregator *permissions.Aggregator
	depOpts    []dependencies.Option
	logger     zerolog.Logger
}

// WithHooks sets the hook service windows are created on.
func WithHooks(svc *hooks.Service) BuildOption {
	return func(b *builder) {
		b.hooks = svc
	}
}

// WithAggregator sets the aggregator features warm on setup.
func WithAggregator(a *permissions.Aggregator) BuildOption {
	return func(b *builder) {
		b.aggregator = a
	}
}

// WithDependencyOptions passes options to the dependencies service.
func WithDependencyOptions(opts ...dependencies.Option) BuildOption {
	return func(b *builder) {
		b.depOpts = append(b.depOpts, opts...)
	}
}

// WithLogger sets the logger handed to features.
func WithLogger(logger zerolog.Logger) BuildOption {
	return func(b *builder) {
		b.logger = logger
	}
}

// Tree is a manifest turned into nodes.
type Tree struct {
	Manifest     *Manifest
	Registry     *node.Registry
	Root         node.Node
	Dependencies *dependencies.Service

	// Environment is the environment checkers see, with manifest nodes
	// answering module checks.
	Environment dependencies.Environment

	// Windows holds the scoped handlers created for the manifest windows.
	Windows map[string]*hooks.ScopedHandler
}

// Build registers a constructor per manifest node, creates the dependency
// handlers and windows, and resolves the root. Nodes not reachable from the
// root are constructed on first resolution.
func Build(m *Manifest, env dependencies.Environment, opts ...BuildOption) (*Tree, error) {
	b := &builder{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(b)
	}

	m.Normalize()
	if err := checkReferences(m).ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	t := &Tree{
		Manifest:     m,
		Registry:     node.NewRegistry(),
		Dependencies: dependencies.NewService(b.depOpts...),
		Windows:      make(map[string]*hooks.ScopedHandler),
	}
	t.Environment = dependencies.WithModules(env, t.lookupModule)

	if len(m.Windows) > 0 && b.hooks == nil {
		return nil, fmt.Errorf("manifest declares windows but no hook service was provided")
	}
	for _, w := range m.Windows {
		scoped, err := b.hooks.NewScoped(hooks.HandlerID(w.ID),
			hooks.Trigger{Event: w.Start.Event, Priority: w.Start.Priority},
			hooks.Trigger{Event: w.End.Event, Priority: w.End.Priority},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create window %s: %w", w.ID, err)
		}
		t.Windows[w.ID] = scoped
	}

	for _, spec := range m.Nodes {
		var gate *dependencies.MultiHandler
		if len(spec.Dependencies) > 0 {
			gate = dependencies.NewMultiHandler()
			for _, cs := range spec.Dependencies {
				c, err := dependencies.NewChecker(cs.ID, cs.Kind, t.Environment, cs.Requires...)
				if err != nil {
					return nil, fmt.Errorf("node %s: %w", spec.ID, err)
				}
				gate.Add(c)
			}
			if err := t.Dependencies.RegisterHandler(dependencies.ActiveKey(spec.ID), gate); err != nil {
				return nil, err
			}
		}

		err := t.Registry.Register(spec.ID, func(r *node.Registry) (any, error) {
			nodeOpts := []node.Option{node.WithResolver(r)}
			if gate != nil {
				nodeOpts = append(nodeOpts, node.WithGate(gate))
			}
			f := newFeature(spec, b.aggregator, b.logger, nodeOpts...)
			for _, child := range spec.Children {
				if err := f.AddChild(child); err != nil {
					return nil, err
				}
			}
			return f, nil
		})
		if err != nil {
			return nil, err
		}
	}

	root, err := t.Registry.Node(m.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to build root %s: %w", m.Root, err)
	}
	t.Root = root

	b.logger.Debug().
		Str("root", m.Root).
		Int("nodes", len(m.Nodes)).
		Int("windows", len(m.Windows)).
		Msg("Tree built")
	return t, nil
}

// lookupModule answers module checks for manifest nodes. A disabled node is
// reported as inactive.
func (t *Tree) lookupModule(id string) (bool, string, bool) {
	if _, ok := t.Manifest.Node(id); !ok {
		return false, "", false
	}
	f, err := t.Feature(id)
	if err != nil {
		return false, "", false
	}
	return f.IsActive() && !f.IsDisabled(), f.Version(), true
}

// Feature resolves the feature with id.
func (t *Tree) Feature(id string) (*Feature, error) {
	n, err := t.Registry.Node(id)
	if err != nil {
		return nil, err
	}
	f, ok := n.(*Feature)
	if !ok {
		return nil, fmt.Errorf("node %s is a %T, not a feature", id, n)
	}
	return f, nil
}

// RootFeature returns the root as a Feature.
func (t *Tree) RootFeature() *Feature {
	f, _ := t.Root.(*Feature)
	return f
}

// NodeStatus is the observable state of one node.
type NodeStatus struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Parent    string     `json:"parent,omitempty"`
	Depth     int        `json:"depth"`
	State     node.State `json:"state"`
	Active    bool       `json:"active"`
	OwnActive bool       `json:"own_active"`
	Disabled  bool       `json:"disabled"`
	Fulfilled *bool      `json:"fulfilled,omitempty"`
}

// Status walks the tree from the root in insertion order.
func (t *Tree) Status() []NodeStatus {
	var out []NodeStatus
	node.Walk(t.Root, func(n node.Node, depth int) bool {
		st := NodeStatus{
			ID:        n.ID(),
			Name:      n.Name(),
			Depth:     depth,
			State:     node.StateOf(n),
			Active:    n.IsActive(),
			OwnActive: n.OwnActive(),
			Disabled:  n.IsDisabled(),
		}
		if f, ok := n.(*Feature); ok {
			st.Parent = f.ParentID()
		}
		if h, ok := t.Dependencies.Handler(dependencies.ActiveKey(n.ID())); ok {
			fulfilled := h.Fulfilled()
			st.Fulfilled = &fulfilled
		}
		out = append(out, st)
		return true
	})
	return out
}
