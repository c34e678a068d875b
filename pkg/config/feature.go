package config

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/featurekit/pkg/hooks"
	"github.com/openfroyo/featurekit/pkg/node"
	"github.com/openfroyo/featurekit/pkg/permissions"
)

// Feature is the node type built from a NodeSpec. It declares permissions,
// registers its hooks while active and, on setup, warms the permission
// caches of its subtree.
type Feature struct {
	node.Base

	spec       NodeSpec
	aggregator *permissions.Aggregator
	logger     zerolog.Logger

	fired  map[string]int
	setups int
}

var (
	_ permissions.Bearer    = (*Feature)(nil)
	_ node.LocalInitializer = (*Feature)(nil)
	_ node.HookRegistrar    = (*Feature)(nil)
	_ node.Setupable        = (*Feature)(nil)
)

func newFeature(spec NodeSpec, aggregator *permissions.Aggregator, logger zerolog.Logger, opts ...node.Option) *Feature {
	opts = append([]node.Option{
		node.WithActive(spec.IsActive()),
		node.WithDisabled(spec.Disabled),
	}, opts...)
	if spec.Setup != nil {
		opts = append(opts, node.WithDeferredSetup(spec.Setup.Event, spec.Setup.Priority))
	}

	return &Feature{
		Base:       node.NewBase(spec.ID, spec.DisplayName(), opts...),
		spec:       spec,
		aggregator: aggregator,
		logger:     logger.With().Str("node_id", spec.ID).Logger(),
		fired:      make(map[string]int),
	}
}

// Spec returns the declaration the feature was built from.
func (f *Feature) Spec() NodeSpec {
	return f.spec
}

// Version returns the version reported to module checks.
func (f *Feature) Version() string {
	return f.spec.Version
}

// Permissions implements permissions.Bearer.
func (f *Feature) Permissions() []string {
	return append([]string(nil), f.spec.Permissions...)
}

// GrantingRules implements permissions.Bearer.
func (f *Feature) GrantingRules() []permissions.Rule {
	return append([]permissions.Rule(nil), f.spec.Rules...)
}

// InitializeLocal implements node.LocalInitializer.
func (f *Feature) InitializeLocal(_ context.Context) error {
	f.logger.Debug().Int("hooks", len(f.spec.Hooks)).Msg("Feature initialized")
	return nil
}

// RegisterHooks implements node.HookRegistrar. Callbacks count their
// invocations and pass a filter's first argument through unchanged.
func (f *Feature) RegisterHooks(svc *hooks.Service) error {
	for _, h := range f.spec.Hooks {
		opts := []hooks.CallOption{hooks.Subscriber(f)}
		if h.Priority != 0 {
			opts = append(opts, hooks.Priority(h.Priority))
		}
		if h.Arity != 0 {
			opts = append(opts, hooks.Arity(h.Arity))
		}
		if h.Handler != "" {
			opts = append(opts, hooks.Via(hooks.HandlerID(h.Handler)))
		}

		cb := f.callback(h)
		var err error
		switch h.Kind {
		case "action":
			err = svc.AddAction(h.Event, h.Callback, cb, opts...)
		case "filter":
			err = svc.AddFilter(h.Event, h.Callback, cb, opts...)
		default:
			err = fmt.Errorf("unknown hook kind %q", h.Kind)
		}
		if err != nil {
			return fmt.Errorf("failed to register hook %s on %s: %w", h.Callback, h.Event, err)
		}
	}
	return nil
}

func (f *Feature) callback(h HookSpec) hooks.Callback {
	return func(_ context.Context, args ...any) any {
		f.fired[h.Callback]++
		f.logger.Debug().Str("event", h.Event).Str("callback", h.Callback).Msg("Hook fired")
		if len(args) > 0 {
			return args[0]
		}
		return nil
	}
}

// Fired returns how often the callback with id has run.
func (f *Feature) Fired(callbackID string) int {
	return f.fired[callbackID]
}

// Setup implements node.Setupable.
func (f *Feature) Setup(_ context.Context) error {
	f.setups++
	if f.aggregator != nil {
		perms := f.aggregator.CollectPermissions(f)
		f.aggregator.CollectGrantingRules(f)
		f.logger.Debug().Int("permissions", len(perms)).Msg("Permissions compiled")
	}
	return nil
}

// Setups returns how often Setup has run.
func (f *Feature) Setups() int {
	return f.setups
}
