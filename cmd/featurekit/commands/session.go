package commands

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openfroyo/featurekit/pkg/cache"
	"github.com/openfroyo/featurekit/pkg/config"
	"github.com/openfroyo/featurekit/pkg/dependencies"
	"github.com/openfroyo/featurekit/pkg/hooks"
	"github.com/openfroyo/featurekit/pkg/node"
	"github.com/openfroyo/featurekit/pkg/permissions"
	"github.com/openfroyo/featurekit/pkg/stores"
	"github.com/openfroyo/featurekit/pkg/telemetry"
)

// session holds what every command needs: the application config, the
// telemetry bundle and the optional option store.
type session struct {
	cfg    *config.AppConfig
	tel    *telemetry.Telemetry
	logger zerolog.Logger
	store  *stores.SQLiteStore
}

// openSession loads the config file and applies the global flags over it.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.LoadAppConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Telemetry.Logging.Level = logLevel
	}
	if envPath != "" {
		cfg.Environment = envPath
	}
	if optionsDB != "" {
		cfg.OptionsDB = optionsDB
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	s := &session{
		cfg:    cfg,
		tel:    tel,
		logger: tel.Logger.Zerolog(),
	}
	log.Logger = s.logger

	if cfg.OptionsDB != "" {
		store, err := stores.Open(ctx, cfg.OptionsDB, s.logger)
		if err != nil {
			_ = tel.Shutdown(ctx)
			return nil, fmt.Errorf("failed to open option store: %w", err)
		}
		s.store = store
	}

	return s, nil
}

// Close releases the option store and flushes the tracer.
func (s *session) Close(ctx context.Context) error {
	var result *multierror.Error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close option store: %w", err))
		}
	}
	if err := s.tel.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to shut down tracer: %w", err))
	}
	return result.ErrorOrNil()
}

// requireStore returns the option store or an error naming the flag.
func (s *session) requireStore() (*stores.SQLiteStore, error) {
	if s.store == nil {
		return nil, fmt.Errorf("no option store configured, use --options-db or options_db in the config file")
	}
	return s.store, nil
}

// environment returns the environment fixture, overlaid with the option
// store's settings when a store is open.
func (s *session) environment(ctx context.Context) (dependencies.Environment, error) {
	var env dependencies.Environment = &dependencies.StaticEnvironment{}
	if s.cfg.Environment != "" {
		static, err := dependencies.LoadEnvironment(s.cfg.Environment)
		if err != nil {
			return nil, err
		}
		env = static
	}
	if s.store != nil {
		env = dependencies.WithSettings(env, s.store.SettingsLookup(ctx))
	}
	return env, nil
}

// loadManifest loads path and runs every validation layer over it.
func (s *session) loadManifest(ctx context.Context, path string) (*config.LoadedManifest, error) {
	loaded, err := config.NewManifestLoader().Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := config.NewValidator().Validate(ctx, loaded.Manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	s.logger.Debug().Str("path", path).Int("nodes", len(loaded.Manifest.Nodes)).Msg("Manifest loaded")
	return loaded, nil
}

// runtime is a built tree together with the services driving it.
type runtime struct {
	tel        *telemetry.Telemetry
	tree       *config.Tree
	bus        *hooks.MemoryBus
	hooks      *hooks.Service
	lifecycle  *node.Lifecycle
	aggregator *permissions.Aggregator
}

// build constructs the tree for m against the session environment.
func (s *session) build(ctx context.Context, m *config.Manifest) (rt *runtime, err error) {
	op := telemetry.StartOperation(s.tel.WithContext(ctx), "tree.build",
		attribute.Int("nodes", len(m.Nodes)))
	defer func() { op.End(err) }()
	ctx = op.Ctx

	env, err := s.environment(ctx)
	if err != nil {
		return nil, err
	}

	bus := hooks.NewMemoryBus()
	svc := hooks.NewDefaultService(bus, hooks.WithTelemetry(s.tel))
	aggregator := permissions.NewAggregator(cache.NewMemory(), permissions.WithTelemetry(s.tel))

	tree, err := config.Build(m, env,
		config.WithHooks(svc),
		config.WithAggregator(aggregator),
		config.WithLogger(s.logger),
		config.WithDependencyOptions(dependencies.WithTelemetry(s.tel)),
	)
	if err != nil {
		return nil, err
	}

	return &runtime{
		tel:        s.tel,
		tree:       tree,
		bus:        bus,
		hooks:      svc,
		lifecycle:  node.NewLifecycle(node.WithHooks(svc), node.WithTelemetry(s.tel)),
		aggregator: aggregator,
	}, nil
}

// boot initializes the tree when readyEvent fires on the bus, then sets up
// the root.
func (r *runtime) boot(ctx context.Context, readyEvent string) (err error) {
	op := telemetry.StartOperation(r.tel.WithContext(ctx), "tree.boot",
		telemetry.AttrNodeID.String(r.tree.Root.ID()))
	defer func() { op.End(err) }()
	ctx = op.Ctx

	var (
		bootstrap node.Bootstrap
		initErr   error
	)
	err = r.hooks.AddAction(readyEvent, "bootstrap", func(ctx context.Context, args ...any) any {
		bootstrap.MarkReady()
		initErr = r.lifecycle.Initialize(ctx, r.tree.Root, &bootstrap)
		return nil
	}, hooks.Via(hooks.DirectHandlerID))
	if err != nil {
		return fmt.Errorf("failed to bind bootstrap to %s: %w", readyEvent, err)
	}

	r.bus.DoAction(ctx, readyEvent)
	if initErr != nil {
		return initErr
	}
	if !bootstrap.Ready() {
		return node.ErrNotReady
	}
	return r.lifecycle.Setup(ctx, r.tree.Root)
}
