package node

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/featurekit/pkg/hooks"
	"github.com/openfroyo/featurekit/pkg/telemetry"
)

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithHooks sets the hooks service given to HookRegistrar nodes and used for
// deferred setups.
func WithHooks(svc *hooks.Service) LifecycleOption {
	return func(l *Lifecycle) {
		l.hooks = svc
	}
}

// WithTelemetry attaches logging, tracing, metrics and events.
func WithTelemetry(tel *telemetry.Telemetry) LifecycleOption {
	return func(l *Lifecycle) {
		if tel == nil {
			return
		}
		if tel.Logger != nil {
			l.logger = tel.Logger.Zerolog()
		}
		l.tracer = tel.Tracer
		l.metrics = tel.Metrics
		l.events = tel.Events
	}
}

// WithLogger sets the lifecycle logger.
func WithLogger(logger zerolog.Logger) LifecycleOption {
	return func(l *Lifecycle) {
		l.logger = logger
	}
}

// Lifecycle drives initialization and setup of a node tree.
//
// Initialize walks the tree top-down: local initialization, hook
// registration, children in insertion order, then setup of the children.
// Disabled nodes are skipped together with their subtree. The first failure
// stops the walk and is returned; nodes initialized before it stay
// initialized.
type Lifecycle struct {
	hooks   *hooks.Service
	logger  zerolog.Logger
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
}

// NewLifecycle creates a lifecycle controller.
func NewLifecycle(opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With().Str("component", "lifecycle").Logger()
	return l
}

// Initialize initializes the tree rooted at n. It returns ErrNotReady, with
// no side effects, until ready reports true. Each node's own steps run at most
// once: calling Initialize again only initializes children added since, and a
// node that failed keeps returning its failure.
func (l *Lifecycle) Initialize(ctx context.Context, n Node, ready Readiness) error {
	if ready == nil || !ready.Ready() {
		l.logger.Debug().Str("node_id", n.ID()).Msg("Initialize called before bootstrap is ready")
		return ErrNotReady
	}

	timer := telemetry.NewTimer()
	ctx, span := l.tracer.StartNodeSpan(ctx, n.ID(), "initialize_tree")
	defer span.End()

	err := l.initialize(ctx, n)

	result := "success"
	if err != nil {
		result = "failure"
		telemetry.RecordError(span, err)
		l.metrics.RecordError(errorCode(err))
		l.logger.Error().Err(err).Str("node_id", n.ID()).Msg("Tree initialization failed")
	} else {
		telemetry.RecordSuccess(span)
		l.logger.Info().Str("node_id", n.ID()).Dur("duration", timer.Duration()).Msg("Tree initialized")
	}
	l.metrics.RecordTreeInitialize(result, timer.Duration())
	return err
}

func (l *Lifecycle) initialize(ctx context.Context, n Node) error {
	b := n.base()
	if b.disabled {
		l.metrics.RecordNodeInitialization("skipped")
		l.events.PublishNodeSkipped(b.id)
		l.logger.Debug().Str("node_id", b.id).Msg("Node disabled, skipping subtree")
		return nil
	}
	if b.failure != nil {
		return b.failure
	}

	ctx, span := l.tracer.StartNodeSpan(ctx, b.id, "initialize")
	defer span.End()

	// Repeated calls only reach children added since the last walk.
	if !b.initialized {
		if err := l.initializeSelf(ctx, n); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
	}

	if err := l.initializeChildren(ctx, n); err != nil {
		b.failure = &InitializationError{NodeID: b.id, Phase: PhaseInitialize, Err: err}
		telemetry.RecordError(span, b.failure)
		return b.failure
	}

	if err := l.maybeSetupChildren(ctx, n); err != nil {
		b.failure = &InitializationError{NodeID: b.id, Phase: PhaseSetup, Err: err}
		telemetry.RecordError(span, b.failure)
		return b.failure
	}

	telemetry.RecordSuccess(span)
	return nil
}

// initializeSelf runs the node's own steps and marks it initialized.
func (l *Lifecycle) initializeSelf(ctx context.Context, n Node) error {
	b := n.base()

	if li, ok := n.(LocalInitializer); ok {
		if err := li.InitializeLocal(ctx); err != nil {
			return l.fail(b, PhaseInitialize, err)
		}
	}

	if hr, ok := n.(HookRegistrar); ok && n.IsActive() {
		if l.hooks == nil {
			return l.fail(b, PhaseHooks, ErrNoHooks)
		}
		if err := hr.RegisterHooks(l.hooks); err != nil {
			return l.fail(b, PhaseHooks, err)
		}
	}

	b.initialized = true
	if _, ok := n.(Setupable); !ok {
		b.ready = true
	}
	l.metrics.RecordNodeInitialization("success")
	l.events.PublishNodeInitialized(b.id)
	l.logger.Debug().Str("node_id", b.id).Msg("Node initialized")
	return nil
}

func (l *Lifecycle) fail(b *Base, phase Phase, err error) error {
	b.failure = &InitializationError{NodeID: b.id, Phase: phase, Err: err}
	l.metrics.RecordNodeInitialization("failure")
	l.events.PublishNodeInitFailed(b.id, err)
	l.logger.Warn().Err(err).Str("node_id", b.id).Str("phase", string(phase)).Msg("Node initialization failed")
	return b.failure
}

// initializeChildren initializes children in insertion order and stops at the
// first failure.
func (l *Lifecycle) initializeChildren(ctx context.Context, n Node) error {
	for _, child := range n.base().children {
		if err := l.initialize(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// maybeSetupChildren sets up every active, enabled Setupable child, or binds
// its setup to its deferral event.
func (l *Lifecycle) maybeSetupChildren(ctx context.Context, n Node) error {
	for _, child := range n.base().children {
		cb := child.base()
		if cb.disabled || !child.IsActive() {
			continue
		}
		if _, ok := child.(Setupable); !ok {
			continue
		}
		if event, deferred := cb.DeferredSetup(); deferred {
			if err := l.DeferSetup(child, event, cb.deferPriority); err != nil {
				return err
			}
			continue
		}
		if err := l.Setup(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// Setup runs the setup step of a single initialized node. Disabled or
// inactive nodes are skipped, and a node that is already ready is left alone.
func (l *Lifecycle) Setup(ctx context.Context, n Node) error {
	return l.setup(ctx, n, "immediate")
}

func (l *Lifecycle) setup(ctx context.Context, n Node, mode string) error {
	b := n.base()
	if b.disabled || !n.IsActive() {
		l.metrics.RecordNodeSetup(mode, "skipped")
		return nil
	}
	if b.failure != nil {
		return b.failure
	}
	if !b.initialized {
		return &InitializationError{NodeID: b.id, Phase: PhaseSetup, Err: ErrNotInitialized}
	}
	if b.ready {
		return nil
	}

	ctx, span := l.tracer.StartNodeSpan(ctx, b.id, "setup")
	defer span.End()

	if s, ok := n.(Setupable); ok {
		if err := s.Setup(ctx); err != nil {
			b.failure = &InitializationError{NodeID: b.id, Phase: PhaseSetup, Err: err}
			telemetry.RecordError(span, err)
			l.metrics.RecordNodeSetup(mode, "failure")
			l.events.PublishNodeSetupFailed(b.id, err)
			l.logger.Warn().Err(err).Str("node_id", b.id).Msg("Node setup failed")
			return b.failure
		}
	}

	b.ready = true
	telemetry.RecordSuccess(span)
	l.metrics.RecordNodeSetup(mode, "success")
	l.events.PublishNodeReady(b.id, mode)
	l.logger.Debug().Str("node_id", b.id).Str("mode", mode).Msg("Node ready")
	return nil
}

// DeferSetup registers n's setup as a Direct hook on event. Errors raised
// when the hook fires are kept as the node's failure and logged.
func (l *Lifecycle) DeferSetup(n Node, event string, priority int) error {
	if l.hooks == nil {
		return fmt.Errorf("defer setup of %s: %w", n.ID(), ErrNoHooks)
	}

	cb := func(ctx context.Context, args ...any) any {
		if err := l.setup(ctx, n, "deferred"); err != nil {
			l.logger.Error().Err(err).Str("node_id", n.ID()).Str("event", event).Msg("Deferred setup failed")
		}
		if len(args) > 0 {
			return args[0]
		}
		return nil
	}

	err := l.hooks.AddAction(event, "setup", cb,
		hooks.Subscriber(n),
		hooks.Priority(priority),
		hooks.Via(hooks.DirectHandlerID),
	)
	if err != nil {
		return fmt.Errorf("defer setup of %s: %w", n.ID(), err)
	}

	l.events.PublishNodeSetupDeferred(n.ID(), event)
	l.logger.Debug().Str("node_id", n.ID()).Str("event", event).Msg("Node setup deferred")
	return nil
}
