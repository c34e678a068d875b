package hooks

import (
	"github.com/rs/zerolog"

	"github.com/openfroyo/featurekit/pkg/telemetry"
)

// HandlerID identifies a handler inside a Service.
type HandlerID string

// Built-in handler ids registered by NewDefaultService.
const (
	DirectHandlerID   HandlerID = "direct"
	BufferedHandlerID HandlerID = "buffered"
)

// Variant tags the registration strategy of a handler.
type Variant string

const (
	VariantDirect   Variant = "direct"
	VariantBuffered Variant = "buffered"
	VariantScoped   Variant = "scoped"
)

// Handler turns hook records into host bus registrations.
type Handler interface {
	// ID returns the handler id.
	ID() HandlerID

	// Variant returns the registration strategy.
	Variant() Variant

	// Add records rec and, depending on the variant, registers it.
	Add(rec Record)

	// Remove drops the record with rec's key. Absent keys are a no-op.
	Remove(rec Record)

	// RemoveAll clears every record held by the handler.
	RemoveAll()

	// Records returns the records currently held, in insertion order.
	Records() []Record
}

// Runner is implemented by handlers that defer registration until flushed.
type Runner interface {
	Handler

	// Run flushes pending records to the host bus.
	Run()

	// Reset undoes Run.
	Reset()

	// Running reports whether the handler is currently flushed.
	Running() bool
}

// Option configures a handler.
type Option func(*core)

// WithTelemetry attaches logging, metrics and events to a handler.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(c *core) {
		if tel == nil {
			return
		}
		if tel.Logger != nil {
			c.logger = tel.Logger.Zerolog()
		}
		c.metrics = tel.Metrics
		c.events = tel.Events
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *core) {
		c.logger = logger
	}
}

// core holds the state shared by every handler variant.
type core struct {
	id      HandlerID
	variant Variant
	bus     Bus
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher

	// displaced holds foreign hooks that one of our records replaced on the
	// bus; they are put back when our record is released.
	displaced map[Key]Record
}

// applyOptions returns a core carrying only the settings from opts.
func applyOptions(opts []Option) core {
	c := core{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func newCore(id HandlerID, variant Variant, bus Bus, opts []Option) core {
	c := applyOptions(opts)
	c.id = id
	c.variant = variant
	c.bus = bus
	c.displaced = make(map[Key]Record)
	c.logger = c.logger.With().
		Str("component", "hooks").
		Str("handler", string(id)).
		Str("variant", string(variant)).
		Logger()
	return c
}

// ID implements Handler.
func (c *core) ID() HandlerID {
	return c.id
}

// Variant implements Handler.
func (c *core) Variant() Variant {
	return c.variant
}

// register wires rec into the bus and keeps the registered-hook gauge current.
func (c *core) register(rec Record) (Record, bool) {
	previous, replaced := c.bus.Register(rec)
	if !replaced {
		c.metrics.AddHooksRegistered(string(c.id), 1)
	}
	c.logger.Trace().
		Str("event", rec.Event).
		Str("callback", rec.CallbackID).
		Int("priority", rec.Priority).
		Bool("replaced", replaced).
		Msg("Hook registered")
	return previous, replaced
}

// deregister removes key from the bus.
func (c *core) deregister(key Key) (Record, bool) {
	rec, ok := c.bus.Deregister(key)
	if ok {
		c.metrics.AddHooksRegistered(string(c.id), -1)
		c.logger.Trace().
			Str("event", key.Event).
			Str("callback", key.CallbackID).
			Int("priority", key.Priority).
			Msg("Hook deregistered")
	}
	return rec, ok
}

// claim registers rec. owned reports whether the bus entry under rec's key, if
// any, already belongs to this handler; otherwise a replaced entry is kept
// aside for release.
func (c *core) claim(rec Record, owned bool) {
	previous, replaced := c.register(rec)
	if replaced && !owned {
		c.displaced[rec.Key()] = previous
	}
}

// release deregisters key and restores whatever hook it displaced. When our
// record is already gone from the bus, the displaced hook was cleared along
// with it and stays gone.
func (c *core) release(key Key) {
	_, held := c.deregister(key)
	previous, ok := c.displaced[key]
	if !ok {
		return
	}
	delete(c.displaced, key)
	if held {
		c.bus.Register(previous)
		c.metrics.AddHooksRegistered(string(c.id), 1)
	}
}
