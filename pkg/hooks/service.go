package hooks

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownHandler is returned when a call names a handler id that was
	// never registered.
	ErrUnknownHandler = errors.New("unknown hook handler")

	// ErrDuplicateHandler is returned when registering a handler id twice.
	ErrDuplicateHandler = errors.New("hook handler already registered")

	// ErrNotRunner is returned when Run or Reset targets a Direct handler.
	ErrNotRunner = errors.New("hook handler cannot be run")
)

// CallOption customizes a single add or remove call on a Service.
type CallOption func(*call)

type call struct {
	subscriber any
	priority   int
	arity      int
	via        HandlerID
}

// Priority sets the hook priority. Lower priorities run first.
func Priority(p int) CallOption {
	return func(c *call) {
		c.priority = p
	}
}

// Arity sets how many arguments the callback receives.
func Arity(n int) CallOption {
	return func(c *call) {
		c.arity = n
	}
}

// Subscriber binds the hook to an object; hooks of different subscribers with
// the same callback id are distinct.
func Subscriber(s any) CallOption {
	return func(c *call) {
		c.subscriber = s
	}
}

// Via routes the call to a specific handler instead of the per-kind default.
func Via(id HandlerID) CallOption {
	return func(c *call) {
		c.via = id
	}
}

// Service forwards hook calls to registered handlers. It holds no hook state
// of its own.
type Service struct {
	bus      Bus
	opts     []Option
	handlers map[HandlerID]Handler
	defaults map[Kind]HandlerID
	logger   zerolog.Logger
}

// NewService creates an empty service. bus and opts are used by NewScoped to
// build scoped handlers on the same host bus.
func NewService(bus Bus, opts ...Option) *Service {
	s := &Service{
		bus:      bus,
		opts:     opts,
		handlers: make(map[HandlerID]Handler),
		defaults: map[Kind]HandlerID{
			KindAction: DirectHandlerID,
			KindFilter: DirectHandlerID,
		},
	}
	s.logger = applyOptions(opts).logger.With().Str("component", "hooks").Logger()
	return s
}

// NewDefaultService creates a service with a Direct handler and a Buffered
// handler registered under DirectHandlerID and BufferedHandlerID.
func NewDefaultService(bus Bus, opts ...Option) *Service {
	s := NewService(bus, opts...)
	// Fresh service: ids cannot collide.
	_ = s.RegisterHandler(NewDirectHandler(DirectHandlerID, bus, opts...))
	_ = s.RegisterHandler(NewBufferedHandler(BufferedHandlerID, bus, opts...))
	return s
}

// RegisterHandler adds h to the registry.
func (s *Service) RegisterHandler(h Handler) error {
	if _, exists := s.handlers[h.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, h.ID())
	}
	s.handlers[h.ID()] = h
	s.logger.Debug().
		Str("id", string(h.ID())).
		Str("variant", string(h.Variant())).
		Msg("Hook handler registered")
	return nil
}

// Handler returns the handler registered under id.
func (s *Service) Handler(id HandlerID) (Handler, bool) {
	h, ok := s.handlers[id]
	return h, ok
}

// Handlers returns the registered handler ids in sorted order.
func (s *Service) Handlers() []HandlerID {
	ids := make([]HandlerID, 0, len(s.handlers))
	for id := range s.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetDefault changes the handler used for kind when a call has no Via option.
func (s *Service) SetDefault(kind Kind, id HandlerID) error {
	if _, ok := s.handlers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandler, id)
	}
	s.defaults[kind] = id
	return nil
}

// NewScoped creates a Scoped handler on the service bus, wires its triggers
// through the Direct handler and registers it.
func (s *Service) NewScoped(id HandlerID, start, end Trigger) (*ScopedHandler, error) {
	if _, exists := s.handlers[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateHandler, id)
	}
	h, ok := s.handlers[DirectHandlerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, DirectHandlerID)
	}
	direct, ok := h.(*DirectHandler)
	if !ok {
		return nil, fmt.Errorf("handler %s is %s, scoped triggers need a direct handler", DirectHandlerID, h.Variant())
	}

	scoped := NewScopedHandler(id, s.bus, direct, start, end, s.opts...)
	if err := s.RegisterHandler(scoped); err != nil {
		return nil, err
	}
	return scoped, nil
}

// AddAction adds an action hook.
func (s *Service) AddAction(event, callbackID string, cb Callback, opts ...CallOption) error {
	return s.add(KindAction, event, callbackID, cb, opts)
}

// AddFilter adds a filter hook.
func (s *Service) AddFilter(event, callbackID string, cb Callback, opts ...CallOption) error {
	return s.add(KindFilter, event, callbackID, cb, opts)
}

// RemoveAction removes an action hook. Removing a hook that was never added
// is a no-op.
func (s *Service) RemoveAction(event, callbackID string, opts ...CallOption) error {
	return s.remove(KindAction, event, callbackID, opts)
}

// RemoveFilter removes a filter hook.
func (s *Service) RemoveFilter(event, callbackID string, opts ...CallOption) error {
	return s.remove(KindFilter, event, callbackID, opts)
}

// RemoveAll clears the named handlers, or every handler when ids is empty.
func (s *Service) RemoveAll(ids ...HandlerID) error {
	if len(ids) == 0 {
		ids = s.Handlers()
	}
	var (
		result  *multierror.Error
		targets []Handler
	)
	for _, id := range ids {
		h, ok := s.handlers[id]
		if !ok {
			result = multierror.Append(result, fmt.Errorf("%w: %s", ErrUnknownHandler, id))
			continue
		}
		targets = append(targets, h)
	}

	// Flushed handlers give back the hooks they displaced or suspended
	// before anything is cleared, so no cleared hook is restored afterwards.
	for _, h := range targets {
		if r, ok := h.(Runner); ok {
			r.Reset()
		}
	}
	for _, h := range targets {
		h.RemoveAll()
	}
	return result.ErrorOrNil()
}

// Run flushes the Buffered or Scoped handler id.
func (s *Service) Run(id HandlerID) error {
	r, err := s.runner(id)
	if err != nil {
		return err
	}
	r.Run()
	return nil
}

// Reset reverses Run on handler id.
func (s *Service) Reset(id HandlerID) error {
	r, err := s.runner(id)
	if err != nil {
		return err
	}
	r.Reset()
	return nil
}

func (s *Service) runner(id HandlerID) (Runner, error) {
	h, ok := s.handlers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, id)
	}
	r, ok := h.(Runner)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotRunner, id, h.Variant())
	}
	return r, nil
}

func (s *Service) add(kind Kind, event, callbackID string, cb Callback, opts []CallOption) error {
	c := s.resolve(kind, opts)
	h, ok := s.handlers[c.via]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandler, c.via)
	}
	h.Add(Record{
		Kind:       kind,
		Event:      event,
		Subscriber: c.subscriber,
		CallbackID: callbackID,
		Callback:   cb,
		Priority:   c.priority,
		Arity:      c.arity,
	})
	return nil
}

func (s *Service) remove(kind Kind, event, callbackID string, opts []CallOption) error {
	c := s.resolve(kind, opts)
	h, ok := s.handlers[c.via]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandler, c.via)
	}
	h.Remove(Record{
		Kind:       kind,
		Event:      event,
		Subscriber: c.subscriber,
		CallbackID: callbackID,
		Priority:   c.priority,
		Arity:      c.arity,
	})
	return nil
}

func (s *Service) resolve(kind Kind, opts []CallOption) call {
	c := call{
		priority: DefaultPriority,
		arity:    DefaultArity,
		via:      s.defaults[kind],
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
