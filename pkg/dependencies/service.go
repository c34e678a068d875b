package dependencies

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/openfroyo/featurekit/pkg/telemetry"
)

var (
	// ErrDuplicateHandler is returned when a key is registered twice.
	ErrDuplicateHandler = errors.New("dependency handler already registered")

	// ErrUnknownHandler is returned when evaluating an unregistered key.
	ErrUnknownHandler = errors.New("unknown dependency handler")
)

// State is the lifecycle state a handler gates.
type State string

const (
	// StateActive gates whether a node may be active.
	StateActive State = "active"
	// StateSetup gates whether a node may run its setup.
	StateSetup State = "setup"
)

// Key identifies a handler: the gated state and the scope it applies to,
// usually a node id.
type Key struct {
	State State
	Scope string
}

// String renders the key as "{state}_{scope}".
func (k Key) String() string {
	return string(k.State) + "_" + k.Scope
}

// ActiveKey returns the Key gating activation of scope.
func ActiveKey(scope string) Key {
	return Key{State: StateActive, Scope: scope}
}

// Option configures a Service.
type Option func(*Service)

// WithTelemetry attaches logging, metrics and events to the service.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(s *Service) {
		if tel == nil {
			return
		}
		if tel.Logger != nil {
			s.logger = tel.Logger.Zerolog()
		}
		s.metrics = tel.Metrics
		s.events = tel.Events
	}
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service is the registry of dependency handlers.
type Service struct {
	handlers map[Key]Handler
	order    []Key
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	events   *telemetry.EventPublisher
}

// NewService creates an empty registry.
func NewService(opts ...Option) *Service {
	s := &Service{
		handlers: make(map[Key]Handler),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "dependencies").Logger()
	return s
}

// RegisterHandler adds h under key. Keys are unique.
func (s *Service) RegisterHandler(key Key, h Handler) error {
	if _, exists := s.handlers[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, key)
	}
	s.handlers[key] = h
	s.order = append(s.order, key)
	s.logger.Debug().Str("handler", key.String()).Int("checkers", len(h.Checkers())).Msg("Dependency handler registered")
	return nil
}

// Handler returns the handler registered under key.
func (s *Service) Handler(key Key) (Handler, bool) {
	h, ok := s.handlers[key]
	return h, ok
}

// Keys returns the registered keys in registration order.
func (s *Service) Keys() []Key {
	out := make([]Key, len(s.order))
	copy(out, s.order)
	return out
}

// Evaluate computes the status of the handler under key and records the
// result.
func (s *Service) Evaluate(key Key) (Status, error) {
	h, ok := s.handlers[key]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownHandler, key)
	}

	status := h.Status()
	fulfilled := StatusToBoolean(status, false)
	s.metrics.RecordDependencyCheck(key.String(), fulfilled)

	if len(status.Missing) > 0 {
		names := missingNames(status)
		s.events.PublishDependencyUnfulfilled(key.String(), names)
		event := s.logger.Debug()
		if !fulfilled {
			event = s.logger.Warn()
		}
		event.Str("handler", key.String()).Strs("missing", names).Bool("fulfilled", fulfilled).
			Msg("Dependencies not met")
	}
	return status, nil
}

// Report is the evaluated state of one handler.
type Report struct {
	Key       Key    `json:"-"`
	Handler   string `json:"handler"`
	Fulfilled bool   `json:"fulfilled"`
	Status    Status `json:"status"`
}

// Reports evaluates every handler in registration order.
func (s *Service) Reports(includeOptional bool) []Report {
	reports := make([]Report, 0, len(s.order))
	for _, key := range s.order {
		status, err := s.Evaluate(key)
		if err != nil {
			continue
		}
		reports = append(reports, Report{
			Key:       key,
			Handler:   key.String(),
			Fulfilled: StatusToBoolean(status, includeOptional),
			Status:    status,
		})
	}
	return reports
}

// missingNames flattens a status into sorted "checker/key" names.
func missingNames(s Status) []string {
	var names []string
	for checkerID, missing := range s.Missing {
		for key := range missing {
			names = append(names, checkerID+"/"+key)
		}
	}
	sort.Strings(names)
	return names
}
