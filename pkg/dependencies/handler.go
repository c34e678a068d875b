package dependencies

import "strings"

// OptionalMarker marks a checker as optional when it appears in its id.
const OptionalMarker = "optional"

// IsOptional reports whether a checker id denotes an optional checker.
func IsOptional(checkerID string) bool {
	return strings.Contains(checkerID, OptionalMarker)
}

// Status is the evaluated state of a handler.
type Status struct {
	// Required is true when every required checker is fulfilled.
	Required bool `json:"required"`

	// Optional is true when every optional checker is fulfilled.
	Optional bool `json:"optional"`

	// Missing holds unmet descriptors per checker id. Fulfilled checkers are
	// omitted.
	Missing map[string]map[string]Missing `json:"missing,omitempty"`
}

// StatusToBoolean collapses a status to a gate decision. Optional failures
// only gate when includeOptional is set.
func StatusToBoolean(s Status, includeOptional bool) bool {
	if includeOptional {
		return s.Required && s.Optional
	}
	return s.Required
}

// Handler wraps one or more checkers and answers whether its dependencies are
// met.
type Handler interface {
	// Fulfilled reports whether all required dependencies are met.
	Fulfilled() bool

	// Status evaluates every checker.
	Status() Status

	// Checkers returns the wrapped checkers in evaluation order.
	Checkers() []Checker
}

// SingleHandler wraps exactly one checker.
type SingleHandler struct {
	checker Checker
}

// NewSingleHandler creates a handler around c.
func NewSingleHandler(c Checker) *SingleHandler {
	return &SingleHandler{checker: c}
}

// Fulfilled implements Handler.
func (h *SingleHandler) Fulfilled() bool {
	return len(h.checker.MissingDependencies()) == 0
}

// Status implements Handler. The single checker is always required.
func (h *SingleHandler) Status() Status {
	s := Status{Required: true, Optional: true}
	if missing := h.checker.MissingDependencies(); len(missing) > 0 {
		s.Required = false
		s.Missing = map[string]map[string]Missing{h.checker.ID(): missing}
	}
	return s
}

// Checkers implements Handler.
func (h *SingleHandler) Checkers() []Checker {
	return []Checker{h.checker}
}

// MultiHandler wraps several checkers, some of which may be optional.
type MultiHandler struct {
	checkers []Checker
}

// NewMultiHandler creates a handler around checkers.
func NewMultiHandler(checkers ...Checker) *MultiHandler {
	return &MultiHandler{checkers: checkers}
}

// Add appends a checker.
func (h *MultiHandler) Add(c Checker) {
	h.checkers = append(h.checkers, c)
}

// Fulfilled implements Handler. Optional checkers never gate.
func (h *MultiHandler) Fulfilled() bool {
	return StatusToBoolean(h.Status(), false)
}

// Status implements Handler.
func (h *MultiHandler) Status() Status {
	s := Status{Required: true, Optional: true}
	for _, c := range h.checkers {
		missing := c.MissingDependencies()
		if len(missing) == 0 {
			continue
		}
		if s.Missing == nil {
			s.Missing = make(map[string]map[string]Missing)
		}
		s.Missing[c.ID()] = missing
		if IsOptional(c.ID()) {
			s.Optional = false
		} else {
			s.Required = false
		}
	}
	return s
}

// Checkers implements Handler.
func (h *MultiHandler) Checkers() []Checker {
	out := make([]Checker, len(h.checkers))
	copy(out, h.checkers)
	return out
}
