package node

import (
	"errors"
	"fmt"
)

// Error codes attached to lifecycle failures for metrics and logs.
const (
	CodeNotReady        = "NODE_NOT_READY"
	CodeChildResolution = "NODE_CHILD_RESOLUTION"
	CodeInitialization  = "NODE_INITIALIZATION"
	CodeSetup           = "NODE_SETUP"
)

var (
	// ErrNotReady is returned by Initialize while the readiness token is not
	// set. Nothing is touched, so the call can be repeated.
	ErrNotReady = errors.New("bootstrap not ready")

	// ErrNotInitialized is returned by Setup on a node that has not been
	// initialized.
	ErrNotInitialized = errors.New("node not initialized")

	// ErrNoHooks is returned when a node needs a hooks service that the
	// lifecycle was not given.
	ErrNoHooks = errors.New("lifecycle has no hooks service")
)

// Phase names the lifecycle step that failed.
type Phase string

const (
	PhaseInitialize Phase = "initialize"
	PhaseHooks      Phase = "hooks"
	PhaseSetup      Phase = "setup"
)

// InitializationError reports a failed node. When a child fails, every
// ancestor wraps the child's error in its own InitializationError, so the
// outermost error names the node Initialize was called on and Cause names
// the node that actually failed.
type InitializationError struct {
	// NodeID is the node this error is reported for.
	NodeID string

	// Phase is the step that failed.
	Phase Phase

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *InitializationError) Error() string {
	return fmt.Sprintf("node %s: %s failed: %v", e.NodeID, e.Phase, e.Err)
}

// Unwrap returns the underlying error.
func (e *InitializationError) Unwrap() error {
	return e.Err
}

// Code returns the error code for the failed phase.
func (e *InitializationError) Code() string {
	if e.Phase == PhaseSetup {
		return CodeSetup
	}
	return CodeInitialization
}

// Cause returns the innermost InitializationError, the one raised by the node
// that failed itself.
func (e *InitializationError) Cause() *InitializationError {
	cause := e
	for {
		var next *InitializationError
		if !errors.As(cause.Err, &next) {
			return cause
		}
		cause = next
	}
}

// ChildResolutionError is returned by AddChild when the value or id it was
// given does not resolve to a Node.
type ChildResolutionError struct {
	// Parent is the id of the node the child was added to.
	Parent string

	// Child describes the rejected child: its id, or its Go type.
	Child string

	// Err is the resolver error, if resolution itself failed.
	Err error
}

// Error implements the error interface.
func (e *ChildResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("node %s: cannot resolve child %s: %v", e.Parent, e.Child, e.Err)
	}
	return fmt.Sprintf("node %s: child %s is not a node", e.Parent, e.Child)
}

// Unwrap returns the resolver error.
func (e *ChildResolutionError) Unwrap() error {
	return e.Err
}

// Code returns CodeChildResolution.
func (e *ChildResolutionError) Code() string {
	return CodeChildResolution
}

// errorCode extracts a lifecycle error code from err.
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	if errors.Is(err, ErrNotReady) {
		return CodeNotReady
	}
	return ""
}
