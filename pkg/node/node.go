package node

import (
	"context"
	"fmt"

	"github.com/openfroyo/featurekit/pkg/hooks"
)

// State is the lifecycle position of a node.
type State string

const (
	StateConstructed State = "constructed"
	StateInitialized State = "initialized"
	StateReady       State = "ready"
	StateFailed      State = "failed"
)

// Activatable is implemented by nodes carrying an own-active flag that
// cascades to their descendants.
type Activatable interface {
	// OwnActive returns the node's own flag, ignoring ancestors.
	OwnActive() bool

	// SetActive changes the node's own flag.
	SetActive(active bool)

	// IsActive reports whether the node and every ancestor are active.
	IsActive() bool
}

// Disableable is implemented by nodes that can be switched off together with
// their subtree.
type Disableable interface {
	IsDisabled() bool
	SetDisabled(disabled bool)
}

// LocalInitializer is implemented by nodes with their own initialization
// step. Nodes without it initialize successfully with no work.
type LocalInitializer interface {
	InitializeLocal(ctx context.Context) error
}

// Setupable is implemented by nodes with a setup step that runs once the
// whole tree is initialized.
type Setupable interface {
	Setup(ctx context.Context) error
}

// HookRegistrar is implemented by nodes that register hooks while active.
type HookRegistrar interface {
	RegisterHooks(svc *hooks.Service) error
}

// Gate is an extra activation condition, typically a dependency handler.
type Gate interface {
	Fulfilled() bool
}

// Node is a unit of the functionality tree. Implementations embed Base.
type Node interface {
	Activatable
	Disableable

	ID() string
	Name() string
	Children() []Node
	AddChild(child any) error

	base() *Base
}

// Option configures a Base.
type Option func(*Base)

// WithActive sets the initial own-active flag. Nodes are active by default.
func WithActive(active bool) Option {
	return func(b *Base) {
		b.active = active
	}
}

// WithDisabled sets the initial disabled flag.
func WithDisabled(disabled bool) Option {
	return func(b *Base) {
		b.disabled = disabled
	}
}

// WithResolver sets the resolver used by AddChild for string ids.
func WithResolver(r Resolver) Option {
	return func(b *Base) {
		b.resolver = r
	}
}

// WithGate attaches an activation gate.
func WithGate(g Gate) Option {
	return func(b *Base) {
		b.gate = g
	}
}

// WithDeferredSetup makes the node's setup wait for a host event instead of
// running right after its parent's children are initialized.
func WithDeferredSetup(event string, priority int) Option {
	return func(b *Base) {
		b.deferEvent = event
		b.deferPriority = priority
	}
}

// Base carries the tree links, flags and lifecycle state of a node.
type Base struct {
	id       string
	name     string
	parent   *Base
	children []Node

	active   bool
	disabled bool
	gate     Gate
	resolver Resolver

	deferEvent    string
	deferPriority int

	initialized bool
	ready       bool
	failure     error
}

// NewBase creates a Base to embed in a node type.
func NewBase(id, name string, opts ...Option) Base {
	b := Base{
		id:            id,
		name:          name,
		active:        true,
		deferPriority: hooks.DefaultPriority,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *Base) base() *Base {
	return b
}

// ID returns the node id.
func (b *Base) ID() string {
	return b.id
}

// Name returns the display name, falling back to the id.
func (b *Base) Name() string {
	if b.name == "" {
		return b.id
	}
	return b.name
}

// ParentID returns the parent's id, or "" for a root.
func (b *Base) ParentID() string {
	if b.parent == nil {
		return ""
	}
	return b.parent.id
}

// Children returns the children in insertion order.
func (b *Base) Children() []Node {
	out := make([]Node, len(b.children))
	copy(out, b.children)
	return out
}

// AddChild appends a child. child is either a Node or a string id resolved
// through the node's resolver.
func (b *Base) AddChild(child any) error {
	value := child
	if id, ok := child.(string); ok {
		if b.resolver == nil {
			return &ChildResolutionError{Parent: b.id, Child: id, Err: fmt.Errorf("no resolver configured")}
		}
		resolved, err := b.resolver.Resolve(id)
		if err != nil {
			return &ChildResolutionError{Parent: b.id, Child: id, Err: err}
		}
		value = resolved
	}

	n, ok := value.(Node)
	if !ok {
		return &ChildResolutionError{Parent: b.id, Child: describe(child, value)}
	}
	cb := n.base()
	if cb == b {
		return &ChildResolutionError{Parent: b.id, Child: cb.id, Err: fmt.Errorf("node cannot be its own child")}
	}
	if cb.parent != nil {
		return &ChildResolutionError{Parent: b.id, Child: cb.id, Err: fmt.Errorf("already a child of %s", cb.parent.id)}
	}
	for p := b; p != nil; p = p.parent {
		if p == cb {
			return &ChildResolutionError{Parent: b.id, Child: cb.id, Err: fmt.Errorf("would create a cycle")}
		}
	}

	cb.parent = b
	b.children = append(b.children, n)
	return nil
}

func describe(child, resolved any) string {
	if id, ok := child.(string); ok {
		return fmt.Sprintf("%s (%T)", id, resolved)
	}
	return fmt.Sprintf("%T", child)
}

// OwnActive implements Activatable.
func (b *Base) OwnActive() bool {
	return b.active
}

// SetActive implements Activatable.
func (b *Base) SetActive(active bool) {
	b.active = active
}

// IsActive implements Activatable. A gate, when attached, must also be
// fulfilled at every level.
func (b *Base) IsActive() bool {
	for n := b; n != nil; n = n.parent {
		if !n.active {
			return false
		}
		if n.gate != nil && !n.gate.Fulfilled() {
			return false
		}
	}
	return true
}

// SetGate attaches or replaces the activation gate.
func (b *Base) SetGate(g Gate) {
	b.gate = g
}

// IsDisabled implements Disableable.
func (b *Base) IsDisabled() bool {
	return b.disabled
}

// SetDisabled implements Disableable.
func (b *Base) SetDisabled(disabled bool) {
	b.disabled = disabled
}

// DeferredSetup returns the host event the node's setup waits for.
func (b *Base) DeferredSetup() (event string, ok bool) {
	return b.deferEvent, b.deferEvent != ""
}

// State returns the lifecycle state.
func (b *Base) State() State {
	switch {
	case b.failure != nil:
		return StateFailed
	case b.ready:
		return StateReady
	case b.initialized:
		return StateInitialized
	default:
		return StateConstructed
	}
}

// Initialized reports whether initialization succeeded.
func (b *Base) Initialized() bool {
	return b.initialized
}

// Ready reports whether setup completed.
func (b *Base) Ready() bool {
	return b.ready
}

// Failure returns the terminal failure, if any.
func (b *Base) Failure() error {
	return b.failure
}

// Walk visits n and its descendants depth-first in insertion order. Returning
// false from fn skips the node's subtree.
func Walk(n Node, fn func(n Node, depth int) bool) {
	walk(n, 0, fn)
}

func walk(n Node, depth int, fn func(Node, int) bool) {
	if !fn(n, depth) {
		return
	}
	for _, child := range n.base().children {
		walk(child, depth+1, fn)
	}
}

// Find returns the node with id in the tree rooted at root.
func Find(root Node, id string) (Node, bool) {
	var found Node
	Walk(root, func(n Node, _ int) bool {
		if found != nil {
			return false
		}
		if n.ID() == id {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}

// StateOf returns the lifecycle state of n.
func StateOf(n Node) State {
	return n.base().State()
}
