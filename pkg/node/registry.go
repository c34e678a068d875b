package node

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Resolver maps an id to a constructed value, usually a Node.
type Resolver interface {
	Resolve(id string) (any, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(id string) (any, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(id string) (any, error) {
	return f(id)
}

// Constructor builds the value registered under an id. It receives the
// registry so it can resolve its own children by id.
type Constructor func(r *Registry) (any, error)

var (
	// ErrUnknownID is returned when resolving an id with no constructor.
	ErrUnknownID = errors.New("no constructor registered")

	// ErrDuplicateID is returned when registering an id twice.
	ErrDuplicateID = errors.New("constructor already registered")

	// ErrConstructionCycle is returned when a constructor resolves, directly
	// or not, the id being constructed.
	ErrConstructionCycle = errors.New("construction cycle")
)

// Registry is the id to constructor manifest. Each id is constructed at most
// once; later resolutions return the same instance.
type Registry struct {
	// mu protects the registry state.
	mu sync.RWMutex

	// constructors maps id to its constructor.
	constructors map[string]Constructor

	// instances maps id to the constructed value.
	instances map[string]any

	// building holds ids whose constructor is running.
	building map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
		instances:    make(map[string]any),
		building:     make(map[string]bool),
	}
}

// Register adds a constructor for id.
func (r *Registry) Register(id string, c Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	r.constructors[id] = c
	return nil
}

// Resolve implements Resolver. The constructor runs without the lock held so
// it can resolve other ids.
func (r *Registry) Resolve(id string) (any, error) {
	r.mu.Lock()
	if v, ok := r.instances[id]; ok {
		r.mu.Unlock()
		return v, nil
	}
	c, ok := r.constructors[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	if r.building[id] {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrConstructionCycle, id)
	}
	r.building[id] = true
	r.mu.Unlock()

	v, err := c(r)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.building, id)
	if err != nil {
		return nil, fmt.Errorf("failed to construct %s: %w", id, err)
	}
	r.instances[id] = v
	return v, nil
}

// Node resolves id and requires the result to be a Node.
func (r *Registry) Node(id string) (Node, error) {
	v, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}
	n, ok := v.(Node)
	if !ok {
		return nil, &ChildResolutionError{Child: describe(id, v)}
	}
	return n, nil
}

// Constructed reports whether id has been constructed.
func (r *Registry) Constructed(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.instances[id]
	return ok
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.constructors))
	for id := range r.constructors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Readiness is the bootstrap token Initialize waits for.
type Readiness interface {
	Ready() bool
}

// Bootstrap is a Readiness set once by the host when it has finished booting.
type Bootstrap struct {
	ready bool
}

// MarkReady sets the token.
func (b *Bootstrap) MarkReady() {
	b.ready = true
}

// Ready implements Readiness.
func (b *Bootstrap) Ready() bool {
	return b != nil && b.ready
}

// readyToken is always ready.
type readyToken struct{}

func (readyToken) Ready() bool { return true }

// AlwaysReady is a Readiness for hosts without a bootstrap phase.
var AlwaysReady Readiness = readyToken{}
