package hooks

import (
	"context"
	"fmt"
	"reflect"
)

// DefaultPriority is the priority used when none is given.
const DefaultPriority = 10

// DefaultArity is the number of arguments a callback receives by default.
const DefaultArity = 1

// Kind distinguishes actions (fire-and-forget) from filters (value pipelines).
type Kind int

const (
	// KindAction callbacks are invoked for side effects; return values are ignored.
	KindAction Kind = iota
	// KindFilter callbacks receive a value as first argument and return the
	// (possibly modified) value.
	KindFilter
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAction:
		return "action"
	case KindFilter:
		return "filter"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Callback is a hook body. Filters must return the value to pass on; actions
// may return nil.
type Callback func(ctx context.Context, args ...any) any

// Record is an (event, subscriber, callback, priority) binding.
type Record struct {
	Kind       Kind
	Event      string
	Subscriber any
	CallbackID string
	Callback   Callback
	Priority   int
	Arity      int
}

// Key identifies a record. Two records with equal keys are the same hook.
type Key struct {
	Event      string
	Subscriber any
	CallbackID string
	Priority   int
}

// String renders the key for logs.
func (k Key) String() string {
	if k.Subscriber == nil {
		return fmt.Sprintf("%s/%s@%d", k.Event, k.CallbackID, k.Priority)
	}
	return fmt.Sprintf("%s/%T.%s@%d", k.Event, k.Subscriber, k.CallbackID, k.Priority)
}

// Key returns the identity tuple of the record.
func (r Record) Key() Key {
	return Key{
		Event:      r.Event,
		Subscriber: identity(r.Subscriber),
		CallbackID: r.CallbackID,
		Priority:   r.Priority,
	}
}

// subscriberRef keeps reference identity for subscribers whose dynamic type
// cannot be used as a map key.
type subscriberRef struct {
	typ reflect.Type
	ptr uintptr
}

// identity maps a subscriber to a comparable value preserving identity:
// pointers compare by address, comparable values by value, and maps, slices
// and funcs by their underlying pointer.
func identity(subscriber any) any {
	if subscriber == nil {
		return nil
	}
	t := reflect.TypeOf(subscriber)
	if t.Comparable() {
		return subscriber
	}
	v := reflect.ValueOf(subscriber)
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return subscriberRef{typ: t, ptr: v.Pointer()}
	default:
		// Structs holding non-comparable fields have no stable identity;
		// fall back to their type.
		return subscriberRef{typ: t}
	}
}

// recordSet is an insertion-ordered set of records keyed by Key.
type recordSet struct {
	index map[Key]int
	items []Record
}

func newRecordSet() *recordSet {
	return &recordSet{index: make(map[Key]int)}
}

// put inserts or replaces rec; replacing keeps the original position.
func (s *recordSet) put(rec Record) {
	key := rec.Key()
	if i, ok := s.index[key]; ok {
		s.items[i] = rec
		return
	}
	s.index[key] = len(s.items)
	s.items = append(s.items, rec)
}

func (s *recordSet) get(key Key) (Record, bool) {
	i, ok := s.index[key]
	if !ok {
		return Record{}, false
	}
	return s.items[i], true
}

func (s *recordSet) has(key Key) bool {
	_, ok := s.index[key]
	return ok
}

// remove deletes key and reports whether it was present.
func (s *recordSet) remove(key Key) (Record, bool) {
	i, ok := s.index[key]
	if !ok {
		return Record{}, false
	}
	rec := s.items[i]
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, key)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].Key()] = j
	}
	return rec, true
}

func (s *recordSet) list() []Record {
	out := make([]Record, len(s.items))
	copy(out, s.items)
	return out
}

func (s *recordSet) len() int {
	return len(s.items)
}

func (s *recordSet) clear() {
	s.index = make(map[Key]int)
	s.items = nil
}
