package hooks

import (
	"context"
	"sort"
)

// Bus is the host event bus hooks are wired into.
type Bus interface {
	// Register adds rec to the bus. If a hook with the same key is already
	// registered it is replaced and returned with replaced=true.
	Register(rec Record) (previous Record, replaced bool)

	// Deregister removes the hook with the given key and returns it. Removing
	// an absent key reports false and changes nothing.
	Deregister(key Key) (Record, bool)

	// Has reports whether a hook with the given key is registered.
	Has(key Key) bool
}

// busEntry is a registered record plus its registration sequence, used to keep
// dispatch stable among equal priorities.
type busEntry struct {
	rec Record
	seq uint64
}

// MemoryBus is an in-process Bus with priority-ordered dispatch.
//
// Lower priorities run first; equal priorities run in registration order.
// Dispatch works on a snapshot, so callbacks may add or remove hooks
// (including on the event being dispatched) without affecting the current run.
type MemoryBus struct {
	events map[string]map[Key]*busEntry
	seq    uint64
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{events: make(map[string]map[Key]*busEntry)}
}

// Register implements Bus.
func (b *MemoryBus) Register(rec Record) (Record, bool) {
	key := rec.Key()
	hooks, ok := b.events[rec.Event]
	if !ok {
		hooks = make(map[Key]*busEntry)
		b.events[rec.Event] = hooks
	}

	if existing, ok := hooks[key]; ok {
		previous := existing.rec
		existing.rec = rec
		return previous, true
	}

	b.seq++
	hooks[key] = &busEntry{rec: rec, seq: b.seq}
	return Record{}, false
}

// Deregister implements Bus.
func (b *MemoryBus) Deregister(key Key) (Record, bool) {
	hooks, ok := b.events[key.Event]
	if !ok {
		return Record{}, false
	}
	entry, ok := hooks[key]
	if !ok {
		return Record{}, false
	}
	delete(hooks, key)
	if len(hooks) == 0 {
		delete(b.events, key.Event)
	}
	return entry.rec, true
}

// Has implements Bus.
func (b *MemoryBus) Has(key Key) bool {
	_, ok := b.events[key.Event][key]
	return ok
}

// Count returns the number of hooks registered for event.
func (b *MemoryBus) Count(event string) int {
	return len(b.events[event])
}

// Len returns the total number of registered hooks.
func (b *MemoryBus) Len() int {
	total := 0
	for _, hooks := range b.events {
		total += len(hooks)
	}
	return total
}

// Snapshot returns the registered records for event in dispatch order.
func (b *MemoryBus) Snapshot(event string) []Record {
	hooks := b.events[event]
	entries := make([]*busEntry, 0, len(hooks))
	for _, e := range hooks {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].rec.Priority != entries[j].rec.Priority {
			return entries[i].rec.Priority < entries[j].rec.Priority
		}
		return entries[i].seq < entries[j].seq
	})

	out := make([]Record, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out
}

// Keys returns the keys of every registered hook, grouped by event in dispatch
// order. Events are sorted by name.
func (b *MemoryBus) Keys() []Key {
	names := make([]string, 0, len(b.events))
	for name := range b.events {
		names = append(names, name)
	}
	sort.Strings(names)

	var keys []Key
	for _, name := range names {
		for _, rec := range b.Snapshot(name) {
			keys = append(keys, rec.Key())
		}
	}
	return keys
}

// DoAction invokes every hook registered for event.
func (b *MemoryBus) DoAction(ctx context.Context, event string, args ...any) {
	for _, rec := range b.Snapshot(event) {
		if rec.Callback == nil {
			continue
		}
		rec.Callback(ctx, limitArgs(args, rec.Arity)...)
	}
}

// ApplyFilters threads value through every hook registered for event and
// returns the result.
func (b *MemoryBus) ApplyFilters(ctx context.Context, event string, value any, args ...any) any {
	for _, rec := range b.Snapshot(event) {
		if rec.Callback == nil {
			continue
		}
		full := append([]any{value}, args...)
		value = rec.Callback(ctx, limitArgs(full, rec.Arity)...)
	}
	return value
}

// limitArgs truncates args to the callback's declared arity.
func limitArgs(args []any, arity int) []any {
	if arity < 0 || arity >= len(args) {
		return args
	}
	return args[:arity]
}
