package hooks

import "context"

// Trigger names the host event (and priority) that flushes or resets a
// scoped handler.
type Trigger struct {
	Event    string
	Priority int
}

// Scoped handler callback ids registered on the trigger events.
const (
	scopedRunCallback   = "scoped.run"
	scopedResetCallback = "scoped.reset"
)

// ScopedHandler keeps hooks alive only between a start and an end event.
//
// Added records go to the added bucket and are registered on Run; removals of
// hooks the handler did not add go to the removed bucket and are taken off the
// bus on Run. Reset undoes both, restoring only the hooks that were actually
// present when Run removed them. Run followed by Reset leaves the bus exactly
// as it was.
type ScopedHandler struct {
	core
	added   *recordSet
	removed *recordSet
	start   Trigger
	end     Trigger

	// suspended holds the bus entries removed by Run for the removed bucket.
	suspended map[Key]Record
	running   bool
}

// NewScopedHandler creates a scoped handler and wires its Run and Reset as
// Direct hooks on the start and end triggers through direct.
func NewScopedHandler(id HandlerID, bus Bus, direct *DirectHandler, start, end Trigger, opts ...Option) *ScopedHandler {
	h := &ScopedHandler{
		core:      newCore(id, VariantScoped, bus, opts),
		added:     newRecordSet(),
		removed:   newRecordSet(),
		start:     start,
		end:       end,
		suspended: make(map[Key]Record),
	}

	direct.Add(Record{
		Kind:       KindAction,
		Event:      start.Event,
		Subscriber: h,
		CallbackID: scopedRunCallback,
		Callback: func(_ context.Context, args ...any) any {
			h.Run()
			return passThrough(args)
		},
		Priority: start.Priority,
		Arity:    1,
	})
	direct.Add(Record{
		Kind:       KindAction,
		Event:      end.Event,
		Subscriber: h,
		CallbackID: scopedResetCallback,
		Callback: func(_ context.Context, args ...any) any {
			h.Reset()
			return passThrough(args)
		},
		Priority: end.Priority,
		Arity:    1,
	})

	return h
}

// passThrough returns the first argument so trigger hooks are transparent
// when the trigger is a filter event.
func passThrough(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

// Start returns the trigger that runs the handler.
func (h *ScopedHandler) Start() Trigger {
	return h.start
}

// End returns the trigger that resets the handler.
func (h *ScopedHandler) End() Trigger {
	return h.end
}

// Add implements Handler.
func (h *ScopedHandler) Add(rec Record) {
	key := rec.Key()
	owned := h.added.has(key)
	h.added.put(rec)
	if h.running {
		h.claim(rec, owned)
	}
}

// Remove implements Handler. Removing a record from the added bucket undoes
// the addition; any other key is recorded as a hook to suspend during the
// scope. Repeating a removal is a no-op.
func (h *ScopedHandler) Remove(rec Record) {
	key := rec.Key()
	if _, ok := h.added.remove(key); ok {
		if h.running {
			h.release(key)
		}
		return
	}
	if h.removed.has(key) {
		return
	}
	h.removed.put(rec)
	if h.running {
		h.suspend(key)
	}
}

// RemoveAll implements Handler. A running handler is reset first.
func (h *ScopedHandler) RemoveAll() {
	if h.running {
		h.Reset()
	}
	h.added.clear()
	h.removed.clear()
}

// Records implements Handler and returns the added bucket.
func (h *ScopedHandler) Records() []Record {
	return h.added.list()
}

// Removed returns the removed bucket.
func (h *ScopedHandler) Removed() []Record {
	return h.removed.list()
}

// Run implements Runner.
func (h *ScopedHandler) Run() {
	if h.running {
		return
	}
	for _, rec := range h.removed.list() {
		h.suspend(rec.Key())
	}
	for _, rec := range h.added.list() {
		h.claim(rec, false)
	}
	h.running = true

	h.metrics.RecordHookFlush(string(h.variant), "run")
	h.events.PublishHooksFlushed(string(h.id), h.added.len(), len(h.suspended))
	h.logger.Debug().
		Str("start", h.start.Event).
		Int("added", h.added.len()).
		Int("suspended", len(h.suspended)).
		Msg("Scoped hooks flushed")
}

// Reset implements Runner.
func (h *ScopedHandler) Reset() {
	if !h.running {
		return
	}
	added := h.added.list()
	for i := len(added) - 1; i >= 0; i-- {
		h.release(added[i].Key())
	}
	for _, rec := range h.removed.list() {
		key := rec.Key()
		if previous, ok := h.suspended[key]; ok {
			h.bus.Register(previous)
			delete(h.suspended, key)
		}
	}
	h.running = false

	h.metrics.RecordHookFlush(string(h.variant), "reset")
	h.events.PublishHooksReset(string(h.id))
	h.logger.Debug().Str("end", h.end.Event).Msg("Scoped hooks reset")
}

// Running implements Runner.
func (h *ScopedHandler) Running() bool {
	return h.running
}

// suspend takes key off the bus, remembering the entry if one was present.
func (h *ScopedHandler) suspend(key Key) {
	if previous, ok := h.bus.Deregister(key); ok {
		h.suspended[key] = previous
	}
}
