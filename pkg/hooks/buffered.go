package hooks

// BufferedHandler records hooks and registers them only when Run is called.
//
// While running, further additions and removals are forwarded to the bus
// immediately, so the bus always mirrors the record set until Reset.
type BufferedHandler struct {
	core
	records *recordSet
	running bool
}

// NewBufferedHandler creates a Buffered handler bound to bus.
func NewBufferedHandler(id HandlerID, bus Bus, opts ...Option) *BufferedHandler {
	return &BufferedHandler{
		core:    newCore(id, VariantBuffered, bus, opts),
		records: newRecordSet(),
	}
}

// Add implements Handler.
func (h *BufferedHandler) Add(rec Record) {
	owned := h.records.has(rec.Key())
	h.records.put(rec)
	if h.running {
		h.claim(rec, owned)
	}
}

// Remove implements Handler.
func (h *BufferedHandler) Remove(rec Record) {
	key := rec.Key()
	if _, ok := h.records.remove(key); !ok {
		return
	}
	if h.running {
		h.release(key)
	}
}

// RemoveAll implements Handler. A running handler is reset first so no
// flushed hook is left on the bus.
func (h *BufferedHandler) RemoveAll() {
	if h.running {
		h.Reset()
	}
	h.records.clear()
}

// Records implements Handler.
func (h *BufferedHandler) Records() []Record {
	return h.records.list()
}

// Run implements Runner. Calling Run twice is a no-op.
func (h *BufferedHandler) Run() {
	if h.running {
		return
	}
	for _, rec := range h.records.list() {
		h.claim(rec, false)
	}
	h.running = true

	h.metrics.RecordHookFlush(string(h.variant), "run")
	h.events.PublishHooksFlushed(string(h.id), h.records.len(), 0)
	h.logger.Debug().Int("hooks", h.records.len()).Msg("Buffered hooks flushed")
}

// Reset implements Runner.
func (h *BufferedHandler) Reset() {
	if !h.running {
		return
	}
	for _, rec := range h.records.list() {
		h.release(rec.Key())
	}
	h.running = false

	h.metrics.RecordHookFlush(string(h.variant), "reset")
	h.events.PublishHooksReset(string(h.id))
	h.logger.Debug().Msg("Buffered hooks reset")
}

// Running implements Runner.
func (h *BufferedHandler) Running() bool {
	return h.running
}
