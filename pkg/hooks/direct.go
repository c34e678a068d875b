package hooks

// DirectHandler registers hooks with the host bus as soon as they are added.
type DirectHandler struct {
	core
	records *recordSet
}

// NewDirectHandler creates a Direct handler bound to bus.
func NewDirectHandler(id HandlerID, bus Bus, opts ...Option) *DirectHandler {
	return &DirectHandler{
		core:    newCore(id, VariantDirect, bus, opts),
		records: newRecordSet(),
	}
}

// Add implements Handler.
func (h *DirectHandler) Add(rec Record) {
	owned := h.records.has(rec.Key())
	h.records.put(rec)
	h.claim(rec, owned)
}

// Remove implements Handler. A key this handler never added is still removed
// from the host bus, mirroring a plain host-level removal.
func (h *DirectHandler) Remove(rec Record) {
	key := rec.Key()
	if _, ok := h.records.remove(key); ok {
		h.release(key)
		return
	}
	h.bus.Deregister(key)
}

// RemoveAll implements Handler and deregisters every held record.
func (h *DirectHandler) RemoveAll() {
	for _, rec := range h.records.list() {
		h.release(rec.Key())
	}
	h.records.clear()
}

// Records implements Handler.
func (h *DirectHandler) Records() []Record {
	return h.records.list()
}
