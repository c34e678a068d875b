package telemetry

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event represents a lifecycle event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies the component that emitted the event.
	Source string `json:"source"`

	// NodeID is the associated node, if applicable.
	NodeID string `json:"node_id,omitempty"`

	// HandlerID is the associated hook or dependency handler, if applicable.
	HandlerID string `json:"handler_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types emitted by the lifecycle layer.
const (
	EventTypeNodeInitialized       = "node.initialized"
	EventTypeNodeInitFailed        = "node.initialization_failed"
	EventTypeNodeSkipped           = "node.skipped"
	EventTypeNodeReady             = "node.ready"
	EventTypeNodeSetupFailed       = "node.setup_failed"
	EventTypeNodeSetupDeferred     = "node.setup_deferred"
	EventTypeHooksFlushed          = "hooks.flushed"
	EventTypeHooksReset            = "hooks.reset"
	EventTypeDependencyUnfulfilled = "dependency.unfulfilled"
	EventTypePermissionsCompiled   = "permissions.compiled"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher delivers events to subscribers synchronously, in the order
// they were published, and keeps a bounded history of recent events.
type EventPublisher struct {
	config      EventsConfig
	subscribers []subscriberEntry
	filters     []EventFilter
	history     []Event
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if cfg.History < 0 {
		return nil, fmt.Errorf("event history must not be negative, got: %d", cfg.History)
	}
	return &EventPublisher{config: cfg}, nil
}

// Publish delivers an event to all subscribers. Publishing on a nil or
// disabled publisher is a no-op.
func (ep *EventPublisher) Publish(event Event) {
	if ep == nil || !ep.config.Enabled {
		return
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	for _, filter := range ep.filters {
		if !filter(event) {
			return
		}
	}

	if ep.config.History > 0 {
		ep.history = append(ep.history, event)
		if overflow := len(ep.history) - ep.config.History; overflow > 0 {
			ep.history = ep.history[overflow:]
		}
	}

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// PublishNodeInitialized publishes a node initialized event.
func (ep *EventPublisher) PublishNodeInitialized(nodeID string) {
	ep.Publish(Event{
		Type:    EventTypeNodeInitialized,
		Source:  "lifecycle",
		NodeID:  nodeID,
		Message: fmt.Sprintf("Node %s initialized", nodeID),
	})
}

// PublishNodeInitFailed publishes a node initialization failure.
func (ep *EventPublisher) PublishNodeInitFailed(nodeID string, err error) {
	ep.Publish(Event{
		Type:    EventTypeNodeInitFailed,
		Source:  "lifecycle",
		NodeID:  nodeID,
		Message: fmt.Sprintf("Node %s failed to initialize: %v", nodeID, err),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"error": err.Error(),
		},
	})
}

// PublishNodeSkipped publishes an event for a disabled node that was skipped.
func (ep *EventPublisher) PublishNodeSkipped(nodeID string) {
	ep.Publish(Event{
		Type:    EventTypeNodeSkipped,
		Source:  "lifecycle",
		NodeID:  nodeID,
		Message: fmt.Sprintf("Node %s is disabled, skipping subtree", nodeID),
	})
}

// PublishNodeReady publishes a node setup completion event.
func (ep *EventPublisher) PublishNodeReady(nodeID, mode string) {
	ep.Publish(Event{
		Type:    EventTypeNodeReady,
		Source:  "lifecycle",
		NodeID:  nodeID,
		Message: fmt.Sprintf("Node %s is ready", nodeID),
		Data: map[string]interface{}{
			"mode": mode,
		},
	})
}

// PublishNodeSetupFailed publishes a setup failure.
func (ep *EventPublisher) PublishNodeSetupFailed(nodeID string, err error) {
	ep.Publish(Event{
		Type:    EventTypeNodeSetupFailed,
		Source:  "lifecycle",
		NodeID:  nodeID,
		Message: fmt.Sprintf("Node %s setup failed: %v", nodeID, err),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"error": err.Error(),
		},
	})
}

// PublishNodeSetupDeferred publishes an event for a setup bound to a later
// host event.
func (ep *EventPublisher) PublishNodeSetupDeferred(nodeID, event string) {
	ep.Publish(Event{
		Type:    EventTypeNodeSetupDeferred,
		Source:  "lifecycle",
		NodeID:  nodeID,
		Message: fmt.Sprintf("Node %s setup deferred until %s", nodeID, event),
		Data: map[string]interface{}{
			"event": event,
		},
	})
}

// PublishHooksFlushed publishes a run of a deferred hook handler.
func (ep *EventPublisher) PublishHooksFlushed(handlerID string, added, removed int) {
	ep.Publish(Event{
		Type:      EventTypeHooksFlushed,
		Source:    "hooks",
		HandlerID: handlerID,
		Message:   fmt.Sprintf("Handler %s flushed %d additions and %d removals", handlerID, added, removed),
		Data: map[string]interface{}{
			"added":   added,
			"removed": removed,
		},
	})
}

// PublishHooksReset publishes a reset of a deferred hook handler.
func (ep *EventPublisher) PublishHooksReset(handlerID string) {
	ep.Publish(Event{
		Type:      EventTypeHooksReset,
		Source:    "hooks",
		HandlerID: handlerID,
		Message:   fmt.Sprintf("Handler %s reset", handlerID),
	})
}

// PublishDependencyUnfulfilled publishes an unfulfilled dependency handler.
func (ep *EventPublisher) PublishDependencyUnfulfilled(handlerID string, missing []string) {
	ep.Publish(Event{
		Type:      EventTypeDependencyUnfulfilled,
		Source:    "dependencies",
		HandlerID: handlerID,
		Message:   fmt.Sprintf("Dependencies of %s not fulfilled: %v", handlerID, missing),
		Level:     EventLevelWarning,
		Data: map[string]interface{}{
			"missing": missing,
		},
	})
}

// PublishPermissionsCompiled publishes an uncached permission reduction.
func (ep *EventPublisher) PublishPermissionsCompiled(nodeID, kind string, count int) {
	ep.Publish(Event{
		Type:    EventTypePermissionsCompiled,
		Source:  "permissions",
		NodeID:  nodeID,
		Message: fmt.Sprintf("Compiled %d %s for %s", count, kind, nodeID),
		Data: map[string]interface{}{
			"kind":  kind,
			"count": count,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.filters = append(ep.filters, filter)
}

// History returns a copy of the recent events, oldest first.
func (ep *EventPublisher) History() []Event {
	if ep == nil {
		return nil
	}
	out := make([]Event, len(ep.history))
	copy(out, ep.history)
	return out
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByNodeID creates a filter that only allows events for a specific node.
func FilterByNodeID(nodeID string) EventFilter {
	return func(event Event) bool {
		return event.NodeID == nodeID
	}
}
