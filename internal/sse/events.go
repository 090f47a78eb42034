// Package sse implements Server-Sent Events for live cache updates.
package sse

import (
	"time"

	"github.com/listenupapp/shelfcache/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventShelfUpdated is sent when a cached shelf changed.
	EventShelfUpdated EventType = "shelf.updated"
	// EventShelfReorder is sent when a shelf's reorder state changed.
	EventShelfReorder EventType = "shelf.reorder"
	// EventReferenceResolved is sent when a referenced shelf finished loading or was found missing.
	EventReferenceResolved EventType = "reference.resolved"
	// EventSourceUpdated is sent when a paginated source accumulated a new page.
	EventSourceUpdated EventType = "source.updated"

	// EventResync tells a reconnecting client that events it missed are gone
	// and its cached views should be refetched.
	EventResync EventType = "resync"
	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	// ID orders events within one server run. Heartbeats carry no ID.
	ID        uint64    `json:"id,omitempty"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// ShelfID limits delivery to clients watching this shelf. Empty means broadcast.
	ShelfID string `json:"-"`
}

// ShelfUpdatedEventData is the data payload for shelf.updated events.
type ShelfUpdatedEventData struct {
	ShelfID string `json:"shelf_id"`
	Version uint64 `json:"version"`
	Deleted bool   `json:"deleted,omitempty"`
}

// ReorderEventData is the data payload for shelf.reorder events.
type ReorderEventData struct {
	ShelfID string               `json:"shelf_id"`
	Status  domain.ReorderStatus `json:"status"`
	Order   []int                `json:"order,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// ReferenceResolvedEventData is the data payload for reference.resolved events.
type ReferenceResolvedEventData struct {
	ShelfID string          `json:"shelf_id"`
	State   domain.RefState `json:"state"`
}

// SourceUpdatedEventData is the data payload for source.updated events.
type SourceUpdatedEventData struct {
	Kind      domain.QueryKind `json:"kind"`
	Key       string           `json:"key"`
	Count     int              `json:"count"`
	Exhausted bool             `json:"exhausted"`
}

// ResyncEventData is the data payload for resync events.
type ResyncEventData struct {
	LastEventID uint64 `json:"last_event_id"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewShelfUpdatedEvent creates a shelf.updated event.
func NewShelfUpdatedEvent(shelfID string, version uint64, deleted bool) Event {
	return Event{
		Type:      EventShelfUpdated,
		Data:      ShelfUpdatedEventData{ShelfID: shelfID, Version: version, Deleted: deleted},
		Timestamp: time.Now(),
		ShelfID:   shelfID,
	}
}

// NewReorderEvent creates a shelf.reorder event.
func NewReorderEvent(shelfID string, status domain.ReorderStatus, order []int, errMsg string) Event {
	return Event{
		Type: EventShelfReorder,
		Data: ReorderEventData{
			ShelfID: shelfID,
			Status:  status,
			Order:   order,
			Error:   errMsg,
		},
		Timestamp: time.Now(),
		ShelfID:   shelfID,
	}
}

// NewReferenceResolvedEvent creates a reference.resolved event. It is broadcast
// because any shelf may reference the resolved one.
func NewReferenceResolvedEvent(shelfID string, state domain.RefState) Event {
	return Event{
		Type:      EventReferenceResolved,
		Data:      ReferenceResolvedEventData{ShelfID: shelfID, State: state},
		Timestamp: time.Now(),
	}
}

// NewSourceUpdatedEvent creates a source.updated event.
func NewSourceUpdatedEvent(key domain.QueryKey, count int, exhausted bool) Event {
	return Event{
		Type: EventSourceUpdated,
		Data: SourceUpdatedEventData{
			Kind:      key.Kind,
			Key:       key.Key,
			Count:     count,
			Exhausted: exhausted,
		},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: time.Now()},
		Timestamp: time.Now(),
	}
}

// NewResyncEvent creates a resync event carrying the newest event ID.
func NewResyncEvent(lastID uint64) Event {
	return Event{
		Type:      EventResync,
		Data:      ResyncEventData{LastEventID: lastID},
		Timestamp: time.Now(),
	}
}
