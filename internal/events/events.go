// Package events provides the publish/subscribe bus the state store uses to
// notify views of changes. Any frontend (CLI, TUI, bridge) subscribes to the
// event types it renders and repaints from store snapshots.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/canopy-fm/canopy/internal/models"
)

// EventType defines the types of events that can be emitted.
type EventType string

const (
	EventListingChanged   EventType = "listing_changed"
	EventListingLoading   EventType = "listing_loading"
	EventListingError     EventType = "listing_error"
	EventTreeChanged      EventType = "tree_changed"
	EventPathChanged      EventType = "path_changed"
	EventSelectionChanged EventType = "selection_changed"
	EventCountsChanged    EventType = "counts_changed"

	// Upload lifecycle
	EventUploadQueued    EventType = "upload_queued"
	EventUploadProgress  EventType = "upload_progress"
	EventUploadCompleted EventType = "upload_completed"
	EventUploadFailed    EventType = "upload_failed"

	// Folder change notifications pushed by the backend
	EventFolderNotify EventType = "folder_notify"
)

const (
	defaultBuffer = 256
	maxBuffer     = 4096
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// ListingChangedEvent is published when the flat listing is replaced.
type ListingChangedEvent struct {
	BaseEvent
	FolderID string // empty = root listing
	Total    int
	Count    int
}

// ListingLoadingEvent brackets a listing fetch.
type ListingLoadingEvent struct {
	BaseEvent
	FolderID string
	Loading  bool
}

// ListingErrorEvent is published when a listing fetch fails.
type ListingErrorEvent struct {
	BaseEvent
	FolderID string
	Err      error
}

// TreeChangedEvent is published when the sidebar tree or its expansion
// state changes.
type TreeChangedEvent struct {
	BaseEvent
}

// PathChangedEvent is published when the breadcrumb / active folder changes.
type PathChangedEvent struct {
	BaseEvent
	FolderID string
	Path     []string
}

// SelectionChangedEvent is published when the selection changes.
type SelectionChangedEvent struct {
	BaseEvent
	SelectedIDs []string
}

// CountsChangedEvent is published when aggregate counts are refreshed.
type CountsChangedEvent struct {
	BaseEvent
	Counts models.AggregateCounts
}

// UploadEvent carries upload task lifecycle changes.
type UploadEvent struct {
	BaseEvent
	Task models.UploadTask
}

// FolderNotifyEvent relays a backend folder change push.
type FolderNotifyEvent struct {
	BaseEvent
	Notice models.FolderEvent
}

// EventBus manages event subscriptions and publishing. Publishing never
// blocks: events to full subscriber buffers are dropped and counted.
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
}

// NewEventBus creates a new event bus with the specified buffer size.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = defaultBuffer
	}
	if bufferSize > maxBuffer {
		bufferSize = maxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type.
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events.
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Unsubscribe removes a subscription channel from a specific event type.
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel wherever it is registered.
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// Close shuts down the event bus and closes all channels.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// DroppedEventCount returns the number of events dropped due to full buffers.
func (eb *EventBus) DroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
