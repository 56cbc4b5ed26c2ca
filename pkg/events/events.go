package events

import (
	"context"
	"sync"
	"time"

	"github.com/maxsync/max/pkg/types"
)

// EventType represents the type of event
type EventType string

const (
	EventInstallationCreated   EventType = "installation.created"
	EventInstallationConnected EventType = "installation.connected"
	EventInstallationRemoved   EventType = "installation.removed"
	EventWorkspaceConnected    EventType = "workspace.connected"
	EventWorkspaceRemoved      EventType = "workspace.removed"
	EventSyncStarted           EventType = "sync.started"
	EventSyncCompleted         EventType = "sync.completed"
	EventSyncFailed            EventType = "sync.failed"
	EventSyncCancelled         EventType = "sync.cancelled"
)

// Event is one federation event
type Event struct {
	Type         EventType            `json:"type"`
	Timestamp    time.Time            `json:"timestamp"`
	Workspace    types.WorkspaceID    `json:"workspaceId,omitempty"`
	Installation types.InstallationID `json:"installationId,omitempty"`
	Sync         types.SyncID         `json:"syncId,omitempty"`
	Message      string               `json:"message,omitempty"`
}

// Subscriber is a channel that receives events
type Subscriber chan Event

// Broker fans events out to subscribers. Publishing never blocks the
// publisher: a stopped broker drops events, and a subscriber that falls
// behind misses them. The broker is a supervised unit so nodes can slot
// it into their lifecycles.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan Event
	stopCh      chan struct{}
	running     bool
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan Event, 100),
	}
}

// Health reports whether the distribution loop is running
func (b *Broker) Health(ctx context.Context) types.HealthStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		return types.UnhealthyStatus("not started")
	}
	return types.HealthyStatus()
}

// Start begins the broker's distribution loop
func (b *Broker) Start(ctx context.Context) types.StartResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return types.StartAlreadyRunning()
	}
	b.stopCh = make(chan struct{})
	b.running = true
	go b.run(b.stopCh)
	return types.StartOK()
}

// Stop stops the distribution loop. Subscriptions stay registered and
// resume receiving if the broker is started again.
func (b *Broker) Stop(ctx context.Context) types.StopResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return types.StopAlreadyStopped()
	}
	close(b.stopCh)
	b.running = false
	return types.StopOK()
}

// Subscribe creates a new subscription and returns its channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish hands an event to the broker. Events published while the
// broker is stopped are dropped.
func (b *Broker) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	running, stop := b.running, b.stopCh
	b.mu.RUnlock()
	if !running {
		return
	}

	select {
	case b.eventCh <- event:
	case <-stop:
	}
}

func (b *Broker) run(stop chan struct{}) {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-stop:
			return
		}
	}
}

func (b *Broker) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
