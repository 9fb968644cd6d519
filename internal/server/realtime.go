package server

import (
	"context"
	"sync"
	"time"

	"github.com/mivaca/backend/internal/billing"
)

const (
	RealtimeEventSessionChanged = "session-change"
	realtimeEventHeartbeat      = "heartbeat"
	realtimeSourceBackend       = "mivaca-backend"
	defaultRealtimeBufferSize   = 16
)

// RealtimeMessage announces that a session changed. Clients refetch on receipt.
type RealtimeMessage struct {
	SessionID string
	EventType string
	Command   string
	Version   int64
	Timestamp time.Time
}

type RealtimeConfig struct {
	BufferSize int
	// Dropped is called whenever a slow subscriber misses a message.
	Dropped func()
}

// RealtimeDispatcher fans session changes out to the streams watching each session.
// Publishing never blocks; a full subscriber buffer drops the message.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	dropped     func()
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher(cfg RealtimeConfig) *RealtimeDispatcher {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultRealtimeBufferSize
	}
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  bufferSize,
		dropped:     cfg.Dropped,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, sessionID string) (<-chan RealtimeMessage, func()) {
	if sessionID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(sessionID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(sessionID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.SessionID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.SessionID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
			if d.dropped != nil {
				d.dropped()
			}
		}
	}
}

// NotifySessionChanged publishes a committed command to the session's subscribers.
func (d *RealtimeDispatcher) NotifySessionChanged(change billing.Change) {
	d.Publish(RealtimeMessage{
		SessionID: change.SessionID,
		EventType: RealtimeEventSessionChanged,
		Command:   change.Command,
		Version:   change.Version,
		Timestamp: change.OccurredAt.UTC(),
	})
}

// SubscriberCount reports how many streams are open for a session.
func (d *RealtimeDispatcher) SubscriberCount(sessionID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[sessionID])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(sessionID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[sessionID]; !ok {
		d.subscribers[sessionID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[sessionID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(sessionID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[sessionID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, sessionID)
		}
	}
	d.mu.Unlock()
}
