package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/coutupro/internal/atelier"
)

const (
	RealtimeEventAlerte    = "alerte"
	realtimeEventHeartbeat = "heartbeat"
	realtimeSourceBackend  = "coutupro"
	defaultBufferSize      = 16
)

// RealtimeMessage is one event pushed to the open alert streams.
type RealtimeMessage struct {
	EventType string
	Alerte    *atelier.Alerte
	Timestamp time.Time
}

// RealtimeDispatcher fans committed alerts out to every open stream. A slow
// subscriber misses messages rather than blocking the writer.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  defaultBufferSize,
		clock:       time.Now,
	}
}

// AlerteCreated satisfies atelier.Notifier.
func (d *RealtimeDispatcher) AlerteCreated(alerte atelier.Alerte) {
	d.Publish(RealtimeMessage{
		EventType: RealtimeEventAlerte,
		Alerte:    &alerte,
		Timestamp: d.clock().UTC(),
	})
}

// Subscribe registers a stream that is removed when ctx ends or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.mu.Lock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subscribers, subscriber.id)
			d.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports how many streams are open.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}
