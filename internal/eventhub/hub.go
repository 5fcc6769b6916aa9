// Package eventhub implements the process-local, thread-safe publish/
// subscribe bus described in spec §4.4. Each Hub owns a single dispatch
// goroutine that drains a bounded channel FIFO and invokes matching
// subscribers against a snapshot of the subscription table, so that
// (un)subscribe during dispatch never races a publish in flight.
package eventhub

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"github.com/ErlanBelekov/taskrun/internal/domain"
	"github.com/google/uuid"
)

// Token identifies a subscription for later Unsubscribe.
type Token string

// Callback receives delivered events. A callback that panics is recovered
// and logged and does not affect the dispatcher or other subscribers.
type Callback func(domain.Event)

type subscription struct {
	token      Token
	cb         Callback
	eventTypes map[reflect.Type]struct{} // nil = all types
}

// Hub is a bounded, FIFO, single-consumer event dispatcher.
type Hub struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs []*subscription

	queue       chan domain.Event
	done        chan struct{}
	drainOnStop bool
	wg          sync.WaitGroup
}

// New creates a Hub with the given outstanding-event buffer size and
// starts its dispatch goroutine. Call Stop to tear it down.
func New(logger *slog.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	h := &Hub{
		logger: logger.With("component", "eventhub"),
		queue:  make(chan domain.Event, bufferSize),
		done:   make(chan struct{}),
	}
	h.wg.Add(1)
	go h.dispatchLoop()
	return h
}

func (h *Hub) dispatchLoop() {
	defer h.wg.Done()
	for {
		select {
		case ev := <-h.queue:
			h.deliver(ev)
		case <-h.done:
			if h.drainOnStop {
				for {
					select {
					case ev := <-h.queue:
						h.deliver(ev)
					default:
						return
					}
				}
			}
			return
		}
	}
}

func (h *Hub) deliver(ev domain.Event) {
	h.mu.RLock()
	snapshot := make([]*subscription, len(h.subs))
	copy(snapshot, h.subs)
	h.mu.RUnlock()

	t := reflect.TypeOf(ev)
	for _, s := range snapshot {
		if s.eventTypes != nil {
			if _, ok := s.eventTypes[t]; !ok {
				continue
			}
		}
		h.invoke(s, ev)
	}
}

func (h *Hub) invoke(s *subscription, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("subscriber callback panicked", "panic", r, "event", reflect.TypeOf(ev))
		}
	}()
	s.cb(ev)
}

// Subscribe registers cb for delivery. If eventTypes is empty, cb receives
// every event published on this hub. Returns a token for Unsubscribe.
func (h *Hub) Subscribe(cb Callback, eventTypes ...domain.Event) Token {
	var types map[reflect.Type]struct{}
	if len(eventTypes) > 0 {
		types = make(map[reflect.Type]struct{}, len(eventTypes))
		for _, e := range eventTypes {
			types[reflect.TypeOf(e)] = struct{}{}
		}
	}
	sub := &subscription{
		token:      Token(uuid.NewString()),
		cb:         cb,
		eventTypes: types,
	}
	h.mu.Lock()
	h.subs = append(h.subs, sub)
	h.mu.Unlock()
	return sub.token
}

// Unsubscribe removes a subscription. It is a no-op if token is unknown.
func (h *Hub) Unsubscribe(token Token) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s.token == token {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			return
		}
	}
}

// Publish enqueues ev for delivery. Events from a single publisher are
// delivered to any given subscriber in publish order; there is no
// cross-publisher ordering guarantee.
func (h *Hub) Publish(ev domain.Event) {
	select {
	case h.queue <- ev:
	case <-h.done:
	}
}

// RelayEventsFrom subscribes this hub's Publish to every event emitted by
// other, with no type filter, so events flow through in publish order.
func (h *Hub) RelayEventsFrom(other *Hub) Token {
	return other.Subscribe(func(ev domain.Event) {
		h.Publish(ev)
	})
}

// Stop tears the dispatcher down. If ctx has not been canceled, pending
// events are drained before returning; if it has (an error triggered
// shutdown), queued events are discarded and Stop returns promptly.
func (h *Hub) Stop(ctx context.Context) {
	h.drainOnStop = ctx.Err() == nil
	close(h.done)
	h.wg.Wait()
}
