package push

import (
	"context"
	"sync"

	"github.com/jpalmerr/couponrelay/internal/store"
)

// subscriberBuffer is the channel capacity handed to each subscriber. One
// result is delivered per request id, so a small buffer never fills in
// practice.
const subscriberBuffer = 4

// Hub delivers pushed results to in-process subscribers.
//
// Subscribers register for a destination (for example
// "/coupon/give/result/abc") and receive every result pushed there. Sends
// are non-blocking: if a subscriber's buffer is full the result is dropped
// for that subscriber rather than blocking the coordinator.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan store.PendingResult]struct{}
}

// NewHub creates an empty [Hub].
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan store.PendingResult]struct{}),
	}
}

// Name implements delivery.Transport.
func (h *Hub) Name() string {
	return "sse"
}

// Subscribe registers a subscriber for destination.
//
// Caller must call [Hub.Unsubscribe] when done to prevent resource leaks.
func (h *Hub) Subscribe(destination string) <-chan store.PendingResult {
	ch := make(chan store.PendingResult, subscriberBuffer)

	h.mu.Lock()
	subs, ok := h.subscribers[destination]
	if !ok {
		subs = make(map[chan store.PendingResult]struct{})
		h.subscribers[destination] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with an unknown channel.
func (h *Hub) Unsubscribe(destination string, ch <-chan store.PendingResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[destination]
	for subCh := range subs {
		if subCh == ch {
			delete(subs, subCh)
			close(subCh)
			break
		}
	}
	if len(subs) == 0 {
		delete(h.subscribers, destination)
	}
}

// Subscribers returns the number of subscribers for destination.
func (h *Hub) Subscribers(destination string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[destination])
}

// Push hands result to every subscriber of destination.
//
// It returns [ErrNoSubscriber] when nobody is listening, which is how a
// client that vanished after registering shows up.
func (h *Hub) Push(_ context.Context, destination string, result store.PendingResult) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.subscribers[destination]
	if len(subs) == 0 {
		return ErrNoSubscriber
	}

	for ch := range subs {
		select {
		case ch <- result:
		default:
			// subscriber is not draining, drop the message
		}
	}
	return nil
}
