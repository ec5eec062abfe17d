// Package events carries user change notifications from the mutation paths
// to interested subscribers in this process and, through a relay, to others.
package events

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/dashactyl/internal/metrics"
)

// UserUpdated is emitted after a user's usage, coins or extra resources change.
type UserUpdated struct {
	Email string `json:"email"`
}

// Handler receives events. Handlers run on the publisher's goroutine and
// must not block.
type Handler func(ctx context.Context, ev UserUpdated)

// Publisher is the narrow interface mutation paths depend on.
type Publisher interface {
	Publish(ctx context.Context, ev UserUpdated)
}

// Hub is an explicit subscribe/publish registry. The zero value is not
// usable; call NewHub.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]Handler
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]Handler)}
}

// Subscribe registers fn and returns a function that removes it. The
// returned function is safe to call more than once.
func (h *Hub) Subscribe(fn Handler) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers ev to every current subscriber.
func (h *Hub) Publish(ctx context.Context, ev UserUpdated) {
	metrics.UserUpdatesTotal.Inc()
	h.deliver(ctx, ev)
}

func (h *Hub) deliver(ctx context.Context, ev UserUpdated) {
	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.subs))
	for _, fn := range h.subs {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(ctx, ev)
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

var _ Publisher = (*Hub)(nil)
