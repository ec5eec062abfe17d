package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/dashactyl/internal/cache"
)

// ChannelPublisher publishes raw payloads on a named channel.
type ChannelPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type relayedKey struct{}

type envelope struct {
	Email  string `json:"email"`
	Origin string `json:"origin"`
}

// RedisRelay mirrors hub events onto the userUpdate channel and feeds events
// published by other processes back into the local hub.
type RedisRelay struct {
	hub    *Hub
	pub    ChannelPublisher
	sub    cache.Subscriber
	origin string
	queue  chan UserUpdated
	logger *slog.Logger
}

// NewRedisRelay creates a relay. sub may be nil, in which case the relay only
// publishes outbound.
func NewRedisRelay(hub *Hub, pub ChannelPublisher, sub cache.Subscriber, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{
		hub:    hub,
		pub:    pub,
		sub:    sub,
		origin: uuid.NewString(),
		queue:  make(chan UserUpdated, 256),
		logger: logger,
	}
}

// Run relays events until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	unsubscribe := r.hub.Subscribe(r.enqueue)
	defer unsubscribe()

	var inbound <-chan []byte
	if r.sub != nil {
		ch, err := r.sub.Subscribe(ctx, cache.UserUpdateChannel)
		if err != nil {
			return err
		}
		inbound = ch
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-r.queue:
			r.forward(ctx, ev)
		case payload, ok := <-inbound:
			if !ok {
				inbound = nil
				continue
			}
			r.receive(ctx, payload)
		}
	}
}

// enqueue is the hub handler. Events that arrived from the channel are not
// sent back out, and the event is dropped when the queue is full.
func (r *RedisRelay) enqueue(ctx context.Context, ev UserUpdated) {
	if relayed, _ := ctx.Value(relayedKey{}).(bool); relayed {
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.logger.Warn("event relay queue full, dropping event", "email", ev.Email)
	}
}

func (r *RedisRelay) forward(ctx context.Context, ev UserUpdated) {
	payload, err := json.Marshal(envelope{Email: ev.Email, Origin: r.origin})
	if err != nil {
		r.logger.Error("failed to encode user update", "error", err)
		return
	}
	if err := r.pub.Publish(ctx, cache.UserUpdateChannel, payload); err != nil {
		r.logger.Warn("failed to publish user update", "email", ev.Email, "error", err)
	}
}

func (r *RedisRelay) receive(ctx context.Context, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logger.Warn("ignoring malformed user update", "error", err)
		return
	}
	if env.Origin == r.origin || env.Email == "" {
		return
	}
	r.hub.deliver(context.WithValue(ctx, relayedKey{}, true), UserUpdated{Email: env.Email})
}
