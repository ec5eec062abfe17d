// Package afk credits coins to users while they keep an AFK page open.
package afk

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/dashactyl/internal/cache"
	"github.com/kiranshivaraju/dashactyl/internal/metrics"
)

var (
	ErrDisabled      = errors.New("afk rewards are disabled")
	ErrAlreadyActive = errors.New("an afk session is already active for this user")
)

// lockGrace is added to the lock TTL so a live session never loses it between ticks.
const lockGrace = 30 * time.Second

// CoinAdder credits coins and returns the new balance.
type CoinAdder interface {
	AddCoins(ctx context.Context, email string, delta int) (int, error)
}

// Locker holds a per-user lock across processes.
type Locker interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	RefreshLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Ticker abstracts time.Ticker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ *time.Ticker }

func (t realTicker) C() <-chan time.Time { return t.Ticker.C }

// Tick is one reward step as seen by the client.
type Tick struct {
	Coins  int `json:"coins"`
	Earned int `json:"earned"`
	Time   int `json:"time"`
}

// Earner starts AFK sessions.
type Earner struct {
	coins     CoinAdder
	locks     Locker
	newTicker func(time.Duration) Ticker
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures an Earner.
type Option func(*Earner)

// WithTicker overrides ticker construction.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(e *Earner) { e.newTicker = fn }
}

// WithClock overrides the time source used for elapsed time.
func WithClock(now func() time.Time) Option {
	return func(e *Earner) { e.now = now }
}

// NewEarner creates an Earner. locks may be nil to disable the one-session rule.
func NewEarner(coins CoinAdder, locks Locker, logger *slog.Logger, opts ...Option) *Earner {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Earner{
		coins:     coins,
		locks:     locks,
		newTicker: func(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} },
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Session is one open AFK stream.
type Session struct {
	earner   *Earner
	email    string
	interval time.Duration
	reward   int
	lockKey  string
	token    string
}

// Begin validates the reward settings and takes the user's lock.
// intervalSeconds <= 0 yields ErrDisabled.
func (e *Earner) Begin(ctx context.Context, email string, intervalSeconds, reward int) (*Session, error) {
	if intervalSeconds <= 0 {
		return nil, ErrDisabled
	}
	s := &Session{
		earner:   e,
		email:    email,
		interval: time.Duration(intervalSeconds) * time.Second,
		reward:   reward,
		lockKey:  cache.AFKLockKey(email),
		token:    rand.Text(),
	}
	if e.locks != nil {
		ok, err := e.locks.AcquireLock(ctx, s.lockKey, s.token, s.lockTTL())
		if err != nil {
			return nil, fmt.Errorf("acquiring afk lock: %w", err)
		}
		if !ok {
			return nil, ErrAlreadyActive
		}
	}
	metrics.ActiveAFKStreams.Inc()
	return s, nil
}

func (s *Session) lockTTL() time.Duration {
	return s.interval + lockGrace
}

// Run credits the reward every interval and passes each tick to emit until
// ctx is cancelled or emit fails.
func (s *Session) Run(ctx context.Context, emit func(Tick) error) error {
	e := s.earner
	ticker := e.newTicker(s.interval)
	defer ticker.Stop()

	started := e.now()
	earned := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		}

		coins, err := e.coins.AddCoins(ctx, s.email, s.reward)
		if err != nil {
			return fmt.Errorf("crediting afk coins: %w", err)
		}
		earned += s.reward
		metrics.AFKCoinsTotal.Add(float64(s.reward))

		if e.locks != nil {
			if _, err := e.locks.RefreshLock(ctx, s.lockKey, s.token, s.lockTTL()); err != nil {
				e.logger.Warn("failed to refresh afk lock", "email", s.email, "error", err)
			}
		}

		tick := Tick{Coins: coins, Earned: earned, Time: int(e.now().Sub(started) / time.Second)}
		if err := emit(tick); err != nil {
			return err
		}
	}
}

// Close releases the user's lock.
func (s *Session) Close() {
	metrics.ActiveAFKStreams.Dec()
	if s.earner.locks == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.earner.locks.ReleaseLock(ctx, s.lockKey, s.token); err != nil {
		s.earner.logger.Warn("failed to release afk lock", "email", s.email, "error", err)
	}
}
