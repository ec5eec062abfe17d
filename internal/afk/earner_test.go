package afk_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/dashactyl/internal/afk"
)

type manualTicker struct {
	ch      chan time.Time
	stopped bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.stopped = true }

type fakeCoins struct {
	mu      sync.Mutex
	balance int
	err     error
}

func (f *fakeCoins) AddCoins(_ context.Context, _ string, delta int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.balance += delta
	return f.balance, nil
}

type fakeLocks struct {
	mu    sync.Mutex
	held  map[string]string
	ttl   time.Duration
}

func newFakeLocks() *fakeLocks { return &fakeLocks{held: map[string]string{}} }

func (f *fakeLocks) AcquireLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.held[key]; ok {
		return false, nil
	}
	f.held[key] = token
	f.ttl = ttl
	return true, nil
}

func (f *fakeLocks) RefreshLock(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held[key] == token, nil
}

func (f *fakeLocks) ReleaseLock(_ context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] == token {
		delete(f.held, key)
	}
	return nil
}

func TestBegin_DisabledInterval(t *testing.T) {
	e := afk.NewEarner(&fakeCoins{}, nil, nil)

	_, err := e.Begin(context.Background(), "a@x.io", 0, 5)
	assert.ErrorIs(t, err, afk.ErrDisabled)
	_, err = e.Begin(context.Background(), "a@x.io", -3, 5)
	assert.ErrorIs(t, err, afk.ErrDisabled)
}

func TestBegin_OneSessionPerUser(t *testing.T) {
	locks := newFakeLocks()
	e := afk.NewEarner(&fakeCoins{}, locks, nil)
	ctx := context.Background()

	s, err := e.Begin(ctx, "a@x.io", 60, 5)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, locks.ttl)

	_, err = e.Begin(ctx, "a@x.io", 60, 5)
	assert.ErrorIs(t, err, afk.ErrAlreadyActive)

	other, err := e.Begin(ctx, "b@x.io", 60, 5)
	require.NoError(t, err)
	other.Close()

	s.Close()
	again, err := e.Begin(ctx, "a@x.io", 60, 5)
	require.NoError(t, err)
	again.Close()
}

func TestRun_CreditsEachTick(t *testing.T) {
	ticker := &manualTicker{ch: make(chan time.Time)}
	coins := &fakeCoins{balance: 10}

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := start
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }

	var gotInterval time.Duration
	e := afk.NewEarner(coins, newFakeLocks(), nil,
		afk.WithTicker(func(d time.Duration) afk.Ticker { gotInterval = d; return ticker }),
		afk.WithClock(clock))

	s, err := e.Begin(context.Background(), "a@x.io", 60, 5)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan afk.Tick, 3)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(t afk.Tick) error { ticks <- t; return nil })
	}()

	for i := 1; i <= 2; i++ {
		mu.Lock()
		now = start.Add(time.Duration(i) * time.Minute)
		mu.Unlock()
		ticker.ch <- now
		tick := <-ticks
		assert.Equal(t, 10+5*i, tick.Coins)
		assert.Equal(t, 5*i, tick.Earned)
		assert.Equal(t, 60*i, tick.Time)
	}

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, time.Minute, gotInterval)
	assert.True(t, ticker.stopped)
}

func TestRun_StopsOnEmitError(t *testing.T) {
	ticker := &manualTicker{ch: make(chan time.Time, 1)}
	e := afk.NewEarner(&fakeCoins{}, nil, nil,
		afk.WithTicker(func(time.Duration) afk.Ticker { return ticker }))

	s, err := e.Begin(context.Background(), "a@x.io", 1, 1)
	require.NoError(t, err)
	defer s.Close()

	ticker.ch <- time.Now()
	gone := errors.New("client went away")
	err = s.Run(context.Background(), func(afk.Tick) error { return gone })
	assert.ErrorIs(t, err, gone)
}

func TestRun_StopsOnCreditError(t *testing.T) {
	ticker := &manualTicker{ch: make(chan time.Time, 1)}
	coins := &fakeCoins{err: errors.New("user vanished")}
	e := afk.NewEarner(coins, nil, nil,
		afk.WithTicker(func(time.Duration) afk.Ticker { return ticker }))

	s, err := e.Begin(context.Background(), "a@x.io", 1, 1)
	require.NoError(t, err)
	defer s.Close()

	ticker.ch <- time.Now()
	err = s.Run(context.Background(), func(afk.Tick) error { return nil })
	assert.Error(t, err)
}
