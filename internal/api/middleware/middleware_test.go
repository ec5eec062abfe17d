package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/dashactyl/internal/api/middleware"
	"github.com/kiranshivaraju/dashactyl/internal/apikey"
	"github.com/kiranshivaraju/dashactyl/internal/store"
	"github.com/kiranshivaraju/dashactyl/internal/store/storetest"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- Mock Key Authenticator ---

type mockKeys struct {
	key *models.APIKey
	err error
	got string
}

func (m *mockKeys) Authenticate(_ context.Context, raw string) (*models.APIKey, error) {
	m.got = raw
	return m.key, m.err
}

// --- Mock Sessions ---

type mockSessions struct {
	sessions map[string]*models.Session
	err      error
}

func (m *mockSessions) GetSession(_ context.Context, id string) (*models.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	sess, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return sess, nil
}

// --- Mock Cache ---

type mockCache struct {
	counter int64
	reset   time.Duration
	err     error
	keys    []string
}

func (m *mockCache) IncrWindow(_ context.Context, key string, _ time.Duration) (int64, time.Duration, error) {
	m.counter++
	m.keys = append(m.keys, key)
	return m.counter, m.reset, m.err
}

// windowCounter is a fixed-window counter on a fake clock. A window opens on
// the first hit and is not extended by later ones.
type windowCounter struct {
	now     time.Time
	count   map[string]int64
	expires map[string]time.Time
}

func newWindowCounter() *windowCounter {
	return &windowCounter{
		now:     time.Unix(1_700_000_000, 0),
		count:   map[string]int64{},
		expires: map[string]time.Time{},
	}
}

func (c *windowCounter) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if exp, ok := c.expires[key]; !ok || !c.now.Before(exp) {
		c.count[key] = 0
		c.expires[key] = c.now.Add(window)
	}
	c.count[key]++
	return c.count[key], c.expires[key].Sub(c.now), nil
}

// --- helpers ---

const validRawKey = "DashactylAbCdEfGh0123456789abcdefghijklmn"

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

// ========================================
// API Key Auth Tests
// ========================================

func TestAuth_MissingAuthHeader(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{}, &mockSessions{}, "")
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", errBody(t, w)["code"])
}

func TestAuth_InvalidBearerFormat(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{}, &mockSessions{}, "")
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_KeyTooShort(t *testing.T) {
	keys := &mockKeys{}
	auth := mw.NewAuth(keys, &mockSessions{}, "")
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer short")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, keys.got, "short keys must not reach the key store")
}

func TestAuth_InvalidKey(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{err: apikey.ErrInvalidKey}, &mockSessions{}, "")
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+validRawKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", errBody(t, w)["code"])
}

func TestAuth_LookupFailure(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{err: errors.New("db down")}, &mockSessions{}, "")
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+validRawKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAuth_ValidKey(t *testing.T) {
	keyID := uuid.New()
	keys := &mockKeys{key: &models.APIKey{ID: keyID, KeyPrefix: validRawKey[:17]}}
	auth := mw.NewAuth(keys, &mockSessions{}, "")

	var gotID uuid.UUID
	var gotOK bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotOK = mw.GetAPIKeyID(r)
		w.WriteHeader(http.StatusOK)
	})
	handler := auth.Authenticate(inner)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+validRawKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gotOK)
	assert.Equal(t, keyID, gotID)
	assert.Equal(t, validRawKey, keys.got)
}

func TestAuth_BootstrapKey(t *testing.T) {
	keys := &mockKeys{err: apikey.ErrInvalidKey}
	auth := mw.NewAuth(keys, &mockSessions{}, "let-me-in")

	var hasID bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasID = mw.GetAPIKeyID(r)
		w.WriteHeader(http.StatusOK)
	})
	handler := auth.Authenticate(inner)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer let-me-in")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, hasID)
	assert.Empty(t, keys.got)
}

func TestAuth_RealKeyService(t *testing.T) {
	svc := apikey.NewService(storetest.NewMemory(), bcrypt.MinCost, nil)
	_, raw, err := svc.Create(context.Background(), "ci")
	require.NoError(t, err)

	handler := mw.NewAuth(svc, &mockSessions{}, "").Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+raw+"x")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// ========================================
// Session Auth Tests
// ========================================

func TestRequireSession_NoCookie(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{}, &mockSessions{}, "")
	handler := auth.RequireSession(okHandler())

	req := httptest.NewRequest("GET", "/api/me", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", errBody(t, w)["code"])
}

func TestRequireSession_UnknownSession(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{}, &mockSessions{sessions: map[string]*models.Session{}}, "")
	handler := auth.RequireSession(okHandler())

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: mw.SessionCookie, Value: "stale"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSession_StoreFailure(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{}, &mockSessions{err: errors.New("db down")}, "")
	handler := auth.RequireSession(okHandler())

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: mw.SessionCookie, Value: "tok"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequireSession_Valid(t *testing.T) {
	sessions := &mockSessions{sessions: map[string]*models.Session{
		"tok": {ID: "tok", Email: "jamie@example.com", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	auth := mw.NewAuth(&mockKeys{}, sessions, "")

	var gotEmail, gotSession string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEmail, _ = mw.GetUserEmail(r)
		gotSession, _ = mw.GetSessionID(r)
		w.WriteHeader(http.StatusOK)
	})
	handler := auth.RequireSession(inner)

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: mw.SessionCookie, Value: "tok"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jamie@example.com", gotEmail)
	assert.Equal(t, "tok", gotSession)
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCache{counter: 0}
	rl := mw.NewRateLimit(mc, 60)

	// Simulate auth middleware by setting context
	inner := okHandler()
	handler := rl.Limit(inner)

	req := httptest.NewRequest("GET", "/test", nil)
	ctx := context.WithValue(req.Context(), mw.ExportedKeyPrefixKey(), "DashactylAbCdEfGh")
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []string{"ratelimit:DashactylAbCdEfGh"}, mc.keys)
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCache{counter: 60} // next IncrWindow will return 61
	rl := mw.NewRateLimit(mc, 60)

	handler := rl.Limit(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	ctx := context.WithValue(req.Context(), mw.ExportedKeyPrefixKey(), "DashactylOverOver")
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
}

func TestRateLimit_RetryAfterFollowsWindow(t *testing.T) {
	mc := &mockCache{counter: 60, reset: 12*time.Second + 300*time.Millisecond}
	rl := mw.NewRateLimit(mc, 60)

	req := httptest.NewRequest("GET", "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), mw.ExportedKeyPrefixKey(), "DashactylOverOver"))
	w := httptest.NewRecorder()
	rl.Limit(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "13", w.Header().Get("Retry-After"))
}

func TestRateLimit_SteadyClientUnderLimitIsNeverBlocked(t *testing.T) {
	counter := newWindowCounter()
	handler := mw.NewRateLimit(counter, 3).LimitByIP(okHandler())

	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		counter.now = counter.now.Add(50 * time.Second)
	}

	assert.Equal(t, []int{200, 200, 200, 200, 200, 200}, codes)
}

func TestRateLimit_WindowRestartsAfterBlock(t *testing.T) {
	counter := newWindowCounter()
	handler := mw.NewRateLimit(counter, 2).LimitByIP(okHandler())

	hit := func() int {
		req := httptest.NewRequest("POST", "/api/auth/register", nil)
		req.RemoteAddr = "203.0.113.10:4000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, hit())
	assert.Equal(t, http.StatusOK, hit())
	counter.now = counter.now.Add(30 * time.Second)
	assert.Equal(t, http.StatusTooManyRequests, hit())
	counter.now = counter.now.Add(20 * time.Second)
	assert.Equal(t, http.StatusTooManyRequests, hit())

	counter.now = counter.now.Add(10 * time.Second)
	assert.Equal(t, http.StatusOK, hit())
}

func TestRateLimit_NoKeyPrefix_PassThrough(t *testing.T) {
	mc := &mockCache{}
	rl := mw.NewRateLimit(mc, 60)

	handler := rl.Limit(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mc.keys)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	mc := &mockCache{counter: 1000, err: errors.New("redis down")}
	rl := mw.NewRateLimit(mc, 60)

	handler := rl.LimitByIP(okHandler())

	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_ByIP(t *testing.T) {
	mc := &mockCache{counter: 5}
	rl := mw.NewRateLimit(mc, 5)

	handler := rl.LimitByIP(okHandler())

	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, []string{"ratelimit:ip:203.0.113.7"}, mc.keys)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.2:4000"
	assert.Equal(t, "198.51.100.2", mw.ClientIP(req))

	req.RemoteAddr = "198.51.100.2"
	assert.Equal(t, "198.51.100.2", mw.ClientIP(req))
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	handler := mw.Recovery(panicking)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_ReraisesAbortHandler(t *testing.T) {
	aborting := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic(http.ErrAbortHandler)
	})

	handler := mw.Recovery(aborting)

	req := httptest.NewRequest("GET", "/api/afk/stream", nil)
	w := httptest.NewRecorder()
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() { handler.ServeHTTP(w, req) })
}

func TestRecovery_PanicAfterStreamStartedKeepsBody(t *testing.T) {
	streaming := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: connected\ndata: {}\n\n"))
		panic("lost the ticker")
	})

	handler := mw.Logger(mw.Recovery(streaming))

	req := httptest.NewRequest("GET", "/api/afk/stream", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "event: connected\ndata: {}\n\n", w.Body.String())
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := mw.Recovery(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging Middleware Tests
// ========================================

func TestLogger_SetsStatus(t *testing.T) {
	handler := mw.Logger(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogger_PreservesFlusher(t *testing.T) {
	var flushable bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, flushable = w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/afk/stream", nil)
	w := httptest.NewRecorder()
	mw.Logger(inner).ServeHTTP(w, req)

	assert.True(t, flushable)
}
