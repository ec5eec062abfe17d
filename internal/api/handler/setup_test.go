package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/dashactyl/internal/account"
	"github.com/kiranshivaraju/dashactyl/internal/afk"
	"github.com/kiranshivaraju/dashactyl/internal/api"
	"github.com/kiranshivaraju/dashactyl/internal/api/handler"
	mw "github.com/kiranshivaraju/dashactyl/internal/api/middleware"
	"github.com/kiranshivaraju/dashactyl/internal/apikey"
	"github.com/kiranshivaraju/dashactyl/internal/billing"
	"github.com/kiranshivaraju/dashactyl/internal/events"
	"github.com/kiranshivaraju/dashactyl/internal/store/storetest"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

// ─── test fixtures ───────────────────────────────────────────────────────────

const (
	testBootstrapKey = "bootstrap-test-key-for-handler-tests"
	testPassword     = "correct-horse"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

type fakeClassifier struct {
	mu    sync.Mutex
	risky bool
	err   error
	calls int
}

func (f *fakeClassifier) IsRiskyIP(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.risky, f.err
}

type countingCache struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *countingCache) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], window, nil
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]string
}

func (l *memLocks) AcquireLock(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = token
	return true, nil
}

func (l *memLocks) RefreshLock(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key] == token, nil
}

func (l *memLocks) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func (l *memLocks) isHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

type manualTicker struct {
	ch chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               {}

// ─── test harness ────────────────────────────────────────────────────────────

type testEnv struct {
	router     http.Handler
	mem        *storetest.Memory
	accounts   *account.Service
	billing    *billing.Service
	keys       *apikey.Service
	hub        *events.Hub
	classifier *fakeClassifier
	locks      *memLocks
	ticker     *manualTicker
}

func newTestEnv(t *testing.T, configure ...func(*handler.RegisterOptions)) *testEnv {
	t.Helper()

	mem := storetest.NewMemory()
	hub := events.NewHub()
	accounts := account.NewService(mem,
		account.WithBcryptCost(bcrypt.MinCost),
		account.WithPublisher(hub),
	)
	bill := billing.NewService(mem, billing.WithPublisher(hub))
	keys := apikey.NewService(mem, bcrypt.MinCost, nil)

	locks := &memLocks{held: map[string]string{}}
	ticker := &manualTicker{ch: make(chan time.Time)}
	earner := afk.NewEarner(accounts, locks, nil,
		afk.WithTicker(func(time.Duration) afk.Ticker { return ticker }))

	classifier := &fakeClassifier{}
	sessionCfg := handler.SessionConfig{TTL: time.Hour}
	regOpts := handler.RegisterOptions{
		Classifier:   classifier,
		BlockProxies: true,
		Session:      sessionCfg,
	}
	for _, fn := range configure {
		fn(&regOpts)
	}

	limiter := &countingCache{counts: map[string]int64{}}

	deps := api.Dependencies{
		Auth:      mw.NewAuth(keys, mem, testBootstrapKey),
		RateLimit: mw.NewRateLimit(limiter, 1000),
		Metrics:   promhttp.Handler(),

		RegisterHandler: handler.NewRegisterHandler(accounts, mem, regOpts),
		LoginHandler:    handler.NewLoginHandler(accounts, mem, sessionCfg),
		LogoutHandler:   handler.NewLogoutHandler(mem),
		MeHandler:       handler.NewMeHandler(accounts),
		MyRenewals:      handler.NewMyRenewalsHandler(bill),
		RenewHandler:    handler.NewRenewHandler(bill),
		AFKSettings:     handler.NewAFKSettingsHandler(mem),
		AFKStream:       handler.NewAFKStreamHandler(mem, earner),
		EventsHandler:   handler.NewEventsHandler(hub),

		GetSettings:          handler.NewGetSettingsHandler(mem),
		UpdateSettings:       handler.NewUpdateSettingsHandler(mem),
		ListPackages:         handler.NewListPackagesHandler(mem),
		CreatePackage:        handler.NewCreatePackageHandler(mem),
		GetDefaultPackage:    handler.NewGetDefaultPackageHandler(mem),
		GetPackage:           handler.NewGetPackageHandler(mem),
		ListEggs:             handler.NewListEggsHandler(mem),
		CreateEgg:            handler.NewCreateEggHandler(mem),
		GetEgg:               handler.NewGetEggHandler(mem),
		ListLocations:        handler.NewListLocationsHandler(mem),
		CreateLocation:       handler.NewCreateLocationHandler(mem),
		GetLocation:          handler.NewGetLocationHandler(mem),
		UpdateLocationStatus: handler.NewUpdateLocationStatusHandler(mem),
		GetUser:              handler.NewGetUserHandler(accounts),
		UpdatePassword:       handler.NewUpdatePasswordHandler(accounts),
		AddUsed:              handler.NewAddUsedHandler(accounts),
		SetUsed:              handler.NewSetUsedHandler(accounts),
		UpdateCoins:          handler.NewUpdateCoinsHandler(accounts),
		UpdateExtra:          handler.NewUpdateExtraHandler(accounts),
		SetExternalID:        handler.NewSetExternalIDHandler(accounts),
		UserRenewals:         handler.NewUserRenewalsHandler(bill),
		ListRenewals:         handler.NewListRenewalsHandler(bill),
		CreateRenewal:        handler.NewCreateRenewalHandler(bill),
		GetRenewal:           handler.NewGetRenewalHandler(bill),
		UpdateRenewal:        handler.NewUpdateRenewalHandler(bill),
		DeleteRenewal:        handler.NewDeleteRenewalHandler(bill),
		ListKeysHandler:      handler.NewListKeysHandler(keys),
		CreateKeyHandler:     handler.NewCreateKeyHandler(keys),
		DeleteKeyHandler:     handler.NewDeleteKeyHandler(keys),
	}

	return &testEnv{
		router:     api.NewRouter(deps),
		mem:        mem,
		accounts:   accounts,
		billing:    bill,
		keys:       keys,
		hub:        hub,
		classifier: classifier,
		locks:      locks,
		ticker:     ticker,
	}
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func newRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// api sends a request authenticated with the bootstrap key.
func (e *testEnv) api(method, path string, body any) *httptest.ResponseRecorder {
	req := newRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+testBootstrapKey)
	return e.serve(req)
}

// dashboard sends a request carrying the given session cookie.
func (e *testEnv) dashboard(method, path string, body any, sessionID string) *httptest.ResponseRecorder {
	req := newRequest(method, path, body)
	req.AddCookie(&http.Cookie{Name: mw.SessionCookie, Value: sessionID})
	return e.serve(req)
}

// createUser registers a user directly through the account service.
func (e *testEnv) createUser(t *testing.T, username, email, ip string) *models.User {
	t.Helper()
	u, err := e.accounts.CreateUser(context.Background(), username, email, testPassword, ip)
	require.NoError(t, err)
	return u
}

// login stores a session for email and returns its id.
func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	now := time.Now().UTC()
	id := "session-" + email
	require.NoError(t, e.mem.CreateSession(context.Background(), &models.Session{
		ID:        id,
		Email:     email,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}))
	return id
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, v))
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var env struct {
		Error errorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env.Error
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == mw.SessionCookie {
			return c
		}
	}
	return nil
}
