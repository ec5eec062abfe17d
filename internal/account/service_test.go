package account_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/dashactyl/internal/account"
	"github.com/kiranshivaraju/dashactyl/internal/events"
	"github.com/kiranshivaraju/dashactyl/internal/store"
	"github.com/kiranshivaraju/dashactyl/internal/store/storetest"
)

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.UserUpdated
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.UserUpdated) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newService(t *testing.T) (*account.Service, *storetest.Memory, *recordingPublisher) {
	t.Helper()
	mem := storetest.NewMemory()
	pub := &recordingPublisher{}
	svc := account.NewService(mem,
		account.WithBcryptCost(bcrypt.MinCost),
		account.WithPublisher(pub),
		account.WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }),
	)
	return svc, mem, pub
}

func mustCreate(t *testing.T, svc *account.Service, username, email string) {
	t.Helper()
	_, err := svc.CreateUser(context.Background(), username, email, "hunter2", "203.0.113.7")
	require.NoError(t, err)
}

// --- CreateUser ---

func TestCreateUser_InitialState(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, "a", "a@x.io", "pw", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "default", u.Package)

	got, err := svc.GetUser(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Username)
	assert.Zero(t, got.Used.CPU)
	assert.Zero(t, got.Used.RAM)
	assert.Zero(t, got.Used.Disk)
	assert.Zero(t, got.Extra.RAM)
	assert.Zero(t, got.Coins)
	assert.Equal(t, "1.2.3.4", got.RegisteredIP)
	assert.Equal(t, "1.2.3.4", got.LastLoginIP)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), got.CreatedAt)
	assert.NotEqual(t, "pw", got.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("pw")))
}

func TestCreateUser_UsesSettingsDefaultPackage(t *testing.T) {
	svc, mem, _ := newService(t)
	mem.Settings.DefaultPackage = "starter"

	u, err := svc.CreateUser(context.Background(), "a", "a@x.io", "pw", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "starter", u.Package)
}

func TestCreateUser_FallsBackWhenSettingsMissing(t *testing.T) {
	svc, mem, _ := newService(t)
	mem.Settings = nil

	u, err := svc.CreateUser(context.Background(), "a", "a@x.io", "pw", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "default", u.Package)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	svc, _, _ := newService(t)
	mustCreate(t, svc, "a", "a@x.io")

	_, err := svc.CreateUser(context.Background(), "b", "a@x.io", "pw", "1.2.3.4")
	require.Error(t, err)
	assert.Equal(t, "That email address is already in use.", err.Error())

	var conflict *account.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "email", conflict.Field)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	svc, _, _ := newService(t)
	mustCreate(t, svc, "a", "a@x.io")

	_, err := svc.CreateUser(context.Background(), "a", "other@x.io", "pw", "1.2.3.4")
	require.Error(t, err)
	assert.Equal(t, "That username is already in use.", err.Error())
}

func TestCreateUser_EmailTakesPrecedence(t *testing.T) {
	svc, _, _ := newService(t)
	mustCreate(t, svc, "a", "a@x.io")

	_, err := svc.CreateUser(context.Background(), "a", "a@x.io", "pw", "1.2.3.4")
	require.Error(t, err)
	assert.Equal(t, account.EmailInUseMessage, err.Error())
}

func TestCreateUser_StoreFailure(t *testing.T) {
	svc, mem, _ := newService(t)
	mem.Err = errors.New("connection reset")

	_, err := svc.CreateUser(context.Background(), "a", "a@x.io", "pw", "1.2.3.4")
	require.Error(t, err)
	var conflict *account.ConflictError
	assert.False(t, errors.As(err, &conflict))
}

// --- Credentials ---

func TestVerifyPassword(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	mustCreate(t, svc, "a", "a@x.io")

	assert.NoError(t, svc.VerifyPassword(ctx, "a@x.io", "hunter2"))
	assert.ErrorIs(t, svc.VerifyPassword(ctx, "a@x.io", "wrong"), account.ErrInvalidCredential)
	assert.ErrorIs(t, svc.VerifyPassword(ctx, "ghost@x.io", "hunter2"), account.ErrInvalidCredential)
}

func TestMatchPasswords(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	mustCreate(t, svc, "a", "a@x.io")

	u, err := svc.GetUser(ctx, "a@x.io")
	require.NoError(t, err)

	assert.NoError(t, svc.MatchPasswords(ctx, "a@x.io", u.PasswordHash))
	assert.ErrorIs(t, svc.MatchPasswords(ctx, "a@x.io", "hunter2"), account.ErrInvalidCredential)
	assert.ErrorIs(t, svc.MatchPasswords(ctx, "ghost@x.io", u.PasswordHash), account.ErrInvalidCredential)
}

func TestUpdatePassword(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	mustCreate(t, svc, "a", "a@x.io")

	require.NoError(t, svc.UpdatePassword(ctx, "a@x.io", "new-secret"))
	assert.NoError(t, svc.VerifyPassword(ctx, "a@x.io", "new-secret"))
	assert.ErrorIs(t, svc.VerifyPassword(ctx, "a@x.io", "hunter2"), account.ErrInvalidCredential)

	err := svc.UpdatePassword(ctx, "ghost@x.io", "x")
	assert.ErrorIs(t, err, account.ErrUserNotFound)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Counters ---

func TestAddUsed_Accumulates(t *testing.T) {
	svc, _, pub := newService(t)
	ctx := context.Background()
	mustCreate(t, svc, "a", "a@x.io")

	_, err := svc.AddUsed(ctx, "a@x.io", 1, 2, 3)
	require.NoError(t, err)
	u, err := svc.AddUsed(ctx, "a@x.io", 1, 2, 3)
	require.NoError(t, err)

	assert.Equal(t, 2, u.Used.CPU)
	assert.Equal(t, 4, u.Used.RAM)
	assert.Equal(t, 6, u.Used.Disk)
	assert.Equal(t, 2, pub.count())
	assert.Equal(t, "a@x.io", pub.events[0].Email)
}

func TestAddUsed_RejectsNegativeResult(t *testing.T) {
	svc, _, pub := newService(t)
	mustCreate(t, svc, "a", "a@x.io")

	_, err := svc.AddUsed(context.Background(), "a@x.io", -1, 0, 0)
	assert.ErrorIs(t, err, store.ErrInvalidValue)
	assert.Equal(t, 0, pub.count())
}

func TestAddUsed_MissingUser(t *testing.T) {
	svc, _, pub := newService(t)

	_, err := svc.AddUsed(context.Background(), "ghost@x.io", 1, 1, 1)
	assert.ErrorIs(t, err, account.ErrUserNotFound)
	assert.Equal(t, 0, pub.count())
}

func TestSetUsed(t *testing.T) {
	svc, _, pub := newService(t)
	ctx := context.Background()
	mustCreate(t, svc, "a", "a@x.io")
	_, err := svc.AddUsed(ctx, "a@x.io", 5, 5, 5)
	require.NoError(t, err)

	u, err := svc.SetUsed(ctx, "a@x.io", 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Used.CPU)
	assert.Equal(t, 2, u.Used.RAM)
	assert.Equal(t, 3, u.Used.Disk)
	assert.Equal(t, 2, pub.count())

	_, err = svc.SetUsed(ctx, "a@x.io", -1, 0, 0)
	assert.ErrorIs(t, err, store.ErrInvalidValue)
}

func TestCoinsAndExtra(t *testing.T) {
	svc, _, pub := newService(t)
	ctx := context.Background()
	mustCreate(t, svc, "a", "a@x.io")

	require.NoError(t, svc.UpdateCoins(ctx, "a@x.io", 10))
	coins, err := svc.AddCoins(ctx, "a@x.io", 5)
	require.NoError(t, err)
	assert.Equal(t, 15, coins)

	require.NoError(t, svc.UpdateExtraRAM(ctx, "a@x.io", 512))
	require.NoError(t, svc.UpdateExtraCPU(ctx, "a@x.io", 50))
	require.NoError(t, svc.UpdateExtraDisk(ctx, "a@x.io", 2048))

	u, err := svc.GetUser(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, 15, u.Coins)
	assert.Equal(t, 512, u.Extra.RAM)
	assert.Equal(t, 50, u.Extra.CPU)
	assert.Equal(t, 2048, u.Extra.Disk)
	assert.Equal(t, 5, pub.count())

	assert.ErrorIs(t, svc.UpdateCoins(ctx, "ghost@x.io", 1), account.ErrUserNotFound)
	assert.ErrorIs(t, svc.UpdateExtraRAM(ctx, "ghost@x.io", 1), account.ErrUserNotFound)
	_, err = svc.AddCoins(ctx, "ghost@x.io", 1)
	assert.ErrorIs(t, err, account.ErrUserNotFound)
	assert.Equal(t, 5, pub.count())
}

// --- Alts / IP history ---

func TestAltChecks(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	mustCreate(t, svc, "a", "a@x.io")

	found, err := svc.CheckAltsByRegisteredIP(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = svc.CheckAltsByRegisteredIP(ctx, "9.9.9.9")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, svc.UpdateLastLoginIP(ctx, "a@x.io", "9.9.9.9"))
	found, err = svc.CheckAltsByLastLoginIP(ctx, "9.9.9.9")
	require.NoError(t, err)
	assert.True(t, found)

	assert.ErrorIs(t, svc.UpdateLastLoginIP(ctx, "ghost@x.io", "1.1.1.1"), account.ErrUserNotFound)
}

func TestGetUserByUsernameAndExternalID(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	mustCreate(t, svc, "a", "a@x.io")

	require.NoError(t, svc.SetExternalID(ctx, "a", "42"))
	u, err := svc.GetUserByUsername(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "42", u.PterodactylID)

	_, err = svc.GetUserByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, account.ErrUserNotFound)
	assert.ErrorIs(t, svc.SetExternalID(ctx, "ghost", "1"), account.ErrUserNotFound)
}
