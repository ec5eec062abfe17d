// Package storetest provides an in-memory store.Store for unit tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/dashactyl/internal/store"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

// Memory mirrors the constraint behaviour of the Postgres store: unique
// keys, non-negative usage and ErrNotFound on missing rows.
type Memory struct {
	mu sync.Mutex

	Settings  *models.Settings
	users     map[string]*models.User // by email
	sessions  map[string]*models.Session
	packages  map[string]*models.Package
	eggs      map[string]*models.Egg
	locations map[int]*models.Location
	renewals  map[int]*models.Renewal
	keys      map[uuid.UUID]*models.APIKey

	// PingErr, when set, is returned by Ping.
	PingErr error
	// Err, when set, is returned by every data operation.
	Err error
}

// NewMemory returns a store seeded the way the migrations seed Postgres.
func NewMemory() *Memory {
	return &Memory{
		Settings: &models.Settings{ID: 1, Name: "Dashactyl", DefaultPackage: "default"},
		users:    map[string]*models.User{},
		sessions: map[string]*models.Session{},
		packages: map[string]*models.Package{
			"default": {Name: "default", RAM: 1024, CPU: 100, Disk: 1024, Price: 100,
				RenewalTime: 604800000, RenewalPrice: 100, Default: true},
		},
		eggs:      map[string]*models.Egg{},
		locations: map[int]*models.Location{},
		renewals:  map[int]*models.Renewal{},
		keys:      map[uuid.UUID]*models.APIKey{},
	}
}

func (m *Memory) Ping(context.Context) error { return m.PingErr }

// --- Settings ---

func (m *Memory) GetSettings(context.Context) (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Settings == nil {
		return nil, store.ErrNotFound
	}
	c := *m.Settings
	return &c, nil
}

func (m *Memory) SetSettings(_ context.Context, u models.SettingsUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.Settings == nil {
		return nil
	}
	s := m.Settings
	s.HostName, s.ApplicationURL = u.HostName, u.ApplicationURL
	s.PterodactylURL, s.PterodactylKey = u.PterodactylURL, u.PterodactylKey
	s.DiscordInvite, s.DiscordID, s.DiscordSecret = u.DiscordInvite, u.DiscordID, u.DiscordSecret
	s.DiscordToken, s.DiscordWebhook, s.DiscordGuild = u.DiscordToken, u.DiscordWebhook, u.DiscordGuild
	s.RegisteredRole, s.AFKCoins, s.ArcioCode = u.RegisteredRole, u.AFKCoins, u.ArcioCode
	s.AFKInterval, s.RAMPrice, s.CPUPrice, s.DiskPrice = u.AFKInterval, u.RAMPrice, u.CPUPrice, u.DiskPrice
	return nil
}

// --- Users ---

func (m *Memory) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.users[u.Email]; ok {
		return &store.DuplicateError{Field: "email"}
	}
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return &store.DuplicateError{Field: "username"}
		}
	}
	c := *u
	m.users[u.Email] = &c
	return nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	u, ok := m.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, u := range m.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

// mutate applies fn to the user with email under the lock.
func (m *Memory) mutate(email string, fn func(u *models.User) error) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	u, ok := m.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := *u
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	m.users[email] = &next
	c := next
	return &c, nil
}

func (m *Memory) SetPterodactylID(_ context.Context, username, id string) error {
	m.mu.Lock()
	var email string
	for _, u := range m.users {
		if u.Username == username {
			email = u.Email
		}
	}
	m.mu.Unlock()
	if email == "" {
		return store.ErrNotFound
	}
	_, err := m.mutate(email, func(u *models.User) error { u.PterodactylID = id; return nil })
	return err
}

func (m *Memory) SetPasswordHash(_ context.Context, email, hash string) error {
	_, err := m.mutate(email, func(u *models.User) error { u.PasswordHash = hash; return nil })
	return err
}

func (m *Memory) AddUsed(_ context.Context, email string, d models.Resources) (*models.User, error) {
	return m.mutate(email, func(u *models.User) error {
		next := models.Resources{RAM: u.Used.RAM + d.RAM, CPU: u.Used.CPU + d.CPU, Disk: u.Used.Disk + d.Disk}
		if next.RAM < 0 || next.CPU < 0 || next.Disk < 0 {
			return store.ErrInvalidValue
		}
		u.Used = next
		return nil
	})
}

func (m *Memory) SetUsed(_ context.Context, email string, used models.Resources) (*models.User, error) {
	return m.mutate(email, func(u *models.User) error {
		if used.RAM < 0 || used.CPU < 0 || used.Disk < 0 {
			return store.ErrInvalidValue
		}
		u.Used = used
		return nil
	})
}

func (m *Memory) SetCoins(_ context.Context, email string, coins int) error {
	_, err := m.mutate(email, func(u *models.User) error { u.Coins = coins; return nil })
	return err
}

func (m *Memory) AddCoins(_ context.Context, email string, delta int) (int, error) {
	u, err := m.mutate(email, func(u *models.User) error { u.Coins += delta; return nil })
	if err != nil {
		return 0, err
	}
	return u.Coins, nil
}

func (m *Memory) SetExtra(_ context.Context, email string, res store.Resource, value int) error {
	_, err := m.mutate(email, func(u *models.User) error {
		switch res {
		case store.ResourceRAM:
			u.Extra.RAM = value
		case store.ResourceCPU:
			u.Extra.CPU = value
		case store.ResourceDisk:
			u.Extra.Disk = value
		default:
			return fmt.Errorf("set extra: unknown resource %q", res)
		}
		return nil
	})
	return err
}

func (m *Memory) ExistsByRegisteredIP(_ context.Context, ip string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	for _, u := range m.users {
		if u.RegisteredIP == ip {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ExistsByLastLoginIP(_ context.Context, ip string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	for _, u := range m.users {
		if u.LastLoginIP == ip {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) SetLastLoginIP(_ context.Context, email, ip string) error {
	_, err := m.mutate(email, func(u *models.User) error { u.LastLoginIP = ip; return nil })
	return err
}

// --- Sessions ---

func (m *Memory) CreateSession(_ context.Context, sess *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.sessions[sess.ID]; ok {
		return store.ErrDuplicateKey
	}
	c := *sess
	m.sessions[sess.ID] = &c
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	sess, ok := m.sessions[id]
	if !ok || !sess.ExpiresAt.After(time.Now()) {
		return nil, store.ErrNotFound
	}
	c := *sess
	return &c, nil
}

func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *Memory) DeleteExpiredSessions(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, sess := range m.sessions {
		if !sess.ExpiresAt.After(time.Now()) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// --- Catalog ---

func (m *Memory) CreatePackage(_ context.Context, p *models.Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.packages[p.Name]; ok {
		return &store.DuplicateError{Field: "name"}
	}
	c := *p
	c.Default = false
	p.Default = false
	m.packages[p.Name] = &c
	return nil
}

func (m *Memory) GetPackage(_ context.Context, name string) (*models.Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.packages[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *Memory) GetDefaultPackage(context.Context) (*models.Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.packages {
		if p.Default {
			c := *p
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Memory) ListPackages(context.Context) ([]*models.Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := []*models.Package{}
	for _, p := range m.packages {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Memory) CreateEgg(_ context.Context, e *models.Egg) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.eggs[e.Name]; ok {
		return &store.DuplicateError{Field: "name"}
	}
	c := *e
	if c.Environment == nil {
		c.Environment = map[string]string{}
	}
	m.eggs[e.Name] = &c
	return nil
}

func (m *Memory) GetEgg(_ context.Context, name string) (*models.Egg, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.eggs[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *e
	return &c, nil
}

func (m *Memory) ListEggs(context.Context) ([]*models.Egg, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Egg{}
	for _, e := range m.eggs {
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) CreateLocation(_ context.Context, l *models.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locations[l.ID]; ok {
		return &store.DuplicateError{Field: "id"}
	}
	c := *l
	m.locations[l.ID] = &c
	return nil
}

func (m *Memory) GetLocation(_ context.Context, name string) (*models.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.Location
	for _, l := range m.locations {
		if l.Name == name && (found == nil || l.ID < found.ID) {
			found = l
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	c := *found
	return &c, nil
}

func (m *Memory) GetLocationByID(_ context.Context, id int) (*models.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *l
	return &c, nil
}

func (m *Memory) ListLocations(context.Context) ([]*models.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Location{}
	for _, l := range m.locations {
		c := *l
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetLocationEnabled(_ context.Context, id int, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locations[id]
	if !ok {
		return store.ErrNotFound
	}
	l.Enabled = enabled
	return nil
}

// --- Renewals ---

func (m *Memory) CreateRenewal(_ context.Context, r *models.Renewal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.renewals[r.ServerID]; ok {
		return &store.DuplicateError{Field: "server_id"}
	}
	c := *r
	m.renewals[r.ServerID] = &c
	return nil
}

func (m *Memory) GetRenewal(_ context.Context, serverID int) (*models.Renewal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.renewals[serverID]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (m *Memory) ListRenewals(context.Context) ([]*models.Renewal, error) {
	return m.listRenewals(func(*models.Renewal) bool { return true }), nil
}

func (m *Memory) ListRenewalsByEmail(_ context.Context, email string) ([]*models.Renewal, error) {
	return m.listRenewals(func(r *models.Renewal) bool { return r.Email == email }), nil
}

func (m *Memory) listRenewals(keep func(*models.Renewal) bool) []*models.Renewal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Renewal{}
	for _, r := range m.renewals {
		if keep(r) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RenewBy < out[j].RenewBy })
	return out
}

func (m *Memory) SetRenewBy(_ context.Context, serverID int, renewBy int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.renewals[serverID]
	if !ok {
		return store.ErrNotFound
	}
	r.RenewBy = renewBy
	return nil
}

func (m *Memory) DeleteRenewal(_ context.Context, serverID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.renewals[serverID]; !ok {
		return store.ErrNotFound
	}
	delete(m.renewals, serverID)
	return nil
}

func (m *Memory) ChargeRenewal(_ context.Context, serverID int, cost int, extendMillis int64) (*models.Renewal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.renewals[serverID]
	if !ok {
		return nil, store.ErrNotFound
	}
	u, ok := m.users[r.Email]
	if !ok || u.Coins < cost {
		return nil, store.ErrInsufficientBalance
	}
	u.Coins -= cost
	base := r.RenewBy
	if now := time.Now().UnixMilli(); now > base {
		base = now
	}
	r.RenewBy = base + extendMillis
	c := *r
	return &c, nil
}

// --- API Keys ---

func (m *Memory) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.keys[key.ID]; ok {
		return store.ErrDuplicateKey
	}
	c := *key
	m.keys[key.ID] = &c
	return nil
}

func (m *Memory) GetAPIKeysByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := []*models.APIKey{}
	for _, k := range m.keys {
		if k.KeyPrefix == prefix {
			c := *k
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *Memory) ListAPIKeys(context.Context) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.APIKey{}
	for _, k := range m.keys {
		c := *k
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) DeleteAPIKey(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.keys, id)
	return nil
}

func (m *Memory) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
	}
	return nil
}

var _ store.Store = (*Memory)(nil)
