// Package account implements user account operations on top of the store:
// credential handling, usage and coin counters, and alt-account checks.
package account

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/dashactyl/internal/events"
	"github.com/kiranshivaraju/dashactyl/internal/store"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

const fallbackPackage = "default"

// Store is the persistence surface the service needs.
type Store interface {
	store.UserStore
	GetSettings(ctx context.Context) (*models.Settings, error)
}

// Service provides account operations.
type Service struct {
	store      Store
	publisher  events.Publisher
	bcryptCost int
	now        func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost sets the bcrypt work factor for new hashes.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithPublisher sets where userUpdate events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(st Store, opts ...Option) *Service {
	s := &Service{
		store:      st,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUser registers a new account. Usage, extra resources and coins start
// at zero; the package comes from settings.
func (s *Service) CreateUser(ctx context.Context, username, email, password, ip string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := s.now().UTC()
	u := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Package:      s.defaultPackage(ctx),
		RegisteredIP: ip,
		LastLoginIP:  ip,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(ctx, u); err != nil {
		var dup *store.DuplicateError
		if errors.As(err, &dup) {
			return nil, conflictFor(dup.Field)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

func (s *Service) defaultPackage(ctx context.Context) string {
	settings, err := s.store.GetSettings(ctx)
	if err != nil || strings.TrimSpace(settings.DefaultPackage) == "" {
		return fallbackPackage
	}
	return settings.DefaultPackage
}

// GetUser returns the account with the given email.
func (s *Service) GetUser(ctx context.Context, email string) (*models.User, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// GetUserByUsername returns the account with the given username.
func (s *Service) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// SetExternalID records the Pterodactyl user id for username.
func (s *Service) SetExternalID(ctx context.Context, username, id string) error {
	return notFound(s.store.SetPterodactylID(ctx, username, id))
}

// VerifyPassword checks password against the stored hash. An unknown email
// and a wrong password both yield ErrInvalidCredential.
func (s *Service) VerifyPassword(ctx context.Context, email, password string) error {
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		// Same work as a real comparison.
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return ErrInvalidCredential
	}
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return ErrInvalidCredential
	}
	return nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dashactyl-missing-user"), s.bcryptCost)
	})
	return s.dummyHash
}

// MatchPasswords compares stored with the user's hash string directly.
func (s *Service) MatchPasswords(ctx context.Context, email, stored string) error {
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidCredential
	}
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(u.PasswordHash), []byte(stored)) != 1 {
		return ErrInvalidCredential
	}
	return nil
}

// UpdatePassword replaces the password without checking the current one.
func (s *Service) UpdatePassword(ctx context.Context, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	return notFound(s.store.SetPasswordHash(ctx, email, string(hash)))
}

// AddUsed increments the usage counters.
func (s *Service) AddUsed(ctx context.Context, email string, cpu, ram, disk int) (*models.User, error) {
	u, err := s.store.AddUsed(ctx, email, models.Resources{CPU: cpu, RAM: ram, Disk: disk})
	if err != nil {
		return nil, notFound(err)
	}
	s.notify(ctx, email)
	return u, nil
}

// SetUsed overwrites the usage counters.
func (s *Service) SetUsed(ctx context.Context, email string, cpu, ram, disk int) (*models.User, error) {
	if cpu < 0 || ram < 0 || disk < 0 {
		return nil, store.ErrInvalidValue
	}
	u, err := s.store.SetUsed(ctx, email, models.Resources{CPU: cpu, RAM: ram, Disk: disk})
	if err != nil {
		return nil, notFound(err)
	}
	s.notify(ctx, email)
	return u, nil
}

// UpdateCoins sets the coin balance.
func (s *Service) UpdateCoins(ctx context.Context, email string, coins int) error {
	if err := s.store.SetCoins(ctx, email, coins); err != nil {
		return notFound(err)
	}
	s.notify(ctx, email)
	return nil
}

// AddCoins adjusts the balance by delta and returns the new balance.
func (s *Service) AddCoins(ctx context.Context, email string, delta int) (int, error) {
	coins, err := s.store.AddCoins(ctx, email, delta)
	if err != nil {
		return 0, notFound(err)
	}
	s.notify(ctx, email)
	return coins, nil
}

func (s *Service) UpdateExtraRAM(ctx context.Context, email string, ram int) error {
	return s.setExtra(ctx, email, store.ResourceRAM, ram)
}

func (s *Service) UpdateExtraCPU(ctx context.Context, email string, cpu int) error {
	return s.setExtra(ctx, email, store.ResourceCPU, cpu)
}

func (s *Service) UpdateExtraDisk(ctx context.Context, email string, disk int) error {
	return s.setExtra(ctx, email, store.ResourceDisk, disk)
}

func (s *Service) setExtra(ctx context.Context, email string, res store.Resource, value int) error {
	if err := s.store.SetExtra(ctx, email, res, value); err != nil {
		return notFound(err)
	}
	s.notify(ctx, email)
	return nil
}

// CheckAltsByRegisteredIP reports whether any account registered from ip.
func (s *Service) CheckAltsByRegisteredIP(ctx context.Context, ip string) (bool, error) {
	return s.store.ExistsByRegisteredIP(ctx, ip)
}

// CheckAltsByLastLoginIP reports whether any account last logged in from ip.
func (s *Service) CheckAltsByLastLoginIP(ctx context.Context, ip string) (bool, error) {
	return s.store.ExistsByLastLoginIP(ctx, ip)
}

func (s *Service) UpdateLastLoginIP(ctx context.Context, email, ip string) error {
	return notFound(s.store.SetLastLoginIP(ctx, email, ip))
}

func (s *Service) notify(ctx context.Context, email string) {
	if s.publisher != nil {
		s.publisher.Publish(ctx, events.UserUpdated{Email: email})
	}
}
