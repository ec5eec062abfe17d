// Package billing manages per-server renewal schedules.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/dashactyl/internal/events"
	"github.com/kiranshivaraju/dashactyl/internal/store"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

var (
	ErrUserNotFound      = fmt.Errorf("user %w", store.ErrNotFound)
	ErrPackageNotFound   = fmt.Errorf("package %w", store.ErrNotFound)
	ErrRenewalNotFound   = fmt.Errorf("renewal %w", store.ErrNotFound)
	ErrInsufficientCoins = errors.New("not enough coins to renew")
	ErrRenewalDisabled   = errors.New("renewals are disabled for this server")
)

// Store is the persistence surface the service needs.
type Store interface {
	store.RenewalStore
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetPackage(ctx context.Context, name string) (*models.Package, error)
}

// Service provides renewal operations.
type Service struct {
	store     Store
	publisher events.Publisher
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for renew_by.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets where userUpdate events for coin charges go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService creates a Service.
func NewService(st Store, opts ...Option) *Service {
	s := &Service{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddRenewal schedules serverID for the user's package. The cost and the
// enabled flag are copied from the package at this moment.
func (s *Service) AddRenewal(ctx context.Context, email string, serverID int) (*models.Renewal, error) {
	u, pkg, err := s.ownerPackage(ctx, email)
	if err != nil {
		return nil, err
	}

	r := &models.Renewal{
		ServerID:       serverID,
		Email:          u.Email,
		RenewBy:        s.now().UnixMilli() + pkg.RenewalTime,
		RenewCost:      pkg.RenewalPrice,
		RenewalEnabled: pkg.RenewalEnabled,
	}
	if err := s.store.CreateRenewal(ctx, r); err != nil {
		return nil, fmt.Errorf("creating renewal: %w", err)
	}
	return r, nil
}

func (s *Service) ownerPackage(ctx context.Context, email string) (*models.User, *models.Package, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrUserNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading user: %w", err)
	}

	pkg, err := s.store.GetPackage(ctx, u.Package)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrPackageNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading package: %w", err)
	}
	return u, pkg, nil
}

func (s *Service) RemoveRenewal(ctx context.Context, serverID int) error {
	return renewalNotFound(s.store.DeleteRenewal(ctx, serverID))
}

func (s *Service) GetRenewal(ctx context.Context, serverID int) (*models.Renewal, error) {
	r, err := s.store.GetRenewal(ctx, serverID)
	if err != nil {
		return nil, renewalNotFound(err)
	}
	return r, nil
}

func (s *Service) ListRenewals(ctx context.Context) ([]*models.Renewal, error) {
	return s.store.ListRenewals(ctx)
}

func (s *Service) ListUserRenewals(ctx context.Context, email string) ([]*models.Renewal, error) {
	return s.store.ListRenewalsByEmail(ctx, email)
}

// UpdateRenewal sets renew_by (epoch milliseconds) directly.
func (s *Service) UpdateRenewal(ctx context.Context, serverID int, renewBy int64) error {
	return renewalNotFound(s.store.SetRenewBy(ctx, serverID, renewBy))
}

// Renew charges the snapshotted renewal cost and extends renew_by by the
// owner's current package renewal time. Renewals snapshotted with renewals
// disabled are never charged.
func (s *Service) Renew(ctx context.Context, serverID int) (*models.Renewal, error) {
	r, err := s.store.GetRenewal(ctx, serverID)
	if err != nil {
		return nil, renewalNotFound(err)
	}
	if !r.RenewalEnabled {
		return nil, ErrRenewalDisabled
	}
	_, pkg, err := s.ownerPackage(ctx, r.Email)
	if err != nil {
		return nil, err
	}

	renewed, err := s.store.ChargeRenewal(ctx, serverID, r.RenewCost, pkg.RenewalTime)
	switch {
	case errors.Is(err, store.ErrInsufficientBalance):
		return nil, ErrInsufficientCoins
	case err != nil:
		return nil, renewalNotFound(err)
	}

	if s.publisher != nil {
		s.publisher.Publish(ctx, events.UserUpdated{Email: r.Email})
	}
	return renewed, nil
}

func renewalNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrRenewalNotFound
	}
	return err
}
