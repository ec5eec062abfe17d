package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidValue = errors.New("value violates a check constraint")
var ErrInsufficientBalance = errors.New("insufficient coin balance")

// DuplicateError reports which unique field an insert collided on.
// errors.Is(err, ErrDuplicateKey) holds for every DuplicateError.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateKey, e.Field)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateKey
}

// Resource names one of the three quota dimensions.
type Resource string

const (
	ResourceRAM  Resource = "ram"
	ResourceCPU  Resource = "cpu"
	ResourceDisk Resource = "disk"
)

type SettingsStore interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
	SetSettings(ctx context.Context, update models.SettingsUpdate) error
}

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	SetPterodactylID(ctx context.Context, username, id string) error
	SetPasswordHash(ctx context.Context, email, hash string) error
	AddUsed(ctx context.Context, email string, delta models.Resources) (*models.User, error)
	SetUsed(ctx context.Context, email string, used models.Resources) (*models.User, error)
	SetCoins(ctx context.Context, email string, coins int) error
	AddCoins(ctx context.Context, email string, delta int) (int, error)
	SetExtra(ctx context.Context, email string, res Resource, value int) error
	ExistsByRegisteredIP(ctx context.Context, ip string) (bool, error)
	ExistsByLastLoginIP(ctx context.Context, ip string) (bool, error)
	SetLastLoginIP(ctx context.Context, email, ip string) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, sess *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

type CatalogStore interface {
	CreatePackage(ctx context.Context, pkg *models.Package) error
	GetPackage(ctx context.Context, name string) (*models.Package, error)
	GetDefaultPackage(ctx context.Context) (*models.Package, error)
	ListPackages(ctx context.Context) ([]*models.Package, error)

	CreateEgg(ctx context.Context, egg *models.Egg) error
	GetEgg(ctx context.Context, name string) (*models.Egg, error)
	ListEggs(ctx context.Context) ([]*models.Egg, error)

	CreateLocation(ctx context.Context, loc *models.Location) error
	GetLocation(ctx context.Context, name string) (*models.Location, error)
	GetLocationByID(ctx context.Context, id int) (*models.Location, error)
	ListLocations(ctx context.Context) ([]*models.Location, error)
	SetLocationEnabled(ctx context.Context, id int, enabled bool) error
}

type RenewalStore interface {
	CreateRenewal(ctx context.Context, r *models.Renewal) error
	GetRenewal(ctx context.Context, serverID int) (*models.Renewal, error)
	ListRenewals(ctx context.Context) ([]*models.Renewal, error)
	ListRenewalsByEmail(ctx context.Context, email string) ([]*models.Renewal, error)
	SetRenewBy(ctx context.Context, serverID int, renewBy int64) error
	DeleteRenewal(ctx context.Context, serverID int) error
	// ChargeRenewal atomically debits cost coins from the owner and pushes renew_by
	// forward by extendMillis. Returns the updated renewal.
	ChargeRenewal(ctx context.Context, serverID int, cost int, extendMillis int64) (*models.Renewal, error)
}

type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	DeleteAPIKey(ctx context.Context, id uuid.UUID) error
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	SettingsStore
	UserStore
	SessionStore
	CatalogStore
	RenewalStore
	APIKeyStore
}
