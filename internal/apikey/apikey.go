// Package apikey issues and verifies bearer keys for the external API.
package apikey

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/dashactyl/internal/store"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

const (
	// KeyPrefix starts every generated key.
	KeyPrefix = "Dashactyl"
	// RandomLength is the number of random characters after KeyPrefix.
	RandomLength = 32
	// LookupPrefixLen is how much of a key is stored in clear for lookup.
	LookupPrefixLen = len(KeyPrefix) + 8
	// Alphabet is the pool random characters are drawn from.
	Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_"
)

// ErrInvalidKey is returned when a presented key matches no stored key.
var ErrInvalidKey = errors.New("invalid api key")

// Generate returns a new random key.
func Generate() (string, error) {
	var b strings.Builder
	b.Grow(len(KeyPrefix) + RandomLength)
	b.WriteString(KeyPrefix)

	max := big.NewInt(int64(len(Alphabet)))
	for i := 0; i < RandomLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("reading random: %w", err)
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Service manages stored API keys.
type Service struct {
	store      store.APIKeyStore
	bcryptCost int
	logger     *slog.Logger
}

// NewService creates a Service. bcryptCost <= 0 selects bcrypt.DefaultCost.
func NewService(st store.APIKeyStore, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, bcryptCost: bcryptCost, logger: logger}
}

// Create stores a new key and returns it with the raw key. The raw key is
// not recoverable afterwards.
func (s *Service) Create(ctx context.Context, description string) (*models.APIKey, string, error) {
	raw, err := Generate()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), s.bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing key: %w", err)
	}

	key := &models.APIKey{
		ID:          uuid.New(),
		KeyHash:     string(hash),
		KeyPrefix:   raw[:LookupPrefixLen],
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("storing key: %w", err)
	}
	return key, raw, nil
}

func (s *Service) List(ctx context.Context) ([]*models.APIKey, error) {
	return s.store.ListAPIKeys(ctx)
}

// Get returns the stored key matching raw.
func (s *Service) Get(ctx context.Context, raw string) (*models.APIKey, error) {
	if len(raw) < LookupPrefixLen || !strings.HasPrefix(raw, KeyPrefix) {
		return nil, ErrInvalidKey
	}

	candidates, err := s.store.GetAPIKeysByPrefix(ctx, raw[:LookupPrefixLen])
	if err != nil {
		return nil, fmt.Errorf("looking up key: %w", err)
	}
	for _, key := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(raw)) == nil {
			return key, nil
		}
	}
	return nil, ErrInvalidKey
}

// Authenticate is Get followed by an asynchronous Touch.
func (s *Service) Authenticate(ctx context.Context, raw string) (*models.APIKey, error) {
	key, err := s.Get(ctx, raw)
	if err != nil {
		return nil, err
	}

	go func(id uuid.UUID) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Touch(ctx, id); err != nil {
			s.logger.Warn("failed to update api key last used", "key_id", id, "error", err)
		}
	}(key.ID)

	return key, nil
}

// Touch records that the key was just used.
func (s *Service) Touch(ctx context.Context, id uuid.UUID) error {
	return s.store.UpdateAPIKeyLastUsed(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteAPIKey(ctx, id)
}
