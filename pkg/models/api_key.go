package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey represents a bearer key for external API access.
// Raw keys are shown once at creation; only the bcrypt hash is stored.
type APIKey struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	KeyHash     string     `db:"key_hash"     json:"-"`
	KeyPrefix   string     `db:"key_prefix"   json:"key_prefix"`
	Description string     `db:"description"  json:"description"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
}

// NeverUsed is what LastUsedLabel reports for a key that was never presented.
const NeverUsed = "—"

// LastUsedLabel returns the last-used time in RFC3339, or NeverUsed.
func (k *APIKey) LastUsedLabel() string {
	if k.LastUsedAt == nil {
		return NeverUsed
	}
	return k.LastUsedAt.UTC().Format(time.RFC3339)
}
