package models

import "time"

// Session is a dashboard login session identified by an opaque cookie token.
type Session struct {
	ID        string    `db:"id"         json:"-"`
	Email     string    `db:"email"      json:"email"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
