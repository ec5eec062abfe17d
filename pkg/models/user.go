package models

import (
	"time"

	"github.com/google/uuid"
)

// Resources is a cpu/ram/disk triple used for usage counters and extra grants.
type Resources struct {
	RAM  int `json:"ram"`
	CPU  int `json:"cpu"`
	Disk int `json:"disk"`
}

// User is a dashboard account. PasswordHash is the bcrypt hash and never leaves the server.
type User struct {
	ID            uuid.UUID `db:"id"             json:"id"`
	Username      string    `db:"username"       json:"username"`
	Email         string    `db:"email"          json:"email"`
	PasswordHash  string    `db:"password"       json:"-"`
	PterodactylID string    `db:"pterodactyl_id" json:"pterodactyl_id"`
	Used          Resources `json:"used"`
	Package       string    `db:"package"        json:"package"`
	Extra         Resources `json:"extra"`
	Coins         int       `db:"coins"          json:"coins"`
	RegisteredIP  string    `db:"registered_ip"  json:"registered_ip"`
	LastLoginIP   string    `db:"lastlogin_ip"   json:"lastlogin_ip"`
	CreatedAt     time.Time `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"     json:"updated_at"`
}
