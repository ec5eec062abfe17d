package models

// Renewal is the billing schedule of one provisioned server.
// RenewBy is a unix timestamp in milliseconds; cost and enabled flag are
// snapshotted from the package when the renewal is created.
type Renewal struct {
	ServerID       int    `db:"server_id"       json:"server_id"`
	Email          string `db:"email"           json:"email"`
	RenewBy        int64  `db:"renew_by"        json:"renew_by"`
	RenewCost      int    `db:"renew_cost"      json:"renew_cost"`
	RenewalEnabled bool   `db:"renewal_enabled" json:"renewal_enabled"`
}
