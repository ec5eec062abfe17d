package models

// Package is a named resource/pricing tier. RenewalTime is in milliseconds.
type Package struct {
	Name           string `db:"name"            json:"name"`
	RAM            int    `db:"ram"             json:"ram"`
	CPU            int    `db:"cpu"             json:"cpu"`
	Disk           int    `db:"disk"            json:"disk"`
	Price          int    `db:"price"           json:"price"`
	RenewalEnabled bool   `db:"renewal_enabled" json:"renewal_enabled"`
	RenewalTime    int64  `db:"renewal_time"    json:"renewal_time"`
	RenewalPrice   int    `db:"renewal_price"   json:"renewal_price"`
	Default        bool   `db:"is_default"      json:"default"`
}
