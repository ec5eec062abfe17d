package models

// Egg is a deployable server template known to the Pterodactyl panel.
type Egg struct {
	Name        string            `db:"name"         json:"name"`
	EggID       int               `db:"egg_id"       json:"id"`
	DockerImage string            `db:"docker_image" json:"docker_image"`
	Startup     string            `db:"startup"      json:"startup"`
	Databases   int               `db:"databases"    json:"databases"`
	Backups     int               `db:"backups"      json:"backups"`
	Environment map[string]string `db:"environment"  json:"environment"`
}

// Location is a hosting region. ID is the panel's location id.
type Location struct {
	ID      int    `db:"id"      json:"id"`
	Name    string `db:"name"    json:"name"`
	Enabled bool   `db:"enabled" json:"enabled"`
}
