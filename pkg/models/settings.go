// Package models contains shared data models used across the Dashactyl codebase.
package models

// Settings is the singleton dashboard configuration record (id = 1).
type Settings struct {
	ID             int    `db:"id"              json:"id"`
	Name           string `db:"name"            json:"name"`
	HostName       string `db:"host_name"       json:"host_name"`
	ApplicationURL string `db:"application_url" json:"application_url"`
	PterodactylURL string `db:"pterodactyl_url" json:"pterodactyl_url"`
	PterodactylKey string `db:"pterodactyl_key" json:"pterodactyl_key"`
	DiscordInvite  string `db:"discord_invite"  json:"discord_invite"`
	DiscordID      string `db:"discord_id"      json:"discord_id"`
	DiscordSecret  string `db:"discord_secret"  json:"discord_secret"`
	DiscordToken   string `db:"discord_token"   json:"discord_token"`
	DiscordWebhook string `db:"discord_webhook" json:"discord_webhook"`
	DiscordGuild   string `db:"discord_guild"   json:"discord_guild"`
	RegisteredRole string `db:"registered_role" json:"registered_role"`
	DefaultPackage string `db:"default_package" json:"default_package"`
	AFKInterval    int    `db:"afk_interval"    json:"afk_interval"`
	AFKCoins       int    `db:"afk_coins"       json:"afk_coins"`
	ArcioCode      string `db:"arcio_code"      json:"arcio_code"`
	RAMPrice       int    `db:"ram_price"       json:"ram_price"`
	CPUPrice       int    `db:"cpu_price"       json:"cpu_price"`
	DiskPrice      int    `db:"disk_price"      json:"disk_price"`
}

// SettingsUpdate is the set of settings an administrator may change.
// Name and DefaultPackage are not settable through it.
type SettingsUpdate struct {
	HostName       string `json:"host_name"`
	ApplicationURL string `json:"application_url"`
	PterodactylURL string `json:"pterodactyl_url"`
	PterodactylKey string `json:"pterodactyl_key"`
	DiscordInvite  string `json:"discord_invite"`
	DiscordID      string `json:"discord_id"`
	DiscordSecret  string `json:"discord_secret"`
	DiscordToken   string `json:"discord_token"`
	DiscordWebhook string `json:"discord_webhook"`
	DiscordGuild   string `json:"discord_guild"`
	RegisteredRole string `json:"registered_role"`
	AFKCoins       int    `json:"afk_coins"     validate:"gte=0,max=2147483647"`
	ArcioCode      string `json:"arcio_code"`
	AFKInterval    int    `json:"afk_interval"  validate:"gte=0,max=2147483647"`
	RAMPrice       int    `json:"ram_price"     validate:"gte=0,max=2147483647"`
	CPUPrice       int    `json:"cpu_price"     validate:"gte=0,max=2147483647"`
	DiskPrice      int    `json:"disk_price"    validate:"gte=0,max=2147483647"`
}
