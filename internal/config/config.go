package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Dashactyl server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Reputation ReputationConfig
}

type ServerConfig struct {
	Port       int
	Env        string
	TrustProxy bool
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	SessionTTL   time.Duration
	BcryptCost   int
	RateLimit    int
	BlockProxies bool
	AllowAlts    bool
	// BootstrapKey, when set, is accepted as an API key so the first real key can be created.
	BootstrapKey string
}

type ReputationConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:       envInt("DASHACTYL_PORT", 8080),
			Env:        envString("DASHACTYL_ENV", "development"),
			TrustProxy: envBool("DASHACTYL_TRUST_PROXY", false),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			SessionTTL:   envDuration("DASHACTYL_SESSION_TTL", 7*24*time.Hour),
			BcryptCost:   envInt("DASHACTYL_BCRYPT_COST", 10),
			RateLimit:    envInt("DASHACTYL_RATE_LIMIT", 60),
			BlockProxies: envBool("DASHACTYL_BLOCK_PROXIES", true),
			AllowAlts:    envBool("DASHACTYL_ALLOW_ALTS", false),
			BootstrapKey: os.Getenv("DASHACTYL_BOOTSTRAP_KEY"),
		},
		Reputation: ReputationConfig{
			BaseURL:  envString("REPUTATION_BASE_URL", "https://db-ip.com"),
			Timeout:  envDuration("REPUTATION_TIMEOUT", 10*time.Second),
			CacheTTL: envDuration("REPUTATION_CACHE_TTL", 24*time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("DASHACTYL_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	// bcrypt.MinCost .. bcrypt.MaxCost
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("DASHACTYL_BCRYPT_COST must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}

	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("DASHACTYL_SESSION_TTL must be positive")
	}

	if !strings.HasPrefix(c.Reputation.BaseURL, "http://") && !strings.HasPrefix(c.Reputation.BaseURL, "https://") {
		return fmt.Errorf("REPUTATION_BASE_URL must start with http:// or https://, got %q", c.Reputation.BaseURL)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
