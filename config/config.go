// Package config loads carddavsyncd's runtime configuration from
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the top-level configuration for a carddavsyncd process. Struct
// tags are mapped via caarlos0/env: envPrefix applies to nested fields,
// env names a direct variable.
type Config struct {
	Account Account `envPrefix:"ACCOUNT_"`
	Store   Store   `envPrefix:"STORE_"`
	Server  Server  `envPrefix:"SERVER_"`
	Sync    Sync    `envPrefix:"SYNC_"`
}

// Account holds the CardDAV server location and credentials for a single
// synced account. Multi-account deployments run one process per account.
type Account struct {
	ID              string `env:"ID,required"`
	ServerURL       string `env:"SERVER_URL,required"`
	AddressBookPath string `env:"ADDRESS_BOOK_PATH"`
	Username        string `env:"USERNAME"`
	Password        string `env:"PASSWORD"`
	BearerToken     string `env:"BEARER_TOKEN"`
	IgnoreSSLErrors bool   `env:"IGNORE_SSL_ERRORS" envDefault:"false"`
}

// Store configures the persistent sync-state backend.
type Store struct {
	SQLitePath string `env:"SQLITE_PATH" envDefault:"carddavsync.db"`
}

// Server configures the debug/metrics HTTP surface.
type Server struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
}

// Sync configures the periodic sync schedule.
type Sync struct {
	CronSchedule string        `env:"CRON_SCHEDULE" envDefault:"*/15 * * * *"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
}

// Load parses a Config from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	return cfg, nil
}
