package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds client settings, populated from QUICKPIC_* environment
// variables with defaults suitable for local development.
type Config struct {
	ServerURL          string        `envconfig:"SERVER_URL" default:"http://localhost:8080"`
	DBPath             string        `envconfig:"DB_PATH" default:"quickpic.db"`
	KeyringService     string        `envconfig:"KEYRING_SERVICE" default:"quickpic"`
	SyncInterval       time.Duration `envconfig:"SYNC_INTERVAL" default:"60s"`
	MinRefreshInterval time.Duration `envconfig:"MIN_REFRESH_INTERVAL" default:"5s"`
	Retention          time.Duration `envconfig:"RETENTION" default:"24h"`
	SweepInterval      time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("quickpic", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
