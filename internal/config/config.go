// Package config reads client settings from the environment, with an
// optional .env file in the working directory.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/lifecycle"
	"github.com/ovaphlow/pitchfork/client-core-go/pkg/database"
	"github.com/ovaphlow/pitchfork/client-core-go/pkg/utilities"
)

// Store backends accepted by SESSION_STORE.
const (
	StoreFile   = "file"
	StoreSQL    = "sql"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	APIBaseURL string        `env:"API_BASE_URL" envDefault:"http://localhost:8431/api"`
	APITimeout time.Duration `env:"API_TIMEOUT" envDefault:"10s"`

	SessionStore string `env:"SESSION_STORE" envDefault:"file"`
	SessionFile  string `env:"SESSION_FILE" envDefault:".pitchfork/session.json"`
	SessionSlot  string `env:"SESSION_SLOT" envDefault:"default"`

	Database database.Config     `envPrefix:"DATABASE_"`
	Redis    RedisConfig         `envPrefix:"REDIS_"`
	Log      utilities.LogConfig `envPrefix:"LOG_"`

	TeamEmail          string        `env:"TEAM_EMAIL" envDefault:"team@pitchfork.local"`
	ReviewWindow       time.Duration `env:"REVIEW_WINDOW" envDefault:"72h"`
	LogoutCountdown    time.Duration `env:"LOGOUT_COUNTDOWN" envDefault:"5s"`
	SubmitTimeout      time.Duration `env:"SUBMIT_TIMEOUT" envDefault:"30s"`
	StatusPollInterval time.Duration `env:"STATUS_POLL_INTERVAL" envDefault:"30s"`
	DeleteConfirmation string        `env:"DELETE_CONFIRMATION" envDefault:"SUPPRIMER"`
	DeliveryAttempts   uint          `env:"DELIVERY_ATTEMPTS" envDefault:"3"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// Load reads .env if present, then the environment.
func Load() (Config, error) {
	// best-effort: a missing .env is the normal case outside development
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.SessionStore {
	case StoreFile, StoreSQL, StoreRedis, StoreMemory:
	default:
		return Config{}, fmt.Errorf("unknown SESSION_STORE %q", cfg.SessionStore)
	}
	if cfg.DeleteConfirmation == "" {
		return Config{}, fmt.Errorf("DELETE_CONFIRMATION must not be empty")
	}
	return cfg, nil
}

// Lifecycle returns the workflow settings.
func (c Config) Lifecycle() lifecycle.Config {
	return lifecycle.Config{
		TeamEmail:        c.TeamEmail,
		ReviewWindow:     c.ReviewWindow,
		LogoutCountdown:  c.LogoutCountdown,
		SubmitTimeout:    c.SubmitTimeout,
		PollInterval:     c.StatusPollInterval,
		DeletePhrase:     c.DeleteConfirmation,
		DeliveryAttempts: c.DeliveryAttempts,
	}
}
