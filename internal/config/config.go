// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Session backends.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Config is the full process configuration.
type Config struct {
	Host string `env:"HOST" envDefault:"127.0.0.1"`
	Port int    `env:"PORT" envDefault:"8080"`
	// BaseURL is used to build OAuth redirect URLs; derived from the request when empty.
	BaseURL string `env:"BASE_URL"`

	Log      LogConfig
	Database DatabaseConfig
	Session  SessionConfig

	Google    ProviderConfig `envPrefix:"GOOGLE_"`
	Microsoft ProviderConfig `envPrefix:"MICROSOFT_"`
	Reddit    ProviderConfig `envPrefix:"REDDIT_"`
	Facebook  ProviderConfig `envPrefix:"FACEBOOK_"`

	// RedditUserAgent is sent on every Reddit request; defaults to the build's user agent.
	RedditUserAgent string `env:"REDDIT_USER_AGENT"`
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Env   string `env:"LOG_ENV" envDefault:"dev"`
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// DatabaseConfig selects the database driver and DSN.
type DatabaseConfig struct {
	Driver  string `env:"DB_DRIVER" envDefault:"sqlite"`
	DSN     string `env:"DB_DSN" envDefault:"interactor.db"`
	Verbose bool   `env:"DB_VERBOSE" envDefault:"false"`
}

// SessionConfig selects the session backend.
type SessionConfig struct {
	Backend    string        `env:"SESSION_BACKEND" envDefault:"memory"`
	CookieName string        `env:"SESSION_COOKIE" envDefault:"interactor_session"`
	TTL        time.Duration `env:"SESSION_TTL" envDefault:"336h"`
	RedisAddr  string        `env:"SESSION_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisDB    int           `env:"SESSION_REDIS_DB" envDefault:"0"`
	Secure     bool          `env:"SESSION_COOKIE_SECURE" envDefault:"false"`
}

// ProviderConfig is the OAuth client registered with a vendor.
type ProviderConfig struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

// Configured reports whether the client credentials are present.
func (p ProviderConfig) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// ErrInvalidSessionBackend is returned for an unknown SESSION_BACKEND.
var ErrInvalidSessionBackend = errors.New("invalid session backend")

// Load reads an optional .env file and parses the environment.
func Load() (Config, error) {
	// the .env file is optional
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Session.Backend {
	case SessionMemory, SessionRedis:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSessionBackend, c.Session.Backend)
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
