// Copyright (c) 2025 Justin Cranford

// Package config loads ReAuth's runtime configuration from a TOML file
// named by REAUTH_CONFIG, overridable by REAUTH__<SECTION>__<KEY>
// environment variables (spec §6 "Environment and config").
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of fields the core consumes (spec §6).
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Outbox   OutboxConfig   `mapstructure:"outbox"`
}

// ServerConfig carries the address the HTTP API advertises itself at.
type ServerConfig struct {
	PublicURL      string   `mapstructure:"public_url"`
	BindAddr       string   `mapstructure:"bind_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AuthConfig carries realm-independent auth settings. Only Issuer is read
// by the server wiring; each Realm row carries its own TTL and lockout
// values, set when the realm is created (spec §3 Realm).
type AuthConfig struct {
	Issuer                    string        `mapstructure:"issuer"`
	AccessTokenTTL            time.Duration `mapstructure:"access_token_ttl_secs"`
	RefreshTokenTTL           time.Duration `mapstructure:"refresh_token_ttl_secs"`
	PKCERequiredPublicClients bool          `mapstructure:"pkce_required_public_clients"`
	LockoutThreshold          int           `mapstructure:"lockout_threshold"`
	LockoutDuration           time.Duration `mapstructure:"lockout_duration_secs"`
}

// DatabaseConfig names the single SQLite data source (spec §1 "single
// process serving SQLite").
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// OutboxConfig tunes the background dispatcher (spec §4.5).
type OutboxConfig struct {
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	WorkerID            string        `mapstructure:"worker_id"`
	ConsecutiveDisable  int           `mapstructure:"consecutive_failures_disable"`
}

// Load reads REAUTH_CONFIG (a TOML path) if set, applies
// REAUTH__<SECTION>__<KEY> environment overrides, and fills in defaults
// for anything left unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	setDefaults(v)
	bindEnvironmentVariables(v)

	if path := os.Getenv("REAUTH_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// bindEnvironmentVariables wires each key to its explicit
// REAUTH__<SECTION>__<KEY> name (spec §6); viper's single-underscore
// SetEnvPrefix joiner doesn't produce the double-underscore form the
// spec requires, so each key is bound by hand as the pack's other
// viper-based config loaders do.
func bindEnvironmentVariables(v *viper.Viper) {
	_ = v.BindEnv("server.public_url", "REAUTH__SERVER__PUBLIC_URL")
	_ = v.BindEnv("server.bind_addr", "REAUTH__SERVER__BIND_ADDR")
	_ = v.BindEnv("server.allowed_origins", "REAUTH__SERVER__ALLOWED_ORIGINS")

	_ = v.BindEnv("auth.issuer", "REAUTH__AUTH__ISSUER")
	_ = v.BindEnv("auth.access_token_ttl_secs", "REAUTH__AUTH__ACCESS_TOKEN_TTL_SECS")
	_ = v.BindEnv("auth.refresh_token_ttl_secs", "REAUTH__AUTH__REFRESH_TOKEN_TTL_SECS")
	_ = v.BindEnv("auth.pkce_required_public_clients", "REAUTH__AUTH__PKCE_REQUIRED_PUBLIC_CLIENTS")
	_ = v.BindEnv("auth.lockout_threshold", "REAUTH__AUTH__LOCKOUT_THRESHOLD")
	_ = v.BindEnv("auth.lockout_duration_secs", "REAUTH__AUTH__LOCKOUT_DURATION_SECS")

	_ = v.BindEnv("database.url", "REAUTH__DATABASE__URL")

	_ = v.BindEnv("outbox.poll_interval", "REAUTH__OUTBOX__POLL_INTERVAL")
	_ = v.BindEnv("outbox.worker_id", "REAUTH__OUTBOX__WORKER_ID")
	_ = v.BindEnv("outbox.consecutive_failures_disable", "REAUTH__OUTBOX__CONSECUTIVE_FAILURES_DISABLE")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.bind_addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("auth.issuer", "http://localhost:8080")
	v.SetDefault("auth.access_token_ttl_secs", 300*time.Second)
	v.SetDefault("auth.refresh_token_ttl_secs", 2592000*time.Second)
	v.SetDefault("auth.pkce_required_public_clients", true)
	v.SetDefault("auth.lockout_threshold", 5)
	v.SetDefault("auth.lockout_duration_secs", 900*time.Second)

	v.SetDefault("database.url", "file:reauth.db?cache=shared&_pragma=foreign_keys(1)")

	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.worker_id", "reauth-outbox-0")
	v.SetDefault("outbox.consecutive_failures_disable", 10)
}
