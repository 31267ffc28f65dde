// Package config materializes viper-backed settings into a Config struct that
// the rest of the service receives by injection. Secrets (admin password,
// external API key) are only ever read from configuration, never from source.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreFlat     = "flat"
	StorePostgres = "postgres"
)

// Config holds runtime settings for the Lettermill server.
type Config struct {
	// Addr is the HTTP bind address, e.g. ":8080".
	Addr string

	// StoreBackend selects the persistence layer: "flat" (JSON files) or
	// "postgres".
	StoreBackend string
	// DataDir holds users.json / messages.json for the flat backend.
	DataDir string
	// DatabaseURL is the pgx connection string for the postgres backend.
	DatabaseURL string

	// AdminEmail / AdminPassword seed the privileged account on startup.
	AdminEmail    string
	AdminPassword string

	// ExternalAPIKey is the shared secret expected in X-API-Key on the
	// external relay endpoints.
	ExternalAPIKey string

	// RelayURL is the base URL of the outbound email-relay API. Empty
	// disables outbound delivery (messages are still stored locally).
	RelayURL     string
	RelayTimeout time.Duration

	// InboundFeedURL is the base URL of the inbound mail feed polled in the
	// background. Empty disables the poller.
	InboundFeedURL string
	PollInterval   time.Duration
}

// Load builds a Config from the current viper state and validates the
// settings that have no usable default.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:           viper.GetString("server.addr"),
		StoreBackend:   viper.GetString("store.backend"),
		DataDir:        viper.GetString("store.data_dir"),
		DatabaseURL:    viper.GetString("database.url"),
		AdminEmail:     viper.GetString("admin.email"),
		AdminPassword:  viper.GetString("admin.password"),
		ExternalAPIKey: viper.GetString("external.api_key"),
		RelayURL:       viper.GetString("relay.api_url"),
		RelayTimeout:   viper.GetDuration("relay.timeout"),
		InboundFeedURL: viper.GetString("inbound.feed_url"),
		PollInterval:   viper.GetDuration("inbound.poll_interval"),
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = StoreFlat
	}
	if cfg.StoreBackend != StoreFlat && cfg.StoreBackend != StorePostgres {
		return nil, fmt.Errorf("unknown store.backend %q", cfg.StoreBackend)
	}
	if cfg.StoreBackend == StorePostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database.url not configured")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.AdminEmail == "" {
		return nil, fmt.Errorf("admin.email not configured")
	}
	if cfg.AdminPassword == "" {
		return nil, fmt.Errorf("admin.password not configured")
	}
	if cfg.ExternalAPIKey == "" {
		return nil, fmt.Errorf("external.api_key not configured")
	}
	if cfg.RelayTimeout <= 0 {
		cfg.RelayTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}

	return cfg, nil
}
