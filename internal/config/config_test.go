package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("admin.email", "admin@lettermill.test")
	viper.Set("admin.password", "pw")
	viper.Set("external.api_key", "key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StoreFlat, cfg.StoreBackend)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.RelayTimeout)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
}

func TestLoadMissingSecrets(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin.email")
}

func TestLoadUnknownBackend(t *testing.T) {
	setRequired(t)
	viper.Set("store.backend", "mongo")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadPostgresRequiresURL(t *testing.T) {
	setRequired(t)
	viper.Set("store.backend", StorePostgres)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")

	viper.Set("database.url", "postgres://localhost:5432/lettermill")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.StoreBackend)
}
