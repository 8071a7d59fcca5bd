package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "wisefido_health", cfg.Database.Database)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "mqtt://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "wisefido-health", cfg.MQTT.ClientID)

	assert.Equal(t, "America/Toronto", cfg.Health.Timezone)
	assert.Equal(t, "watch/+/datalogging", cfg.Health.DataTopic)
	assert.Equal(t, "watch/%s/commands", cfg.Health.CommandTopicFmt)
	assert.Equal(t, "health:updated", cfg.Health.UpdatedChannel)
	assert.Equal(t, 10*time.Second, cfg.Health.SyncTimeout)

	assert.Equal(t, "https://chunks.memfault.com", cfg.Memfault.ChunksURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("HEALTH_TIMEZONE", "Asia/Shanghai")
	t.Setenv("HEALTH_SYNC_TIMEOUT_SEC", "30")
	t.Setenv("MEMFAULT_PROJECT_KEY", "pk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "Asia/Shanghai", cfg.Health.Timezone)
	assert.Equal(t, 30*time.Second, cfg.Health.SyncTimeout)
	assert.Equal(t, "pk-test", cfg.Memfault.ProjectKey)
}

func TestLoad_InvalidSyncTimeoutKeepsDefault(t *testing.T) {
	t.Setenv("HEALTH_SYNC_TIMEOUT_SEC", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Health.SyncTimeout)
}

func TestLocation_ParsesConfiguredTimezone(t *testing.T) {
	t.Setenv("HEALTH_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLocation_RejectsInvalidTimezone(t *testing.T) {
	t.Setenv("HEALTH_TIMEZONE", "Mars/Olympus")

	cfg, err := Load()
	require.NoError(t, err)

	_, err = cfg.Location()
	assert.Error(t, err)
}
