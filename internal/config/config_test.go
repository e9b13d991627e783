package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// setRequired populates every variable Load treats as mandatory so the
// fatal path in must() is never hit during tests.
func setRequired(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "retreats")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "7")
	t.Setenv("BCRYPT_COST", "10")
}

func TestLoadReadsEnvironment(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_PASS", "hunter2")

	cfg := Load()

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "hunter2", cfg.DBPass)
	assert.Equal(t, 15, cfg.AccessTTLMin)
	assert.Equal(t, 7, cfg.RefreshTTLDays)
	assert.Equal(t, 10, cfg.BcryptCost)
}

func TestNotifyCooldownDefaults(t *testing.T) {
	setRequired(t)

	cfg := Load()

	assert.Equal(t, 24*time.Hour, cfg.NotifyCooldown)
}

func TestNotifyCooldownParsed(t *testing.T) {
	setRequired(t)
	t.Setenv("NOTIFY_COOLDOWN", "90m")

	cfg := Load()

	assert.Equal(t, 90*time.Minute, cfg.NotifyCooldown)
}
