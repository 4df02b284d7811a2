package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("DNS_SERVER", "9.9.9.9")

	require.NoError(t, LoadConfig())

	assert.Equal(t, "5000", AppConfig.ServerPort)
	assert.Equal(t, 2, AppConfig.BatchWidth)
	assert.Equal(t, 5*time.Second, AppConfig.DNS.Timeout)
	assert.Equal(t, 10*time.Second, AppConfig.SMTP.Timeout)
	assert.Equal(t, "25", AppConfig.SMTP.Port)
	assert.False(t, AppConfig.SMTP.CatchAllProbe)
	assert.Equal(t, "9.9.9.9:53", AppConfig.DNS.Server)
	assert.Equal(t, "https://api.kickbox.com/v2/verify", AppConfig.Deliverability.APIURL)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("BATCH_WIDTH", "0")
	t.Setenv("SMTP_TIMEOUT", "3s")
	t.Setenv("SMTP_CATCHALL_PROBE", "true")
	t.Setenv("DELIVERABILITY_RPS", "0.5")
	t.Setenv("DNS_SERVER", "127.0.0.1:5353")

	require.NoError(t, LoadConfig())

	assert.Equal(t, 1, AppConfig.BatchWidth, "width is clamped to one")
	assert.Equal(t, 3*time.Second, AppConfig.SMTP.Timeout)
	assert.True(t, AppConfig.SMTP.CatchAllProbe)
	assert.InDelta(t, 0.5, AppConfig.Deliverability.RPS, 0.0001)
	assert.Equal(t, "127.0.0.1:5353", AppConfig.DNS.Server)
}

func TestLoadConfigRequiresSecretInProduction(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestGetEnvHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("X_INT", "ten")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DUR", "soon")

	assert.Equal(t, 7, getEnvAsInt("X_INT", 7))
	assert.True(t, getEnvAsBool("X_BOOL", true))
	assert.Equal(t, time.Minute, getEnvAsDuration("X_DUR", time.Minute))
}

func TestDefaultNameserver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nsearch lan\nnameserver 10.0.0.2\nnameserver 10.0.0.3\n"), 0o600))

	assert.Equal(t, "10.0.0.2:53", defaultNameserver(path))
	assert.Equal(t, "1.1.1.1:53", defaultNameserver(filepath.Join(dir, "missing")))
}

func TestMaskPassword(t *testing.T) {
	cfg := DBConfig{Host: "db", Port: "5432", User: "u", Password: "secret", Name: "n", SSLMode: "disable"}
	masked := maskPassword(cfg.DSN())
	assert.NotContains(t, masked, "secret")
	assert.Contains(t, masked, "password=*****")
}
