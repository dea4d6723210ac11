package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	clearLicenseEnv(t)
	// Point the file lookup somewhere that does not exist
	t.Setenv("LICENSE_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "mongo", cfg.Store.Driver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Store.URI)
	assert.Equal(t, "licenses", cfg.Store.Collection)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Security.RateLimit.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearLicenseEnv(t)
	t.Setenv("LICENSE_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("LICENSE_SERVER_PORT", "9090")
	t.Setenv("LICENSE_STORE_DRIVER", "memory")
	t.Setenv("LICENSE_LOGGING_LEVEL", "debug")
	t.Setenv("LICENSE_SECURITY_RATE_LIMIT_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Security.RateLimit.Enabled)
}

func TestLoadFromFileWithEnvPrecedence(t *testing.T) {
	clearLicenseEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9191
store:
  driver: memory
logging:
  level: warn
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	t.Setenv("LICENSE_CONFIG_FILE", path)
	t.Setenv("LICENSE_LOGGING_LEVEL", "error")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	// env wins over file
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "bad driver",
			env:  map[string]string{"LICENSE_STORE_DRIVER": "cassandra"},
		},
		{
			name: "bad port",
			env:  map[string]string{"LICENSE_SERVER_PORT": "70000"},
		},
		{
			name: "bad log level",
			env:  map[string]string{"LICENSE_LOGGING_LEVEL": "verbose"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearLicenseEnv(t)
			t.Setenv("LICENSE_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

// clearLicenseEnv unsets LICENSE_ variables that would leak between tests
func clearLicenseEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LICENSE_CONFIG_FILE",
		"LICENSE_SERVER_PORT",
		"LICENSE_STORE_DRIVER",
		"LICENSE_STORE_URI",
		"LICENSE_LOGGING_LEVEL",
		"LICENSE_SECURITY_RATE_LIMIT_ENABLED",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}
