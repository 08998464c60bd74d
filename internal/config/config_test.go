package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	// Change to temp dir so no config.yaml or .env is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "daPulire", cfg.Pipeline.UploadDir)
	assert.Equal(t, "puliti", cfg.Pipeline.OutputDir)
	assert.Equal(t, "output_csv", cfg.Pipeline.CleanCSVDir)
	assert.Equal(t, "output_raw_csv", cfg.Pipeline.RawCSVDir)
	assert.Equal(t, "file_log.txt", cfg.Pipeline.RunLog)
	assert.Equal(t, "gi_comuni_cap.csv", cfg.Pipeline.ReferencePath)
	assert.Equal(t, "italy", cfg.Pipeline.Country)
	assert.False(t, cfg.Pipeline.RemoveInput)
	assert.Equal(t, 8, cfg.Reach.Concurrency)
	assert.Equal(t, 0, cfg.Reach.TimeoutMs)
	assert.InDelta(t, 0, cfg.Reach.RatePerSec, 0.001)
	assert.Equal(t, "http://nocodb:8080", cfg.NocoDB.BaseURL)
	assert.Equal(t, 3, cfg.NocoDB.MaxAttempts)
	assert.Equal(t, 0, cfg.NocoDB.BatchSize)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Server.QueueSize)
	assert.Equal(t, 1, cfg.Server.Workers)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
  format: console
pipeline:
  country: switzerland
  remove_input: true
reach:
  concurrency: 32
  rate_per_sec: 50
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "switzerland", cfg.Pipeline.Country)
	assert.True(t, cfg.Pipeline.RemoveInput)
	assert.Equal(t, 32, cfg.Reach.Concurrency)
	assert.InDelta(t, 50, cfg.Reach.RatePerSec, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, "puliti", cfg.Pipeline.OutputDir)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("GREZZI_STORE_DRIVER", "postgres")
	t.Setenv("GREZZI_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("GREZZI_SERVER_PORT", "3000")
	t.Setenv("GREZZI_PIPELINE_OUTPUT_DIR", "/data/puliti")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/data/puliti", cfg.Pipeline.OutputDir)
}

func TestLoadTokenFromLegacyEnv(t *testing.T) {
	chdirTemp(t)

	t.Setenv("TOKEN", "legacy-token")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", cfg.NocoDB.Token)

	t.Setenv("GREZZI_NOCODB_TOKEN", "new-token")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "new-token", cfg.NocoDB.Token)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GREZZI_NOCODB_BASE_URL=http://localhost:9999\n"), 0644))
	prev, had := os.LookupEnv("GREZZI_NOCODB_BASE_URL")
	require.NoError(t, os.Unsetenv("GREZZI_NOCODB_BASE_URL"))
	t.Cleanup(func() {
		if had {
			os.Setenv("GREZZI_NOCODB_BASE_URL", prev) //nolint:errcheck
		} else {
			os.Unsetenv("GREZZI_NOCODB_BASE_URL") //nolint:errcheck
		}
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", cfg.NocoDB.BaseURL)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Pipeline.ReferencePath = "gi_comuni_cap.csv"
	cfg.Reach.Concurrency = 8
	cfg.NocoDB.BaseURL = "http://nocodb:8080"
	cfg.Store.Driver = "sqlite"
	cfg.Server.Port = 8080
	cfg.Server.QueueSize = 16
	cfg.Server.Workers = 1
	return cfg
}

func TestValidateClean(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("clean"))

	cfg.Pipeline.ReferencePath = ""
	cfg.Reach.Concurrency = 0
	err := cfg.Validate("clean")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.reference_path is required")
	assert.Contains(t, err.Error(), "reach.concurrency must be between 1 and 256")
}

func TestValidateClean_NegativeValues(t *testing.T) {
	cfg := validDefaults()
	cfg.Reach.TimeoutMs = -1
	cfg.Reach.RatePerSec = -2
	cfg.NocoDB.BatchSize = -5

	err := cfg.Validate("clean")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reach.timeout_ms must be >= 0")
	assert.Contains(t, err.Error(), "reach.rate_per_sec must be >= 0")
	assert.Contains(t, err.Error(), "nocodb.batch_size must be >= 0")
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidSettings(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	cfg.Server.Workers = 0
	cfg.Server.QueueSize = 0
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "server.workers must be >= 1")
	assert.Contains(t, err.Error(), "server.queue_size must be >= 1")
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateNocoDB(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("nocodb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nocodb.token is required")

	cfg.NocoDB.Token = "tok"
	assert.NoError(t, cfg.Validate("nocodb"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
