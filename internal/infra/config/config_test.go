package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 950, cfg.Quota.DailyLimit)
	require.Equal(t, 10*time.Minute, cfg.Cache.WeatherTTL)
	require.Equal(t, 15*time.Second, cfg.Weather.Timeout)
	require.Equal(t, BackendFile, cfg.Cache.Backend)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, "America/Edmonton", loc.String())
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
quota:
  dailyLimit: 100
  backend: sqlite
cache:
  resultTtl: 5m
weather:
  apiKey: from-file
`), 0o644))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("OPENWEATHER_API_KEY", "from-env")
	t.Setenv("CACHE_WEATHER_TTL", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 100, cfg.Quota.DailyLimit)
	require.Equal(t, BackendSQLite, cfg.Quota.Backend)
	require.Equal(t, 5*time.Minute, cfg.Cache.ResultTTL)
	require.Equal(t, 2*time.Minute, cfg.Cache.WeatherTTL)
	require.Equal(t, "from-env", cfg.Weather.APIKey)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("MODEL_PATH", "")
	require.NoError(t, os.Unsetenv("MODEL_PATH"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MODEL_PATH=/srv/models/ridge.json\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/srv/models/ridge.json", cfg.Model.Path)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown quota backend": func(c *Config) { c.Quota.Backend = "etcd" },
		"postgres without dsn":  func(c *Config) { c.Quota.Backend = BackendPostgres },
		"valkey without addr":   func(c *Config) { c.Cache.Backend = BackendValkey },
		"bad timezone":          func(c *Config) { c.Forecast.Timezone = "Mars/Olympus" },
		"retention below ttl":   func(c *Config) { c.Cache.Retention = time.Minute },
		"mqtt without broker":   func(c *Config) { c.MQTT.Enabled = true },
		"archive without addr":  func(c *Config) { c.Archive.Enabled = true; c.Archive.Addr = "" },
		"zero quota":            func(c *Config) { c.Quota.DailyLimit = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, defaultConfig().Validate())
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
