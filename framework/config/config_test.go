package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-foundation/framework/config"
)

// clearEnv blanks the variables the tests below depend on; empty values are
// treated as unset.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// ── Load ─────────────────────────────────────────────────────────────────────

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t, "APP_NAME", "APP_ENV", "APP_PORT", "DB_DRIVER", "DB_HOST", "DB_PORT",
		"DB_USERNAME", "MAIL_DRIVER", "MAIL_PORT", "CACHE_STORE", "DB_MIGRATION_TABLE")
	cfg := config.Load(filepath.Join(t.TempDir(), "missing.env"))

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"App.Name", cfg.App.Name, "GoFoundation"},
		{"App.Env", cfg.App.Env, "local"},
		{"App.Port", cfg.App.Port, "8000"},
		{"DB.Driver", cfg.DB.Driver, "postgres"},
		{"DB.Host", cfg.DB.Host, "127.0.0.1"},
		{"DB.Port", cfg.DB.Port, "5432"},
		{"DB.Username", cfg.DB.Username, "postgres"},
		{"DB.MigrationTable", cfg.DB.MigrationTable, "migration"},
		{"Mail.Driver", cfg.Mail.Driver, "smtp"},
		{"Mail.Port", cfg.Mail.Port, "587"},
		{"Cache.Default", cfg.Cache.Default, "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("APP_NAME", "MyApp")
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("DB_DATABASE", "mydb")
	t.Setenv("DB_CONN_MAX_LIFETIME", "90s")

	cfg := config.Load()

	assert.Equal(t, "MyApp", cfg.App.Name)
	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, "9000", cfg.App.Port)
	assert.Equal(t, "mydb", cfg.DB.Database)
	assert.Equal(t, 90*time.Second, cfg.DB.ConnMaxLife)
}

func TestLoad_AppDebug(t *testing.T) {
	t.Setenv("APP_DEBUG", "true")
	assert.True(t, config.Load().App.Debug)

	t.Setenv("APP_DEBUG", "false")
	assert.False(t, config.Load().App.Debug)
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	clearEnv(t, "APP_NAME")
	os.Unsetenv("APP_NAME")

	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "APP_NAME=FromDotEnv\n")

	cfg := config.Load(path)
	assert.Equal(t, "FromDotEnv", cfg.App.Name)
}

// ── LoadWith ─────────────────────────────────────────────────────────────────

func TestLoadWith_YAMLOverlayThenEnv(t *testing.T) {
	clearEnv(t, "APP_NAME", "CACHE_STORE", "REDIS_ADDR")
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config", "app.yaml")
	writeFile(t, yamlPath, `
app:
  name: FromYAML
cache:
  default: redis
redis:
  addr: redis:6379
`)
	t.Setenv("REDIS_ADDR", "10.0.0.1:6379")

	cfg, err := config.LoadWith(config.Options{
		EnvFiles:   []string{filepath.Join(dir, ".env")},
		ConfigFile: yamlPath,
	})
	require.NoError(t, err)
	assert.Equal(t, "FromYAML", cfg.App.Name)
	assert.Equal(t, "redis", cfg.Cache.Default)
	assert.Equal(t, "10.0.0.1:6379", cfg.Redis.Addr, "env wins over YAML")
	assert.Equal(t, "5432", cfg.DB.Port, "untouched keys keep defaults")
}

func TestLoadWith_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "app.yaml")
	writeFile(t, yamlPath, "app: [unclosed")

	_, err := config.LoadWith(config.Options{EnvFiles: []string{filepath.Join(dir, ".env")}, ConfigFile: yamlPath})
	assert.Error(t, err)
}

// ── Config cache ─────────────────────────────────────────────────────────────

func TestCache_RoundTripAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "bootstrap", "cache", "config.json")

	cached := config.Defaults()
	cached.App.Name = "Cached"
	require.NoError(t, config.Cache(cached, cachePath))

	t.Setenv("APP_NAME", "FromEnv")
	cfg, err := config.LoadWith(config.Options{CacheFile: cachePath})
	require.NoError(t, err)
	assert.Equal(t, "Cached", cfg.App.Name, "a cached config skips env")
	assert.Equal(t, cached, cfg)

	removed, err := config.Clear(cachePath)
	require.NoError(t, err)
	assert.True(t, removed)

	cfg, err = config.LoadWith(config.Options{CacheFile: cachePath, EnvFiles: []string{filepath.Join(dir, ".env")}})
	require.NoError(t, err)
	assert.Equal(t, "FromEnv", cfg.App.Name)
}

func TestClear_MissingFile(t *testing.T) {
	removed, err := config.Clear(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.False(t, removed)
}

// ── Get / GetInt / GetBool / GetDuration ─────────────────────────────────────

func TestGet(t *testing.T) {
	t.Setenv("CUSTOM_KEY", "hello")
	assert.Equal(t, "hello", config.Get("CUSTOM_KEY", "default"))

	os.Unsetenv("MISSING_KEY")
	assert.Equal(t, "fallback", config.Get("MISSING_KEY", "fallback"))
}

func TestGetInt(t *testing.T) {
	t.Setenv("SOME_INT", "42")
	assert.Equal(t, 42, config.GetInt("SOME_INT", 0))

	t.Setenv("SOME_INT", "notanint")
	assert.Equal(t, 99, config.GetInt("SOME_INT", 99))
}

func TestGetBool(t *testing.T) {
	for _, val := range []string{"true", "1", "True", "TRUE"} {
		t.Setenv("BOOL_KEY", val)
		assert.True(t, config.GetBool("BOOL_KEY", false), val)
	}

	t.Setenv("BOOL_KEY", "false")
	assert.False(t, config.GetBool("BOOL_KEY", true))

	t.Setenv("BOOL_KEY", "notabool")
	assert.True(t, config.GetBool("BOOL_KEY", true))
}

func TestGetDuration(t *testing.T) {
	t.Setenv("TIMEOUT", "2m")
	assert.Equal(t, 2*time.Minute, config.GetDuration("TIMEOUT", time.Second))

	t.Setenv("TIMEOUT", "soon")
	assert.Equal(t, time.Second, config.GetDuration("TIMEOUT", time.Second))
}
