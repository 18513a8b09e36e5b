package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the central typed configuration struct.
// Embed or extend it in your app's own AppConfig.
type Config struct {
	App   AppConfig   `yaml:"app" json:"app"`
	DB    DBConfig    `yaml:"db" json:"db"`
	Mail  MailConfig  `yaml:"mail" json:"mail"`
	Cache CacheConfig `yaml:"cache" json:"cache"`
	Redis RedisConfig `yaml:"redis" json:"redis"`
	Log   LogConfig   `yaml:"log" json:"log"`
	View  ViewConfig  `yaml:"view" json:"view"`
}

type AppConfig struct {
	Name  string `yaml:"name" json:"name"`
	Env   string `yaml:"env" json:"env"` // local | production | testing
	Debug bool   `yaml:"debug" json:"debug"`
	URL   string `yaml:"url" json:"url"`
	Port  string `yaml:"port" json:"port"`
	Key   string `yaml:"key" json:"key"`
}

type DBConfig struct {
	Driver         string        `yaml:"driver" json:"driver"`
	Host           string        `yaml:"host" json:"host"`
	Port           string        `yaml:"port" json:"port"`
	Database       string        `yaml:"database" json:"database"`
	Username       string        `yaml:"username" json:"username"`
	Password       string        `yaml:"password" json:"password"`
	SSLMode        string        `yaml:"sslmode" json:"sslmode"`
	MaxOpenConns   int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns   int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLife    time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	MigrationTable string        `yaml:"migration_table" json:"migration_table"`
}

type MailConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	Host   string `yaml:"host" json:"host"`
	Port   string `yaml:"port" json:"port"`
	From   string `yaml:"from" json:"from"`
}

// CacheConfig selects the default cache store and the stores that can be
// built by name.
type CacheConfig struct {
	Default string   `yaml:"default" json:"default"` // memory | file | redis
	Stores  []string `yaml:"stores" json:"stores"`
	Path    string   `yaml:"path" json:"path"`
	Prefix  string   `yaml:"prefix" json:"prefix"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug | info | warn | error
	Format string `yaml:"format" json:"format"` // json | console
}

type ViewConfig struct {
	Paths    []string `yaml:"paths" json:"paths"`
	Ext      string   `yaml:"ext" json:"ext"`
	Compiled string   `yaml:"compiled" json:"compiled"`
}

// Options controls where LoadWith looks for configuration sources.
type Options struct {
	// EnvFiles are loaded with godotenv before reading the environment.
	// Defaults to ".env" under BasePath.
	EnvFiles []string

	// ConfigFile is an optional YAML overlay. Missing files are ignored.
	ConfigFile string

	// CacheFile is the cached configuration written by Cache. When it exists
	// it is returned as is and every other source is skipped.
	CacheFile string
}

// Load reads .env (if present) and populates a Config from environment variables.
// Call once at bootstrap: cfg := config.Load()
func Load(envFiles ...string) *Config {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env may not exist in production
	_ = godotenv.Load(files...)

	cfg := Defaults()
	applyEnv(cfg)
	return cfg
}

// LoadWith loads configuration with precedence defaults < YAML < environment,
// or returns the cached configuration when opts.CacheFile exists.
func LoadWith(opts Options) (*Config, error) {
	if opts.CacheFile != "" {
		cfg, err := ReadCache(opts.CacheFile)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	files := opts.EnvFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	cfg := Defaults()
	if opts.ConfigFile != "" {
		raw, err := os.ReadFile(opts.ConfigFile)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", opts.ConfigFile, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("config: read %s: %w", opts.ConfigFile, err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		App: AppConfig{
			Name:  "GoFoundation",
			Env:   "local",
			Debug: true,
			URL:   "http://localhost",
			Port:  "8000",
		},
		DB: DBConfig{
			Driver:         "postgres",
			Host:           "127.0.0.1",
			Port:           "5432",
			Username:       "postgres",
			SSLMode:        "disable",
			MaxOpenConns:   25,
			MaxIdleConns:   5,
			ConnMaxLife:    5 * time.Minute,
			MigrationTable: "migration",
		},
		Mail: MailConfig{
			Driver: "smtp",
			Port:   "587",
		},
		Cache: CacheConfig{
			Default: "file",
			Stores:  []string{"memory", "file", "redis"},
			Path:    "storage/framework/cache/data",
		},
		Redis: RedisConfig{Addr: "127.0.0.1:6379"},
		Log:   LogConfig{Format: "console"},
		View: ViewConfig{
			Paths:    []string{"resources/views"},
			Ext:      ".html",
			Compiled: "storage/framework/views",
		},
	}
}

// applyEnv overrides cfg with every environment variable that is set.
func applyEnv(cfg *Config) {
	cfg.App.Name = env("APP_NAME", cfg.App.Name)
	cfg.App.Env = env("APP_ENV", cfg.App.Env)
	cfg.App.Debug = envBool("APP_DEBUG", cfg.App.Debug)
	cfg.App.URL = env("APP_URL", cfg.App.URL)
	cfg.App.Port = env("APP_PORT", cfg.App.Port)
	cfg.App.Key = env("APP_KEY", cfg.App.Key)

	cfg.DB.Driver = env("DB_DRIVER", cfg.DB.Driver)
	cfg.DB.Host = env("DB_HOST", cfg.DB.Host)
	cfg.DB.Port = env("DB_PORT", cfg.DB.Port)
	cfg.DB.Database = env("DB_DATABASE", cfg.DB.Database)
	cfg.DB.Username = env("DB_USERNAME", cfg.DB.Username)
	cfg.DB.Password = env("DB_PASSWORD", cfg.DB.Password)
	cfg.DB.SSLMode = env("DB_SSLMODE", cfg.DB.SSLMode)
	cfg.DB.MaxOpenConns = GetInt("DB_MAX_OPEN_CONNS", cfg.DB.MaxOpenConns)
	cfg.DB.MaxIdleConns = GetInt("DB_MAX_IDLE_CONNS", cfg.DB.MaxIdleConns)
	cfg.DB.ConnMaxLife = GetDuration("DB_CONN_MAX_LIFETIME", cfg.DB.ConnMaxLife)
	cfg.DB.MigrationTable = env("DB_MIGRATION_TABLE", cfg.DB.MigrationTable)

	cfg.Mail.Driver = env("MAIL_DRIVER", cfg.Mail.Driver)
	cfg.Mail.Host = env("MAIL_HOST", cfg.Mail.Host)
	cfg.Mail.Port = env("MAIL_PORT", cfg.Mail.Port)
	cfg.Mail.From = env("MAIL_FROM_ADDRESS", cfg.Mail.From)

	cfg.Cache.Default = env("CACHE_STORE", cfg.Cache.Default)
	cfg.Cache.Path = env("CACHE_PATH", cfg.Cache.Path)
	cfg.Cache.Prefix = env("CACHE_PREFIX", cfg.Cache.Prefix)

	cfg.Redis.Addr = env("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = env("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = GetInt("REDIS_DB", cfg.Redis.DB)

	cfg.Log.Level = env("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = env("LOG_FORMAT", cfg.Log.Format)

	cfg.View.Ext = env("VIEW_EXT", cfg.View.Ext)
	cfg.View.Compiled = env("VIEW_COMPILED_PATH", cfg.View.Compiled)
	if p := os.Getenv("VIEW_PATH"); p != "" {
		cfg.View.Paths = filepath.SplitList(p)
	}
}

// ── Config cache ──────────────────────────────────────────────────────────────

// Cache writes cfg as JSON to path, creating parent directories.
func Cache(cfg *Config, path string) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create cache dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("config: write cache: %w", err)
	}
	return os.Rename(tmp, path)
}

// ReadCache decodes a configuration cache file.
func ReadCache(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: decode cache %s: %w", path, err)
	}
	return cfg, nil
}

// Clear removes the configuration cache. removed is false when there was
// nothing to remove.
func Clear(path string) (removed bool, err error) {
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// ── Env helpers ───────────────────────────────────────────────────────────────

// Get returns a raw env value, falling back to defaultVal.
func Get(key, defaultVal string) string {
	return env(key, defaultVal)
}

// GetInt returns an int env value.
func GetInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// GetBool returns a bool env value.
func GetBool(key string, defaultVal bool) bool {
	return envBool(key, defaultVal)
}

// GetDuration returns a time.Duration env value ("30s", "5m").
func GetDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
