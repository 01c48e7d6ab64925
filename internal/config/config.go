// Package config loads taskdesk settings from config.yaml in the data
// directory, with TASKDESK_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tgienger/taskdesk/internal/postgres"
)

const (
	AppName   = "taskdesk"
	FileName  = "config.yaml"
	envPrefix = "TASKDESK"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the full application configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Refresh  RefreshConfig  `mapstructure:"refresh" yaml:"refresh"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// DatabaseConfig selects the backend holding employees and tasks.
// Accounts and the persisted session always live in the SQLite file.
type DatabaseConfig struct {
	Driver   string          `mapstructure:"driver" yaml:"driver"`
	Path     string          `mapstructure:"path" yaml:"path"`
	DSN      string          `mapstructure:"dsn" yaml:"dsn,omitempty"`
	Postgres postgres.Config `mapstructure:"postgres" yaml:"postgres"`
}

// APIConfig configures the HTTP surface
type APIConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// RefreshConfig schedules background reloads; empty disables them
type RefreshConfig struct {
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
}

// LogConfig configures slog output
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration rooted at dataDir
func DefaultConfig(dataDir string) *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:   DriverSQLite,
			Path:     filepath.Join(dataDir, AppName+".db"),
			Postgres: *postgres.DefaultConfig(),
		},
		API:     APIConfig{Addr: ":3001"},
		Refresh: RefreshConfig{Schedule: ""},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// DataDir returns $XDG_DATA_HOME/taskdesk, falling back to
// ~/.local/share/taskdesk, and creates it
func DataDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, ".local", "share")
	}

	appDir := filepath.Join(dataDir, AppName)
	if err := os.MkdirAll(appDir, 0755); err != nil {
		return "", err
	}
	return appDir, nil
}

// Path returns the config file location inside dataDir
func Path(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}

// Load reads path over the defaults and applies environment overrides
// such as TASKDESK_DATABASE_DRIVER. A missing file is not an error.
func Load(path, dataDir string) (*Config, error) {
	cfg := DefaultConfig(dataDir)

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply to keys
// absent from the file
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.dsn", cfg.Database.DSN)
	pg := cfg.Database.Postgres
	v.SetDefault("database.postgres.host", pg.Host)
	v.SetDefault("database.postgres.port", pg.Port)
	v.SetDefault("database.postgres.database", pg.Database)
	v.SetDefault("database.postgres.user", pg.User)
	v.SetDefault("database.postgres.password", pg.Password)
	v.SetDefault("database.postgres.sslmode", pg.SSLMode)
	v.SetDefault("database.postgres.max_conns", pg.MaxConns)
	v.SetDefault("database.postgres.min_conns", pg.MinConns)
	v.SetDefault("database.postgres.max_conn_lifetime", pg.MaxConnLifetime)
	v.SetDefault("database.postgres.max_conn_idle_time", pg.MaxConnIdleTime)
	v.SetDefault("api.addr", cfg.API.Addr)
	v.SetDefault("refresh.schedule", cfg.Refresh.Schedule)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown database driver %q (want %s or %s)", c.Database.Driver, DriverSQLite, DriverPostgres)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.Log.Format)
	}
	return nil
}

// WriteDefault writes the default configuration to path. An existing file
// is left alone unless force is set.
func WriteDefault(path, dataDir string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	data, err := yaml.Marshal(DefaultConfig(dataDir))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	content := "# taskdesk configuration\n# Environment variables override these, e.g. TASKDESK_DATABASE_DRIVER=postgres\n" + string(data)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0600)
}

// NewLogger builds the slog logger described by c, writing to w
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch c.Format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
