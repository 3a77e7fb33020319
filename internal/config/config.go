package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/common"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Defaults applied when a key is unset.
const (
	DefaultUserID           = "local"
	DefaultTimezone         = "America/Sao_Paulo"
	DefaultPageSize         = 50
	DefaultServerAddr       = ":8080"
	DefaultGenerateSchedule = "@every 6h"
)

// Config is the validated application configuration.
type Config struct {
	Location *time.Location
	Database DatabaseConfig
	Logging  LoggingConfig
	Server   ServerConfig
	Ledger   LedgerConfig
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string
}

// LedgerConfig holds engine settings.
type LedgerConfig struct {
	UserID   string
	Timezone string
	PageSize int
}

// ServerConfig drives `ledger serve`.
type ServerConfig struct {
	Addr             string
	GenerateSchedule string
	AllowedOrigins   []string
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("ledger.user_id", DefaultUserID)
	v.SetDefault("ledger.timezone", DefaultTimezone)
	v.SetDefault("ledger.page_size", DefaultPageSize)
	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.generate_schedule", DefaultGenerateSchedule)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		Database: DatabaseConfig{
			Path: ExpandPath(v.GetString("database.path")),
		},
		Ledger: LedgerConfig{
			UserID:   strings.TrimSpace(v.GetString("ledger.user_id")),
			Timezone: v.GetString("ledger.timezone"),
			PageSize: v.GetInt("ledger.page_size"),
		},
		Server: ServerConfig{
			Addr:             v.GetString("server.addr"),
			GenerateSchedule: v.GetString("server.generate_schedule"),
			AllowedOrigins:   v.GetStringSlice("server.allowed_origins"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}
	if c.Ledger.UserID == "" {
		return fmt.Errorf("%w: ledger.user_id", common.ErrMissingConfig)
	}
	if c.Ledger.PageSize <= 0 {
		return fmt.Errorf("%w: ledger.page_size must be positive, got %d", common.ErrInvalidConfig, c.Ledger.PageSize)
	}

	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return fmt.Errorf("%w: ledger.timezone %q: %v", common.ErrInvalidConfig, c.Ledger.Timezone, err)
	}
	c.Location = loc

	if c.Server.GenerateSchedule != "" {
		if _, err := cron.ParseStandard(c.Server.GenerateSchedule); err != nil {
			return fmt.Errorf("%w: server.generate_schedule %q: %v", common.ErrInvalidConfig, c.Server.GenerateSchedule, err)
		}
	}

	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", common.ErrInvalidConfig, err)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: logging.format %q", common.ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}
