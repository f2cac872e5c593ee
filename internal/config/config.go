// Package config loads server configuration from a YAML file with
// environment variable overrides (DRONEWARS_ prefix).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Match    MatchConfig    `mapstructure:"match"`
	AI       AIConfig       `mapstructure:"ai"`
}

// ServerConfig holds the websocket listener settings.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxSessions     int           `mapstructure:"max_sessions"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
}

// DatabaseConfig holds the PostgreSQL connection settings. The store is
// optional: with Enabled false the server runs purely in memory.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// MatchConfig tunes lobby and match lifecycle behavior.
type MatchConfig struct {
	JoinCodeLength  int           `mapstructure:"join_code_length"`
	LobbyTimeout    time.Duration `mapstructure:"lobby_timeout"`
	ReplayRetention time.Duration `mapstructure:"replay_retention"`
}

// AIConfig selects the computer opponent's difficulty preset, with optional
// per-weight overrides.
type AIConfig struct {
	Difficulty          string `mapstructure:"difficulty"`
	MaxInterceptCost    *int   `mapstructure:"max_intercept_cost"`
	EnergyReserve       *int   `mapstructure:"energy_reserve"`
	SectionAggression   *int   `mapstructure:"section_aggression"`
	UseSectionAbilities *bool  `mapstructure:"use_section_abilities"`
}

// Load reads configuration from the given path. A missing file is not an
// error; defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("DRONEWARS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !strings.Contains(err.Error(), "no such file") {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.ping_interval", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_sessions", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.connect_timeout", 10*time.Second)

	v.SetDefault("match.join_code_length", 6)
	v.SetDefault("match.lobby_timeout", 10*time.Minute)
	v.SetDefault("match.replay_retention", 30*24*time.Hour)

	v.SetDefault("ai.difficulty", "normal")
}

func validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format %q", cfg.Logging.Format)
	}
	if cfg.Database.Enabled && cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required when database.enabled is true")
	}
	switch cfg.AI.Difficulty {
	case "easy", "normal", "hard":
	default:
		return fmt.Errorf("invalid ai difficulty %q", cfg.AI.Difficulty)
	}
	if cfg.Match.JoinCodeLength < 4 || cfg.Match.JoinCodeLength > 16 {
		return fmt.Errorf("match.join_code_length must be between 4 and 16")
	}
	return nil
}
