// Package config loads phaseline settings from flags, the environment and
// an optional config file.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, so db_path is read
// from PHASELINE_DB_PATH and events.nats_url from PHASELINE_EVENTS_NATS_URL.
const EnvPrefix = "PHASELINE"

// EventsConfig selects where phase events are published. Empty values
// disable the matching sink.
type EventsConfig struct {
	JSONLPath     string `mapstructure:"jsonl_path"`
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// Config holds all runtime configuration for phaseline.
// Values are populated from .phaseline.yaml, PHASELINE_* env vars, and CLI flags.
type Config struct {
	DBPath           string       `mapstructure:"db_path"`
	CatalogDir       string       `mapstructure:"catalog_dir"`
	PostMortemAnchor string       `mapstructure:"post_mortem_anchor"`
	LogLevel         string       `mapstructure:"log_level"`
	LogFormat        string       `mapstructure:"log_format"`
	Events           EventsConfig `mapstructure:"events"`
}

// Bind points v at PHASELINE_* environment variables, mapping nested keys
// with underscores.
func Bind(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from v, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load(v *viper.Viper) (Config, error) {
	v.SetDefault("db_path", "phaseline.db")
	v.SetDefault("catalog_dir", "catalog")
	v.SetDefault("post_mortem_anchor", "Registration")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("events.jsonl_path", "")
	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "phaseline.events")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if _, err := cfg.Level(); err != nil {
		return Config{}, err
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("config: log_format must be text or json, got %q", cfg.LogFormat)
	}
	return cfg, nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return l, nil
}
