// Package config loads the maplink CLI configuration.
//
// Values are layered with koanf, later layers winning:
//
//  1. built-in defaults
//  2. an optional YAML file
//  3. MAPLINK_* environment variables
//
// MAPLINK_CLIENT_ID maps to client_id and MAPLINK_MONITOR_MAX_EVENTS to
// monitor.max_events. List values such as MAPLINK_MODULES are comma
// separated.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/wesleyorama2/maplink/internal/monitor"
	"github.com/wesleyorama2/maplink/pkg/maplink"
	"github.com/wesleyorama2/maplink/pkg/validation"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MAPLINK_"

// DefaultPaths are tried in order when no file is given.
var DefaultPaths = []string{
	"maplink.yaml",
	"maplink.yml",
}

// sections are the nested keys of Config. An environment variable whose
// name starts with a section is mapped into it.
var sections = []string{"server", "logging", "monitor"}

// Config is the CLI configuration document.
type Config struct {
	ClientID     string   `koanf:"client_id" validate:"required"`
	ClientSecret string   `koanf:"client_secret" validate:"required"`
	BaseURL      string   `koanf:"base_url" validate:"required,url"`
	Modules      []string `koanf:"modules" validate:"min=1,dive,oneof=geocode planning trip"`
	LazyInit     bool     `koanf:"lazy_init"`

	// RefreshTokenInterval is in minutes.
	RefreshTokenInterval int     `koanf:"refresh_token_interval" validate:"gte=0"`
	RateLimit            float64 `koanf:"rate_limit" validate:"gte=0"`
	RateBurst            float64 `koanf:"rate_burst" validate:"gte=0"`
	Timeout              string  `koanf:"timeout"`

	// Variables fill {{NAME}} placeholders in request files. Values
	// given with --var override them.
	Variables map[string]string `koanf:"variables"`

	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
	Monitor MonitorConfig `koanf:"monitor"`
}

// ServerConfig configures the webhook server. Port 0 disables it.
type ServerConfig struct {
	Port      int    `koanf:"port" validate:"gte=0,lte=65535"`
	PublicURL string `koanf:"public_url" validate:"omitempty,url"`
}

// LoggingConfig configures the SDK logger.
type LoggingConfig struct {
	Enabled bool   `koanf:"enabled"`
	Level   string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format  string `koanf:"format" validate:"oneof=json console"`
}

// MonitorConfig configures the fetch and callback monitor. Durations
// accept Go syntax ("90s") or words ("2 hours").
type MonitorConfig struct {
	MaxEvents        int      `koanf:"max_events" validate:"gte=1"`
	SpoilTime        string   `koanf:"spoil_time"`
	PruneInterval    string   `koanf:"prune_interval"`
	Ignore           []string `koanf:"ignore"`
	CallbackUser     string   `koanf:"callback_user"`
	CallbackPassword string   `koanf:"callback_password"`
}

// Default returns the built-in defaults.
func Default() Config {
	mon := monitor.DefaultConfig()
	return Config{
		BaseURL:              maplink.DefaultBaseURL,
		Modules:              []string{"geocode", "planning", "trip"},
		RefreshTokenInterval: 30,
		Timeout:              "30s",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Monitor: MonitorConfig{
			MaxEvents:     mon.MaxEvents,
			SpoilTime:     mon.SpoilTime.String(),
			PruneInterval: mon.PruneInterval.String(),
			Ignore:        mon.Ignore,
		},
	}
}

// Load layers the defaults, the YAML file at path and the environment.
// An empty path tries DefaultPaths; a missing default file is not an
// error, a missing explicit one is.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findFile() string {
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKey maps MAPLINK_MONITOR_MAX_EVENTS to monitor.max_events.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	for _, s := range sections {
		if strings.HasPrefix(key, s+"_") {
			return s + "." + strings.TrimPrefix(key, s+"_")
		}
	}
	return key
}

// Validate checks field rules and duration syntax.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	for field, v := range map[string]string{
		"timeout":                c.Timeout,
		"monitor.spoil_time":     c.Monitor.SpoilTime,
		"monitor.prune_interval": c.Monitor.PruneInterval,
	} {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if _, err := ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q: %w", field, v, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SDK converts the document into the SDK configuration.
func (c *Config) SDK() (maplink.Config, error) {
	timeout, err := optionalDuration(c.Timeout)
	if err != nil {
		return maplink.Config{}, fmt.Errorf("timeout: %w", err)
	}
	spoil, err := optionalDuration(c.Monitor.SpoilTime)
	if err != nil {
		return maplink.Config{}, fmt.Errorf("monitor.spoil_time: %w", err)
	}
	prune, err := optionalDuration(c.Monitor.PruneInterval)
	if err != nil {
		return maplink.Config{}, fmt.Errorf("monitor.prune_interval: %w", err)
	}

	return maplink.Config{
		ClientID:             c.ClientID,
		ClientSecret:         c.ClientSecret,
		BaseURL:              c.BaseURL,
		Modules:              append([]string(nil), c.Modules...),
		LazyInit:             c.LazyInit,
		ServerPort:           c.Server.Port,
		PublicURL:            c.Server.PublicURL,
		EnableLogger:         c.Logging.Enabled,
		LogLevel:             c.Logging.Level,
		LogFormat:            c.Logging.Format,
		RefreshTokenInterval: c.RefreshTokenInterval,
		RateLimit:            c.RateLimit,
		RateBurst:            c.RateBurst,
		Timeout:              timeout,
		Monitor: monitor.Config{
			MaxEvents:        c.Monitor.MaxEvents,
			SpoilTime:        spoil,
			PruneInterval:    prune,
			Ignore:           append([]string{}, c.Monitor.Ignore...),
			CallbackUser:     c.Monitor.CallbackUser,
			CallbackPassword: c.Monitor.CallbackPassword,
		},
	}, nil
}

func optionalDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return ParseDuration(s)
}

// ParseDuration parses Go durations ("1m30s") and spelled-out ones
// ("1 minute", "30 seconds", "2 hours").
func ParseDuration(duration string) (time.Duration, error) {
	duration = strings.TrimSpace(duration)
	if duration == "" {
		return 0, errors.New("duration cannot be empty")
	}

	if d, err := time.ParseDuration(duration); err == nil {
		return d, nil
	}

	duration = strings.ToLower(duration)
	duration = strings.ReplaceAll(duration, " ", "")

	// Longest words first so "seconds" is not rewritten as "s" + "s".
	for _, r := range []struct{ word, unit string }{
		{"milliseconds", "ms"},
		{"millisecond", "ms"},
		{"seconds", "s"},
		{"second", "s"},
		{"minutes", "m"},
		{"minute", "m"},
		{"hours", "h"},
		{"hour", "h"},
	} {
		duration = strings.ReplaceAll(duration, r.word, r.unit)
	}

	return time.ParseDuration(duration)
}
