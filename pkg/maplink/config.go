package maplink

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wesleyorama2/maplink/internal/monitor"
	"github.com/wesleyorama2/maplink/pkg/validation"
)

// DefaultBaseURL is the Maplink platform.
const DefaultBaseURL = "https://api.maplink.global"

// ErrReservedModule is returned when the configuration lists the auth
// module, which the SDK always runs itself.
var ErrReservedModule = errors.New("maplink: the auth module is loaded by the SDK and cannot be listed")

// Config configures an SDK.
type Config struct {
	ClientID     string `koanf:"client_id" json:"clientId" validate:"required"`
	ClientSecret string `koanf:"client_secret" json:"clientSecret" validate:"required"`

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string `koanf:"base_url" json:"baseUrl" validate:"omitempty,url"`

	// Modules are the product modules to load: geocode, planning, trip.
	Modules []string `koanf:"modules" json:"modules" validate:"min=1"`

	// LazyInit defers Init to the first call made by any module.
	LazyInit bool `koanf:"lazy_init" json:"lazyInit"`

	// ServerPort enables the webhook server when non-zero.
	ServerPort int `koanf:"server_port" json:"serverPort" validate:"gte=0,lte=65535"`

	// PublicURL is where the platform reaches the webhook server.
	// Default: http://localhost:<ServerPort>/
	PublicURL string `koanf:"public_url" json:"publicUrl" validate:"omitempty,url"`

	EnableLogger bool   `koanf:"enable_logger" json:"enableLogger"`
	LogLevel     string `koanf:"log_level" json:"logLevel" validate:"omitempty,oneof=trace debug info warn error disabled"`
	LogFormat    string `koanf:"log_format" json:"logFormat" validate:"omitempty,oneof=json console"`

	// LogOutput defaults to os.Stderr.
	LogOutput io.Writer `koanf:"-" json:"-"`

	// RefreshTokenInterval is in minutes. Default: 30
	RefreshTokenInterval int `koanf:"refresh_token_interval" json:"refreshTokenInterval" validate:"gte=0"`

	// RateLimit caps calls per second across modules; zero is unlimited.
	RateLimit float64 `koanf:"rate_limit" json:"rateLimit" validate:"gte=0"`
	// RateBurst is how many calls may run back to back after an idle
	// period. Default: 1
	RateBurst float64 `koanf:"rate_burst" json:"rateBurst" validate:"gte=0"`

	// Timeout bounds each call. Default: 30s
	Timeout time.Duration `koanf:"timeout" json:"timeout" validate:"gte=0"`

	Monitor monitor.Config `koanf:"monitor" json:"monitor"`
}

// Validate checks cfg and normalizes its module list: names are lowered,
// trimmed and deduplicated in order.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("maplink: %w", err)
	}

	seen := make(map[string]bool, len(c.Modules))
	modules := make([]string, 0, len(c.Modules))
	for _, name := range c.Modules {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "auth" {
			return ErrReservedModule
		}
		if _, ok := registry[name]; !ok {
			return fmt.Errorf("maplink: unknown module %q", name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		modules = append(modules, name)
	}
	c.Modules = modules
	return nil
}

func (c *Config) refreshInterval() time.Duration {
	if c.RefreshTokenInterval <= 0 {
		return 0
	}
	return time.Duration(c.RefreshTokenInterval) * time.Minute
}
