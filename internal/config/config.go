// Package config loads the portal configuration from a YAML file and
// AIRFI_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AIRFI_GUEST_MINUTES
// or AIRFI_CONTROLLER_URL.
const EnvPrefix = "AIRFI"

// Controller kinds.
const (
	ControllerUniFi   = "unifi"
	ControllerOpenNDS = "opennds"
)

// ControllerConfig holds the access controller connection settings. Leaving
// URL empty disables controller pushes.
type ControllerConfig struct {
	Kind               string        `mapstructure:"kind"`
	URL                string        `mapstructure:"url"` // UniFi base URL or OpenNDS router host
	Site               string        `mapstructure:"site"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	Timeout            time.Duration `mapstructure:"timeout"`
	SSHPort            int           `mapstructure:"ssh_port"`
	SSHPrivateKey      string        `mapstructure:"ssh_private_key"`
}

// Enabled reports whether enough settings are present to push grants.
func (c ControllerConfig) Enabled() bool {
	if c.Kind == ControllerOpenNDS {
		return c.URL != ""
	}
	return c.URL != "" && c.Site != "" && c.Username != "" && c.Password != ""
}

// Config is the process configuration. It is built once by Load and only
// read afterwards.
type Config struct {
	ListenAddr     string   `mapstructure:"listen_addr"`
	DatabasePath   string   `mapstructure:"database_path"`
	SecretKey      string   `mapstructure:"secret_key"`
	WordlistPath   string   `mapstructure:"wordlist_path"`
	TimeZone       string   `mapstructure:"time_zone"`
	LogLevel       string   `mapstructure:"log_level"`
	Development    bool     `mapstructure:"development"`
	KeysDir        string   `mapstructure:"keys_dir"`
	SessionHours   int      `mapstructure:"session_hours"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	AuthenticatedMinutes int `mapstructure:"authenticated_minutes"`
	GuestMinutes         int `mapstructure:"guest_minutes"`
	RetentionDays        int `mapstructure:"retention_days"`

	ReverseProxyIP               string `mapstructure:"reverse_proxy_ip"`
	PortalTriggerRedirect        string `mapstructure:"portal_trigger_redirect"`
	AuthenticatedSuccessRedirect string `mapstructure:"authenticated_success_redirect"`
	GuestSuccessRedirect         string `mapstructure:"guest_success_redirect"`

	Controller ControllerConfig `mapstructure:"controller"`

	location *time.Location
}

// SetDefaults registers every key with its default so that environment
// variables are picked up for all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("database_path", "./runtime/portal.db")
	v.SetDefault("secret_key", "I am insecure.")
	v.SetDefault("wordlist_path", "wordlist.txt")
	v.SetDefault("time_zone", "Local")
	v.SetDefault("log_level", "info")
	v.SetDefault("development", false)
	v.SetDefault("keys_dir", "./runtime/keys")
	v.SetDefault("session_hours", 24)
	v.SetDefault("trusted_proxies", []string{"127.0.0.1"})

	v.SetDefault("authenticated_minutes", 262800)
	v.SetDefault("guest_minutes", 1440)
	v.SetDefault("retention_days", 7)

	v.SetDefault("reverse_proxy_ip", "127.0.0.1")
	v.SetDefault("portal_trigger_redirect", "http://example.com/")
	v.SetDefault("authenticated_success_redirect", "https://google.com/")
	v.SetDefault("guest_success_redirect", "https://google.com/")

	v.SetDefault("controller.kind", ControllerUniFi)
	v.SetDefault("controller.url", "")
	v.SetDefault("controller.site", "")
	v.SetDefault("controller.username", "")
	v.SetDefault("controller.password", "")
	v.SetDefault("controller.insecure_skip_verify", false)
	v.SetDefault("controller.timeout", 5*time.Second)
	v.SetDefault("controller.ssh_port", 22)
	v.SetDefault("controller.ssh_private_key", "")
}

// NewViper returns a viper instance with defaults and environment binding.
// configFile may be empty, in which case ./airfi.yaml is used when present.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("airfi")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	return v
}

// Load reads the config file (if any), applies overrides and validates.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and resolves the time zone.
func (c *Config) Validate() error {
	if c.AuthenticatedMinutes <= 0 {
		return ErrInvalidConfig("authenticated_minutes must be positive")
	}
	if c.GuestMinutes <= 0 {
		return ErrInvalidConfig("guest_minutes must be positive")
	}
	if c.RetentionDays < 0 {
		return ErrInvalidConfig("retention_days must not be negative")
	}
	if c.SessionHours <= 0 {
		return ErrInvalidConfig("session_hours must be positive")
	}
	if c.WordlistPath == "" {
		return ErrInvalidConfig("wordlist_path is required")
	}
	if c.ReverseProxyIP != "" && net.ParseIP(c.ReverseProxyIP) == nil {
		return ErrInvalidConfig("reverse_proxy_ip is not an IP address: " + c.ReverseProxyIP)
	}
	switch c.Controller.Kind {
	case ControllerUniFi, ControllerOpenNDS:
	default:
		return ErrInvalidConfig("controller.kind must be unifi or opennds")
	}
	if c.Controller.Timeout <= 0 {
		return ErrInvalidConfig("controller.timeout must be positive")
	}

	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return ErrInvalidConfig("unknown time_zone " + c.TimeZone)
	}
	c.location = loc
	return nil
}

// Location returns the time zone used for the guest password's calendar day.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// Retention is the access log window.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// SessionDuration is the lifetime of an operator login.
func (c *Config) SessionDuration() time.Duration {
	return time.Duration(c.SessionHours) * time.Hour
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Message
}

// ErrInvalidConfig creates a new configuration error.
func ErrInvalidConfig(message string) error {
	return &ConfigError{Message: message}
}
