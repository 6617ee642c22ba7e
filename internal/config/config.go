package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	HTTP        HTTPConfig        `mapstructure:"http"`
	Resolver    ResolverConfig    `mapstructure:"resolver"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	Host                 string `mapstructure:"host"`
	Port                 int    `mapstructure:"port"`
	ReadTimeout          string `mapstructure:"read_timeout"`
	WriteTimeout         string `mapstructure:"write_timeout"`
	IdleTimeout          string `mapstructure:"idle_timeout"`
	RedactUpstreamErrors bool   `mapstructure:"redact_upstream_errors"`
}

// ResolverConfig contains settings for the Instagram resolver
type ResolverConfig struct {
	BaseURL             string  `mapstructure:"base_url"`
	UserAgent           string  `mapstructure:"user_agent"`
	DocID               string  `mapstructure:"doc_id"`
	Timeout             string  `mapstructure:"timeout"`
	RateLimit           float64 `mapstructure:"rate_limit"` // requests per second, 0 disables
	Retries             int     `mapstructure:"retries"`
	RetryDelay          string  `mapstructure:"retry_delay"`
	CSRFRefreshInterval string  `mapstructure:"csrf_refresh_interval"`
	Coalesce            bool    `mapstructure:"coalesce"` // share one call between identical in-flight URLs
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains lookup history settings. An empty path disables history.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig contains result cache settings
type CacheConfig struct {
	TTL string `mapstructure:"ttl"` // 0 disables the cache
}

// MaintenanceConfig contains history cleanup settings
type MaintenanceConfig struct {
	CleanupInterval string `mapstructure:"cleanup_interval"`
	HistoryMaxAge   string `mapstructure:"history_max_age"`
}

// Load loads configuration from the specified file path.
// An empty path, or a path that does not exist, yields defaults plus environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("http.port", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind PORT: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "")
	v.SetDefault("http.port", 9000)
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "60s")
	v.SetDefault("http.idle_timeout", "120s")
	v.SetDefault("http.redact_upstream_errors", false)
	v.SetDefault("resolver.base_url", "https://www.instagram.com")
	v.SetDefault("resolver.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("resolver.doc_id", "9510064595728286")
	v.SetDefault("resolver.timeout", "30s")
	v.SetDefault("resolver.rate_limit", 0)
	v.SetDefault("resolver.retries", 3)
	v.SetDefault("resolver.retry_delay", "1s")
	v.SetDefault("resolver.csrf_refresh_interval", "10m")
	v.SetDefault("resolver.coalesce", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "")
	v.SetDefault("cache.ttl", "0s")
	v.SetDefault("maintenance.cleanup_interval", "1h")
	v.SetDefault("maintenance.history_max_age", "168h")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 0 and 65535")
	}

	durations := map[string]string{
		"http.read_timeout":              c.HTTP.ReadTimeout,
		"http.write_timeout":             c.HTTP.WriteTimeout,
		"http.idle_timeout":              c.HTTP.IdleTimeout,
		"resolver.timeout":               c.Resolver.Timeout,
		"resolver.retry_delay":           c.Resolver.RetryDelay,
		"resolver.csrf_refresh_interval": c.Resolver.CSRFRefreshInterval,
		"cache.ttl":                      c.Cache.TTL,
		"maintenance.cleanup_interval":   c.Maintenance.CleanupInterval,
		"maintenance.history_max_age":    c.Maintenance.HistoryMaxAge,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}

	if c.Resolver.BaseURL == "" {
		return fmt.Errorf("resolver.base_url is required")
	}
	if c.Resolver.RateLimit < 0 {
		return fmt.Errorf("resolver.rate_limit must not be negative")
	}
	if c.Resolver.Retries < 0 {
		return fmt.Errorf("resolver.retries must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// BindAddr returns the host:port the HTTP server listens on
func (c *HTTPConfig) BindAddr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	return parseOr(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	return parseOr(c.WriteTimeout, 60*time.Second)
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	return parseOr(c.IdleTimeout, 120*time.Second)
}

// GetTimeout returns the per-request resolver timeout.
// Zero means no timeout.
func (c *ResolverConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// GetRetryDelay returns the base delay between resolver retries
func (c *ResolverConfig) GetRetryDelay() time.Duration {
	return parseOr(c.RetryDelay, time.Second)
}

// GetCSRFRefreshInterval returns how long a CSRF token is reused
func (c *ResolverConfig) GetCSRFRefreshInterval() time.Duration {
	return parseOr(c.CSRFRefreshInterval, 10*time.Minute)
}

// GetTTL returns the result cache TTL. Zero disables the cache.
func (c *CacheConfig) GetTTL() time.Duration {
	d, _ := time.ParseDuration(c.TTL)
	return d
}

// GetCleanupInterval returns how often history is pruned
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	return parseOr(c.CleanupInterval, time.Hour)
}

// GetHistoryMaxAge returns how long lookups are kept
func (c *MaintenanceConfig) GetHistoryMaxAge() time.Duration {
	return parseOr(c.HistoryMaxAge, 7*24*time.Hour)
}

func parseOr(value string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(value)
	if d == 0 {
		return fallback
	}
	return d
}
