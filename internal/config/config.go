package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Auth flow selectors.
const (
	FlowApplication = "application"
	FlowDeviceCode  = "devicecode"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	TenantID     string `mapstructure:"tenant_id"`
	TenantName   string `mapstructure:"tenant_name"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`

	AuthFlow    string `mapstructure:"auth_flow"`
	GraphAPIURL string `mapstructure:"graph_api_url"`
	GraphScopes string `mapstructure:"graph_scopes"`

	RequestTimeoutSeconds int64         `mapstructure:"request_timeout_seconds"`
	RequestTimeout        time.Duration `mapstructure:"-"`
	RateLimitPerSecond    float64       `mapstructure:"rate_limit_per_second"`
	RateLimitBurst        int           `mapstructure:"rate_limit_burst"`

	CacheType            string        `mapstructure:"cache_type"`
	CachePath            string        `mapstructure:"cache_path"`
	CacheTTLSeconds      int64         `mapstructure:"cache_ttl_seconds"`
	CacheCleanupSeconds  int64         `mapstructure:"cache_cleanup_interval_seconds"`
	CacheTTL             time.Duration `mapstructure:"-"`
	CacheCleanupInterval time.Duration `mapstructure:"-"`

	EventsFile string `mapstructure:"events_file"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "azuregraph")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	// Empty defaults register the keys with viper so AutomaticEnv sees them.
	v.SetDefault("tenant_id", "")
	v.SetDefault("tenant_name", "")
	v.SetDefault("client_id", "")
	v.SetDefault("client_secret", "")
	v.SetDefault("auth_flow", FlowApplication)
	v.SetDefault("graph_api_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("graph_scopes", "openid profile offline_access User.Read")
	v.SetDefault("request_timeout_seconds", 20)
	v.SetDefault("rate_limit_per_second", 10.0)
	v.SetDefault("rate_limit_burst", 15)
	v.SetDefault("cache_type", "bbolt")
	v.SetDefault("cache_path", "./data/request-cache.db")
	v.SetDefault("cache_ttl_seconds", int64(time.Hour/time.Second))
	v.SetDefault("cache_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))
	v.SetDefault("events_file", "")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.TenantID) == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("client_id is required")
	}

	switch cfg.AuthFlow {
	case FlowApplication:
		if strings.TrimSpace(cfg.ClientSecret) == "" {
			return nil, fmt.Errorf("client_secret is required for the %s flow", FlowApplication)
		}
	case FlowDeviceCode:
		// Public client flow, no secret.
	default:
		return nil, fmt.Errorf("unsupported auth_flow %q (want %s or %s)", cfg.AuthFlow, FlowApplication, FlowDeviceCode)
	}

	if cfg.RequestTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid request_timeout_seconds (must be positive seconds)")
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second

	if cfg.RateLimitPerSecond <= 0 {
		return nil, fmt.Errorf("invalid rate_limit_per_second (must be positive)")
	}
	if cfg.RateLimitBurst <= 0 {
		return nil, fmt.Errorf("invalid rate_limit_burst (must be positive)")
	}

	if cfg.CacheTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid cache_ttl_seconds (must be positive seconds)")
	}
	if cfg.CacheCleanupSeconds <= 0 {
		return nil, fmt.Errorf("invalid cache_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.CacheTTL = time.Duration(cfg.CacheTTLSeconds) * time.Second
	cfg.CacheCleanupInterval = time.Duration(cfg.CacheCleanupSeconds) * time.Second

	return &cfg, nil
}

// Scopes splits the space-separated graph_scopes value.
func (c *Config) Scopes() []string {
	return strings.Fields(c.GraphScopes)
}
