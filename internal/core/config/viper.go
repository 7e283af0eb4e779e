package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("database_url", defaults.DatabaseURL)
	v.SetDefault("session_timeout", defaults.SessionTimeout.String())
	v.SetDefault("rule_cache_ttl", defaults.RuleCacheTTL.String())
	v.SetDefault("cleanup_interval", defaults.CleanupInterval.String())
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)

	// Bind environment variables with QF_ prefix
	v.SetEnvPrefix("QF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:     v.GetString("database_url"),
		SessionTimeout:  v.GetDuration("session_timeout"),
		RuleCacheTTL:    v.GetDuration("rule_cache_ttl"),
		CleanupInterval: v.GetDuration("cleanup_interval"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database_url must be set")
	}
	if cfg.SessionTimeout <= 0 {
		return fmt.Errorf("session_timeout must be positive, got %v", cfg.SessionTimeout)
	}
	if cfg.RuleCacheTTL <= 0 {
		return fmt.Errorf("rule_cache_ttl must be positive, got %v", cfg.RuleCacheTTL)
	}
	if cfg.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive, got %v", cfg.CleanupInterval)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", cfg.LogFormat)
	}
	return nil
}
