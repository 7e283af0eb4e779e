// Package config provides configuration management for quillform.
package config

import (
	"time"
)

// Config holds runtime configuration for the quillform service.
type Config struct {
	DatabaseURL     string
	SessionTimeout  time.Duration
	RuleCacheTTL    time.Duration
	CleanupInterval time.Duration
	LogLevel        string
	LogFormat       string
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		DatabaseURL:     "sqlite://./quillform.db",
		SessionTimeout:  24 * time.Hour,
		RuleCacheTTL:    5 * time.Minute,
		CleanupInterval: time.Hour,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}
