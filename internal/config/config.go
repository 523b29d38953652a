package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Probe client
	ProbeURL              string        `env:"PROBE_URL" default:"ws://127.0.0.1:5000"`
	ProbeToken            string        `env:"PROBE_TOKEN"`
	ProbeHandshakeTimeout time.Duration `env:"PROBE_HANDSHAKE_TIMEOUT" default:"10s"`

	// Sandbox server
	SandboxAddr      string  `env:"SANDBOX_ADDR" default:"127.0.0.1:5000"`
	SandboxJWTSecret string  `env:"SANDBOX_JWT_SECRET"`
	SandboxRateLimit float64 `env:"SANDBOX_RATE_LIMIT" default:"10"`
	SandboxRateBurst int     `env:"SANDBOX_RATE_BURST" default:"20"`
	SandboxEcho      bool    `env:"SANDBOX_ECHO" default:"false"`

	// Development
	LogLevel string `env:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from an optional .env file and the environment
func LoadConfig() (*Config, error) {
	// a missing .env is fine, system env vars still apply
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	config := &Config{}

	// Probe
	if err := loadEnvString(&config.ProbeURL, "PROBE_URL", "ws://127.0.0.1:5000"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.ProbeToken, "PROBE_TOKEN", ""); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.ProbeHandshakeTimeout, "PROBE_HANDSHAKE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	// Sandbox
	if err := loadEnvString(&config.SandboxAddr, "SANDBOX_ADDR", "127.0.0.1:5000"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.SandboxJWTSecret, "SANDBOX_JWT_SECRET", ""); err != nil {
		return nil, err
	}
	if err := loadEnvFloat(&config.SandboxRateLimit, "SANDBOX_RATE_LIMIT", 10); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.SandboxRateBurst, "SANDBOX_RATE_BURST", 20); err != nil {
		return nil, err
	}
	if err := loadEnvBool(&config.SandboxEcho, "SANDBOX_ECHO", false); err != nil {
		return nil, err
	}

	// Development
	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	config.LogLevel = strings.ToLower(config.LogLevel)

	return config, nil
}

// Helper functions for type conversion
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errs []string

	if !strings.HasPrefix(c.ProbeURL, "ws://") && !strings.HasPrefix(c.ProbeURL, "wss://") {
		errs = append(errs, "PROBE_URL must use the ws:// or wss:// scheme")
	}
	if c.ProbeHandshakeTimeout <= 0 {
		errs = append(errs, "PROBE_HANDSHAKE_TIMEOUT must be positive")
	}
	if c.SandboxAddr == "" {
		errs = append(errs, "SANDBOX_ADDR must not be empty")
	}
	if c.SandboxRateLimit < 0 {
		errs = append(errs, "SANDBOX_RATE_LIMIT must not be negative (0 disables the limit)")
	}
	if c.SandboxRateBurst < 1 {
		errs = append(errs, "SANDBOX_RATE_BURST must be at least 1")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AuthEnabled reports whether the sandbox requires a bearer token
func (c *Config) AuthEnabled() bool {
	return c.SandboxJWTSecret != ""
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
