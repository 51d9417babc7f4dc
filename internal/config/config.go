package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const devSecret = "devconnect-dev-secret"

// Config represents the server configuration. Values come from an optional
// YAML file, then the environment, then command-line flags.
type Config struct {
	Addr        string        `yaml:"addr"`
	DatabaseURL string        `yaml:"database_url"`
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	Env         string        `yaml:"env"`
	LogLevel    string        `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Addr:        ":8080",
		DatabaseURL: "file:devconnect.db",
		TokenTTL:    24 * time.Hour,
		Env:         "development",
		LogLevel:    "info",
	}
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Addr = getenv("ADDR", cfg.Addr)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.JWTSecret = getenv("JWT_SECRET", cfg.JWTSecret)
	cfg.Env = strings.ToLower(getenv("APP_ENV", cfg.Env))
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	if v := getenv("TOKEN_TTL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("TOKEN_TTL: %w", err)
		}
		cfg.TokenTTL = d
	}
	return cfg, nil
}

func (c Config) Development() bool { return c.Env == "development" }

// Validate fills development-only defaults and rejects unusable settings.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		if !c.Development() {
			return errors.New("JWT_SECRET is required outside development")
		}
		c.JWTSecret = devSecret
	}
	if c.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if c.DatabaseURL == "" {
		return errors.New("database url is empty")
	}
	return nil
}

func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
