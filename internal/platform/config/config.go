// Package config loads process configuration from an optional .env file
// overlaid by environment variables.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type HTTPConfig struct {
	Addr string
}

type GRPCConfig struct {
	Addr string
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	Environment string
	HTTP        HTTPConfig
	GRPC        GRPCConfig
}

// IsProduction reports whether APP_ENV=production.
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Source wraps the merged key space so service packages can read their own keys.
type Source struct {
	k *koanf.Koanf
}

// NewSource reads dotenvPath (missing file is fine) and then the environment.
// Environment values win over the file.
func NewSource(dotenvPath string) (*Source, error) {
	k := koanf.New(".")
	if dotenvPath != "" {
		// A missing .env is the normal case in containers.
		_ = k.Load(file.Provider(dotenvPath), dotenv.Parser())
	}
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, err
	}
	return &Source{k: k}, nil
}

// String returns the trimmed value of key or fallback when unset or blank.
func (s *Source) String(key, fallback string) string {
	if v := strings.TrimSpace(s.k.String(key)); v != "" {
		return v
	}
	return fallback
}

// Int returns key as an int, or fallback when unset or unparsable.
func (s *Source) Int(key string, fallback int) int {
	if !s.k.Exists(key) || strings.TrimSpace(s.k.String(key)) == "" {
		return fallback
	}
	n := s.k.Int(key)
	if n < 0 {
		return fallback
	}
	if n == 0 && strings.TrimSpace(s.k.String(key)) != "0" {
		return fallback
	}
	return n
}

// Duration returns key parsed with time.ParseDuration, or fallback.
func (s *Source) Duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(s.k.String(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Bool accepts 1/true/yes (any case).
func (s *Source) Bool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(s.k.String(key)))
	switch v {
	case "":
		return fallback
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// Load reads the shared process settings from .env and the environment.
func Load() (AppConfig, error) {
	src, err := NewSource(".env")
	if err != nil {
		return AppConfig{}, err
	}
	return LoadFrom(src)
}

func LoadFrom(src *Source) (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: src.String("SERVICE_NAME", ""),
		LogLevel:    src.String("LOG_LEVEL", "info"),
		Environment: src.String("APP_ENV", "development"),
		HTTP:        HTTPConfig{Addr: src.String("HTTP_ADDR", ":8080")},
		GRPC:        GRPCConfig{Addr: src.String("GRPC_ADDR", ":9090")},
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	return cfg, nil
}
