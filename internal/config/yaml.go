// Package config loads the portal's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level portal configuration file.
type YAMLConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Redis    RedisConfig    `yaml:"redis"`
	Captcha  CaptchaConfig  `yaml:"captcha"`
	Auth     AuthConfig     `yaml:"auth"`
	Keys     KeysConfig     `yaml:"keys"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	ShutdownTimeout string          `yaml:"shutdown_timeout"`
	CORS            CORSConfig      `yaml:"cors"`
	TLS             TLSConfig       `yaml:"tls"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// TLSConfig controls TLS termination at the server level.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// RateLimitConfig sets the per-IP request budgets.
type RateLimitConfig struct {
	AccountPerMinute int `yaml:"account_per_minute"`
	MutatePerMinute  int `yaml:"mutate_per_minute"`
}

// UpstreamConfig points at the key-management backend.
type UpstreamConfig struct {
	Endpoint            string `yaml:"endpoint"`
	AdminKey            string `yaml:"admin_key"`
	UserRole            string `yaml:"user_role"`
	MaxParallelRequests int    `yaml:"max_parallel_requests"`
	TeamExtended        string `yaml:"team_extended"`
	TeamPermissionless  string `yaml:"team_permissionless"`
}

// RedisConfig points at the optional external session store. An empty host
// means sessions live in process memory only.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CaptchaConfig controls the CAPTCHA verification gate.
type CaptchaConfig struct {
	Secret    string `yaml:"secret"`
	VerifyURL string `yaml:"verify_url"`
}

// AuthConfig controls the two session cookies and the provider token
// verification.
type AuthConfig struct {
	OAuthCookie   string `yaml:"oauth_cookie"`
	OAuthSecret   string `yaml:"oauth_secret"`
	SessionCookie string `yaml:"session_cookie"`
	SecureCookies bool   `yaml:"secure_cookies"`
}

// KeysConfig controls key issuance.
type KeysConfig struct {
	// ExpiresBy is an optional absolute deadline (RFC 3339 or YYYY-MM-DD)
	// that shortens every issued key's lifetime. It never lengthens one.
	ExpiresBy string `yaml:"expires_by"`
}

// Deadline parses ExpiresBy. A zero value means no deadline.
func (k KeysConfig) Deadline() (*time.Time, error) {
	if k.ExpiresBy == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, k.ExpiresBy); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid keys.expires_by %q", k.ExpiresBy)
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "OPTIONS"},
			},
			RateLimit: RateLimitConfig{
				AccountPerMinute: 10,
				MutatePerMinute:  30,
			},
		},
		Upstream: UpstreamConfig{
			UserRole:            "internal_user",
			MaxParallelRequests: 4,
			TeamExtended:        "chatapi-auth0",
			TeamPermissionless:  "chatapi-pless",
		},
		Redis: RedisConfig{
			Port: 6379,
		},
		Auth: AuthConfig{
			OAuthCookie:   "appSession",
			SessionCookie: "chatapi-session",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
