// Package config provides configuration management for the storefront client.
// It loads the YAML configuration file, applies defaults and exposes the
// settings of the hosted platform: authentication, the GraphQL API and object storage.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultSessionDir is where the session file is kept when session-dir is empty.
	DefaultSessionDir = "~/.lojinha"

	// DefaultCallbackPort is the local port used by the hosted-UI sign-in callback.
	DefaultCallbackPort = 8765

	// DefaultPageSize bounds each listProducts page.
	DefaultPageSize = 50

	// DefaultURLExpiry is the lifetime of presigned image URLs.
	DefaultURLExpiry = 15 * time.Minute

	// DefaultAccessLevel mirrors the storage level products are uploaded with.
	DefaultAccessLevel = "guest"

	// DefaultLocale is the language of the terminal client.
	DefaultLocale = "pt"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Debug enables debug level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile redirects logs to a rotating file instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogsMaxSizeMB caps the size of a single log file before it is rotated.
	LogsMaxSizeMB int `yaml:"logs-max-size-mb" json:"logs-max-size-mb"`

	// LogsMaxBackups is how many rotated log files are retained. Zero keeps them all.
	LogsMaxBackups int `yaml:"logs-max-backups" json:"logs-max-backups"`

	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// SessionDir is the directory holding the persisted session.
	SessionDir string `yaml:"session-dir" json:"session-dir"`

	// Locale selects the terminal client language ("pt" or "en").
	Locale string `yaml:"locale" json:"locale"`

	Auth    AuthConfig    `yaml:"auth" json:"auth"`
	API     APIConfig     `yaml:"api" json:"api"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
}

// AuthConfig describes the hosted authentication service.
type AuthConfig struct {
	ClientID     string   `yaml:"client-id" json:"client-id"`
	ClientSecret string   `yaml:"client-secret" json:"client-secret"`
	TokenURL     string   `yaml:"token-url" json:"token-url"`
	AuthURL      string   `yaml:"auth-url" json:"auth-url"`
	SignUpURL    string   `yaml:"sign-up-url" json:"sign-up-url"`
	UserInfoURL  string   `yaml:"user-info-url" json:"user-info-url"`
	RevokeURL    string   `yaml:"revoke-url" json:"revoke-url"`
	CallbackPort int      `yaml:"callback-port" json:"callback-port"`
	Scopes       []string `yaml:"scopes" json:"scopes"`
}

// APIConfig describes the managed GraphQL API.
type APIConfig struct {
	Endpoint         string `yaml:"endpoint" json:"endpoint"`
	RealtimeEndpoint string `yaml:"realtime-endpoint" json:"realtime-endpoint"`
	// APIKey is sent as x-api-key when no user token is available.
	APIKey   string `yaml:"api-key" json:"api-key"`
	PageSize int    `yaml:"page-size" json:"page-size"`
}

// StorageConfig describes the managed object storage bucket holding product images.
type StorageConfig struct {
	Endpoint    string        `yaml:"endpoint" json:"endpoint"`
	Bucket      string        `yaml:"bucket" json:"bucket"`
	Region      string        `yaml:"region" json:"region"`
	AccessKey   string        `yaml:"access-key" json:"access-key"`
	SecretKey   string        `yaml:"secret-key" json:"secret-key"`
	UseSSL      bool          `yaml:"use-ssl" json:"use-ssl"`
	PathStyle   bool          `yaml:"path-style" json:"path-style"`
	AccessLevel string        `yaml:"access-level" json:"access-level"`
	URLExpiry   time.Duration `yaml:"url-expiry" json:"url-expiry"`
}

// LoadConfig reads a YAML configuration file from the given path.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads YAML from configFile.
// If optional is true and the file is missing, it returns a Config with defaults applied.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if len(strings.TrimSpace(string(data))) > 0 {
		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset values and normalizes the ones that were provided.
func (cfg *Config) ApplyDefaults() {
	if cfg == nil {
		return
	}
	cfg.SessionDir = strings.TrimSpace(cfg.SessionDir)
	if cfg.SessionDir == "" {
		cfg.SessionDir = DefaultSessionDir
	}
	if cfg.LogsMaxSizeMB <= 0 {
		cfg.LogsMaxSizeMB = 10
	}
	if cfg.LogsMaxBackups < 0 {
		cfg.LogsMaxBackups = 0
	}
	cfg.Locale = strings.ToLower(strings.TrimSpace(cfg.Locale))
	if cfg.Locale != "en" && cfg.Locale != "pt" {
		cfg.Locale = DefaultLocale
	}
	if cfg.Auth.CallbackPort <= 0 {
		cfg.Auth.CallbackPort = DefaultCallbackPort
	}
	if len(cfg.Auth.Scopes) == 0 {
		cfg.Auth.Scopes = []string{"openid", "email", "profile"}
	}
	if cfg.API.PageSize <= 0 {
		cfg.API.PageSize = DefaultPageSize
	}
	cfg.Storage.AccessLevel = strings.ToLower(strings.TrimSpace(cfg.Storage.AccessLevel))
	if cfg.Storage.AccessLevel == "" {
		cfg.Storage.AccessLevel = DefaultAccessLevel
	}
	if cfg.Storage.URLExpiry <= 0 {
		cfg.Storage.URLExpiry = DefaultURLExpiry
	}
}

// AuthConfigured reports whether enough of the auth section is set to talk to the platform.
func (cfg *Config) AuthConfigured() bool {
	return cfg != nil && cfg.Auth.ClientID != "" && cfg.Auth.TokenURL != ""
}

// StorageConfigured reports whether product images can be uploaded and signed.
func (cfg *Config) StorageConfigured() bool {
	return cfg != nil && cfg.Storage.Endpoint != "" && cfg.Storage.Bucket != ""
}
