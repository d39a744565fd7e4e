package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/authgate/internal/secretstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
	LogFormatOTel LogFormat = "otel"
)

// SecretStorageType represents the supported secret storage backends.
type SecretStorageType string

const (
	SecretStorageTypeFile    SecretStorageType = "file"
	SecretStorageTypeKeyring SecretStorageType = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigAuthStorage     = SecretStorageTypeKeyring
	DefaultConfigKeyringService  = "authgate"
	DefaultConfigLoginTimeout    = 60 * time.Second
	DefaultConfigCallbackAddress = "127.0.0.1:43117"
	DefaultConfigCallbackPath    = "/callback"
)

// ServiceConfig identifies the authorization service and this client.
type ServiceConfig struct {
	BaseURL  string   `json:"base_url" validate:"required,url"`
	ClientID string   `json:"client_id" validate:"required"`
	Scopes   []string `json:"scopes"`
}

// AuthConfig describes where secret records (sessions, account) are kept.
type AuthConfig struct {
	Storage SecretStorageType `json:"storage" validate:"required,oneof=file keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	Dir            string `json:"dir,omitempty"`             // For file storage: directory for secret files
	KeyringService string `json:"keyring_service,omitempty"` // For keyring storage: service identifier
}

// NewSecretStore creates a secret store from the authentication configuration.
func (a *AuthConfig) NewSecretStore() (secretstore.Store, error) {
	switch a.Storage {
	case SecretStorageTypeFile:
		return secretstore.NewFileStore(a.Dir)
	case SecretStorageTypeKeyring:
		return secretstore.NewKeyringStore(a.KeyringService)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// LoginConfig holds login flow behavior.
type LoginConfig struct {
	// Timeout bounds the wait for the authorization redirect.
	Timeout time.Duration `json:"timeout"`

	// CallbackAddress is the loopback address the redirect server binds.
	// Together with CallbackPath it must match the redirect URI registered
	// with the service.
	CallbackAddress string `json:"callback_address" validate:"required,hostname_port"`

	// CallbackPath is the path component of the redirect URI.
	CallbackPath string `json:"callback_path" validate:"required,startswith=/"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level    `json:"log_level"`
	LogFormat LogFormat     `json:"log_format" validate:"oneof=text json otel"`
	Service   ServiceConfig `json:"service"`
	Auth      AuthConfig    `json:"auth"`
	Login     LoginConfig   `json:"login"`
}

// RedirectURI is the full redirect URI derived from the callback address
// and path.
func (c *Config) RedirectURI() string {
	return "http://" + c.Login.CallbackAddress + c.Login.CallbackPath
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Login.Timeout == 0 {
		c.Login.Timeout = DefaultConfigLoginTimeout
	}
	if c.Login.CallbackAddress == "" {
		c.Login.CallbackAddress = DefaultConfigCallbackAddress
	}
	if c.Login.CallbackPath == "" {
		c.Login.CallbackPath = DefaultConfigCallbackPath
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case SecretStorageTypeFile:
		if c.Auth.Dir == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.dir required (auto-detect failed: %w)", err)
			}
			c.Auth.Dir = filepath.Join(configDir, "authgate", "secrets")
		}
	case SecretStorageTypeKeyring:
		if c.Auth.KeyringService == "" {
			c.Auth.KeyringService = DefaultConfigKeyringService
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case SecretStorageTypeFile:
		if c.Auth.Dir == "" {
			return errors.New("dir required for file storage")
		}
	case SecretStorageTypeKeyring:
		if c.Auth.KeyringService == "" {
			return errors.New("keyring_service required for keyring storage")
		}
	}

	return nil
}
