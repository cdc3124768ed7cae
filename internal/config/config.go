package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "FAMLING"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultServerDatabase   = "famling-server.db"
	defaultCachePath        = "famling-cache.db"
	defaultLogLevel         = "info"
	defaultRemoteBaseURL    = ""
	defaultFullResyncMaxAge = 7 * 24 * time.Hour
)

// AppConfig captures runtime configuration for both the document-store server
// and the sync agent. Each role validates only the fields it uses.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	CachePath        string
	LogLevel         string
	SigningSecret    string
	RemoteBaseURL    string
	DeviceID         string
	FullResyncMaxAge time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultServerDatabase)
	configViper.SetDefault("cache.path", defaultCachePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("remote.base_url", defaultRemoteBaseURL)
	configViper.SetDefault("sync.full_max_age", defaultFullResyncMaxAge.String())
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		CachePath:        configViper.GetString("cache.path"),
		LogLevel:         configViper.GetString("log.level"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		RemoteBaseURL:    configViper.GetString("remote.base_url"),
		DeviceID:         configViper.GetString("device.id"),
		FullResyncMaxAge: configViper.GetDuration("sync.full_max_age"),
	}

	if strings.TrimSpace(cfg.SigningSecret) == "" {
		return AppConfig{}, fmt.Errorf("auth.signing_secret is required")
	}
	return cfg, nil
}

// ValidateServer checks the fields the document-store server requires.
func (c AppConfig) ValidateServer() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// ValidateAgent checks the fields the sync agent requires.
func (c AppConfig) ValidateAgent() error {
	if strings.TrimSpace(c.CachePath) == "" {
		return fmt.Errorf("cache.path is required")
	}
	if strings.TrimSpace(c.RemoteBaseURL) == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if strings.TrimSpace(c.DeviceID) == "" {
		return fmt.Errorf("device.id is required")
	}
	return nil
}
