package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix              = "COUTUPRO"
	defaultHTTPAddress     = "127.0.0.1:8080"
	defaultDatabasePath    = "coutupro.db"
	defaultLogLevel        = "info"
	defaultCookieName      = "coutupro_session"
	defaultSessionTTL      = 720 * time.Hour
	defaultAlertInterval   = time.Minute
	defaultCleanupInterval = time.Minute
	defaultTimezone        = "Africa/Porto-Novo"
	defaultAllowedOrigin   = "http://localhost:5173"
)

// AppConfig captures runtime configuration for the workshop process.
type AppConfig struct {
	HTTPAddress          string
	DatabasePath         string
	LogLevel             string
	SessionSigningSecret string
	SessionCookieName    string
	SessionTTL           time.Duration
	SecureCookies        bool
	AlertInterval        time.Duration
	CleanupInterval      time.Duration
	Timezone             string
	AllowedOrigins       []string
}

// LoadDotEnv reads an optional .env file into the process environment.
// Variables already set win over the file.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !isMissingFile(err) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
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
	configViper.SetDefault("http.allowed_origins", []string{defaultAllowedOrigin})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.ttl", defaultSessionTTL)
	configViper.SetDefault("session.secure_cookie", false)
	configViper.SetDefault("alerts.interval", defaultAlertInterval)
	configViper.SetDefault("alerts.cleanup_interval", defaultCleanupInterval)
	configViper.SetDefault("workshop.timezone", defaultTimezone)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		SessionTTL:           configViper.GetDuration("session.ttl"),
		SecureCookies:        configViper.GetBool("session.secure_cookie"),
		AlertInterval:        configViper.GetDuration("alerts.interval"),
		CleanupInterval:      configViper.GetDuration("alerts.cleanup_interval"),
		Timezone:             configViper.GetString("workshop.timezone"),
		AllowedOrigins:       configViper.GetStringSlice("http.allowed_origins"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// Location resolves the configured workshop timezone.
func (c AppConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.AlertInterval <= 0 {
		return fmt.Errorf("alerts.interval must be positive")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("alerts.cleanup_interval must be positive")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("workshop.timezone is invalid: %w", err)
	}
	return nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
