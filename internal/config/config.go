// Package config loads the server configuration.
//
// Precedence, lowest to highest: built-in defaults, the YAML file, then
// environment variables (a .env file is loaded into the environment first, if
// present). Secrets such as client secrets are usually only given through the
// environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/coko7/advent-of-time/internal/oauth"
	"github.com/coko7/advent-of-time/internal/scoring"
)

// Storage drivers.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

type Config struct {
	Server   ServerConfig                    `yaml:"server"`
	Storage  StorageConfig                   `yaml:"storage"`
	Pictures PicturesConfig                  `yaml:"pictures"`
	Log      LogConfig                       `yaml:"log"`
	Auth     AuthConfig                      `yaml:"auth"`
	Sentry   SentryConfig                    `yaml:"sentry"`
	OAuth2   map[string]oauth.ProviderConfig `yaml:"oauth2"`
	Score    scoring.Config                  `yaml:"score"`
}

type ServerConfig struct {
	Port int `yaml:"port"`

	// SecureCookies marks session cookies Secure. Turn it off only for plain
	// HTTP on localhost.
	SecureCookies bool `yaml:"secure_cookies"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // "json" or "sqlite"
	Path   string `yaml:"path"`
}

type PicturesConfig struct {
	Path     string        `yaml:"path"` // pictures.json; image paths are relative to its directory
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

type AuthConfig struct {
	StateSecret string `yaml:"state_secret"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// Default returns the configuration used when nothing else is given.
func Default() Config {
	return Config{
		Server:   ServerConfig{Port: 8080, SecureCookies: true},
		Storage:  StorageConfig{Driver: DriverJSON, Path: "data/users.json"},
		Pictures: PicturesConfig{Path: "data/pictures.json", CacheTTL: time.Minute},
		Log:      LogConfig{Level: "info", Format: "text"},
		Sentry:   SentryConfig{Environment: "production"},
		OAuth2:   map[string]oauth.ProviderConfig{},
		Score:    scoring.DefaultConfig(),
	}
}

// LoadDotEnv loads a .env file into the process environment. A missing file
// is not an error. Variables already set win over the file.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: loading %s: %w", path, err)
	}
	return nil
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := c.applyEnvOverrides(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnvOverrides(lookup lookupFunc) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q", v)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("AOT_SECURE_COOKIES"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid AOT_SECURE_COOKIES %q", v)
		}
		c.Server.SecureCookies = b
	}
	if v, ok := lookup("AOT_STORAGE_DRIVER"); ok && v != "" {
		c.Storage.Driver = v
	}
	if v, ok := lookup("AOT_STORAGE_PATH"); ok && v != "" {
		c.Storage.Path = v
	}
	if v, ok := lookup("AOT_PICTURES_PATH"); ok && v != "" {
		c.Pictures.Path = v
	}
	if v, ok := lookup("AOT_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("AOT_STATE_SECRET"); ok && v != "" {
		c.Auth.StateSecret = v
	}
	if v, ok := lookup("SENTRY_DSN"); ok && v != "" {
		c.Sentry.DSN = v
	}

	// AOT_DISCORD_CLIENT_ID, AOT_GITHUB_CLIENT_SECRET, ...
	for _, p := range oauth.Providers {
		prefix := "AOT_" + strings.ToUpper(string(p)) + "_"
		id, hasID := lookup(prefix + "CLIENT_ID")
		secret, hasSecret := lookup(prefix + "CLIENT_SECRET")
		if !hasID && !hasSecret {
			continue
		}
		pc := c.OAuth2[string(p)]
		if hasID && id != "" {
			pc.ClientID = id
		}
		if hasSecret && secret != "" {
			pc.ClientSecret = secret
		}
		if c.OAuth2 == nil {
			c.OAuth2 = map[string]oauth.ProviderConfig{}
		}
		c.OAuth2[string(p)] = pc
	}
	return nil
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Driver {
	case DriverJSON, DriverSQLite:
	default:
		return fmt.Errorf("config: storage.driver must be %q or %q, got %q", DriverJSON, DriverSQLite, c.Storage.Driver)
	}
	if c.Storage.Path == "" {
		return errors.New("config: storage.path is required")
	}
	if c.Pictures.Path == "" {
		return errors.New("config: pictures.path is required")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	if len(c.Auth.StateSecret) < 16 {
		return errors.New("config: auth.state_secret (or AOT_STATE_SECRET) must be at least 16 characters")
	}
	for name, pc := range c.OAuth2 {
		if err := pc.Validate(); err != nil {
			return fmt.Errorf("config: oauth2.%s: %w", name, err)
		}
	}
	if err := c.Score.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// NewLogger builds the slog logger described by the log block.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: invalid log.level %q", s)
	}
	return level, nil
}
