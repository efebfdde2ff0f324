package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/reyrey-auth/internal/auth"
	"github.com/florianilch/reyrey-auth/internal/tokencheck"
	"github.com/florianilch/reyrey-auth/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Token store names accepted in Config.Providers.
const (
	StoreEnvFile  = "env_file"
	StoreJSONFile = "json_file"
	StoreDatabase = "database"
	StoreAPI      = "api"
	StoreKeyring  = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigTokenDirName    = ".reyrey"
	DefaultConfigEnvFile         = ".env"
	DefaultConfigAPIURL          = "http://localhost:5000"
	DefaultConfigCheckURL        = tokencheck.DefaultBaseURL
	DefaultConfigServerAddress   = "127.0.0.1:5000"
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigLoginTimeout    = auth.DefaultLoginTimeout
	DefaultConfigKeyringService  = tokenstore.DefaultKeyringService
)

// LoginConfig holds browser login settings.
type LoginConfig struct {
	// Timeout bounds a fallback login triggered by a token lookup.
	Timeout time.Duration `json:"timeout" validate:"gte=0"`
	// ExecPath overrides the Chrome binary.
	ExecPath string `json:"exec_path"`
}

// ServerConfig holds token API server configuration.
type ServerConfig struct {
	Address string `json:"address" validate:"required,hostname_port"`
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for console output (defaults to Info if unset).
	LogLevel  slog.Level `json:"log_level"`
	LogFormat LogFormat  `json:"log_format" validate:"oneof=text json"`

	// TokenDir holds the JSON token file, the database and logs.
	TokenDir string `json:"token_dir" validate:"required"`
	DBPath   string `json:"db_path" validate:"required"`
	JSONPath string `json:"json_path" validate:"required"`
	EnvFile  string `json:"env_file" validate:"required"`
	APIURL   string `json:"api_url" validate:"required,url"`
	CheckURL string `json:"check_url" validate:"required,url"`

	// Headless runs the login browser without a window (defaults to true).
	Headless *bool `json:"headless"`

	// Providers lists token stores in lookup order.
	Providers      []string `json:"providers" validate:"required,min=1,dive,oneof=env_file json_file database api keyring"`
	KeyringService string   `json:"keyring_service"`

	Login    LoginConfig    `json:"login"`
	Server   ServerConfig   `json:"server"`
	Shutdown ShutdownConfig `json:"shutdown"`
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
	if c.TokenDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("token_dir required (auto-detect failed: %w)", err)
		}
		c.TokenDir = filepath.Join(home, DefaultConfigTokenDirName)
	}
	c.TokenDir = expandHome(c.TokenDir)

	// Paths derived from the token directory
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.TokenDir, "tokens.db")
	}
	if c.JSONPath == "" {
		c.JSONPath = filepath.Join(c.TokenDir, "current_token.json")
	}
	c.DBPath = expandHome(c.DBPath)
	c.JSONPath = expandHome(c.JSONPath)

	if c.EnvFile == "" {
		c.EnvFile = DefaultConfigEnvFile
	}
	if c.APIURL == "" {
		c.APIURL = DefaultConfigAPIURL
	}
	if c.CheckURL == "" {
		c.CheckURL = DefaultConfigCheckURL
	}
	if len(c.Providers) == 0 {
		c.Providers = tokenstore.DefaultOrder()
	}
	if c.KeyringService == "" {
		c.KeyringService = DefaultConfigKeyringService
	}
	if c.Login.Timeout == 0 {
		c.Login.Timeout = DefaultConfigLoginTimeout
	}
	if c.Headless == nil {
		headless := true
		c.Headless = &headless
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultConfigServerAddress
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}

	return nil
}

// Validate validates the configuration using struct tags.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// LogDir is where the rotated log file and login screenshots are written.
func (c *Config) LogDir() string {
	return filepath.Join(c.TokenDir, "logs")
}

// RunHeadless reports whether the browser runs without a window.
func (c *Config) RunHeadless() bool {
	return c.Headless == nil || *c.Headless
}

// NewRegistry registers every known token store. Stores are constructed on
// first use, so an unusable store only drops out of lookups that name it.
func (c *Config) NewRegistry() (*tokenstore.Registry, error) {
	r := tokenstore.NewRegistry()

	factories := map[string]tokenstore.Factory{
		StoreEnvFile: func() (tokenstore.TokenStore, error) {
			return tokenstore.NewEnvFileStore(c.EnvFile)
		},
		StoreJSONFile: func() (tokenstore.TokenStore, error) {
			return tokenstore.NewJSONFileStore(c.JSONPath)
		},
		StoreDatabase: func() (tokenstore.TokenStore, error) {
			return tokenstore.OpenSQLStore(c.DBPath)
		},
		StoreAPI: func() (tokenstore.TokenStore, error) {
			return tokenstore.NewAPIStore(c.APIURL)
		},
		StoreKeyring: func() (tokenstore.TokenStore, error) {
			return tokenstore.NewKeyringStore(c.KeyringService)
		},
	}

	for name, factory := range factories {
		if err := r.RegisterFactory(name, factory); err != nil {
			return nil, fmt.Errorf("registering %s store: %w", name, err)
		}
	}
	return r, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
