// Package config provides configuration for the canopy client.
//
// Configuration sources, in order of precedence:
//  1. Command-line flags (applied by the CLI layer)
//  2. Environment variables (CANOPY_API_URL, CANOPY_API_TOKEN)
//  3. INI config file (~/.config/canopy/config)
//
// INI format:
//
//	[canopy]
//	api_url = https://files.example.com
//	api_token = <token>
//	page_size = 10
//
//	[canopy.proxy]
//	mode = no-proxy
//	host =
//	port = 8080
//	user =
//	no_proxy =
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// Validation errors.
var (
	ErrMissingBaseURL  = errors.New("backend base URL is required (set CANOPY_API_URL, --api-url, or api_url in the config file)")
	ErrInvalidPageSize = errors.New("page_size must be between 1 and 500")
)

// Config holds the client configuration.
type Config struct {
	// APIBaseURL is the backend base URL. Required; startup fails without it.
	APIBaseURL string `ini:"api_url"`

	// APIToken is the optional bearer token sent on every request.
	APIToken string `ini:"api_token"`

	// PageSize is the default listing page size.
	PageSize int `ini:"page_size"`

	// Proxy settings
	ProxyMode     string `ini:"mode"` // "no-proxy", "system", "basic", "ntlm"
	ProxyHost     string `ini:"host"`
	ProxyPort     int    `ini:"port"`
	ProxyUser     string `ini:"user"`
	ProxyPassword string `ini:"-"` // never persisted; env or prompt only
	NoProxy       string `ini:"no_proxy"`
}

// DefaultPath returns the default config file location
// (~/.config/canopy/config).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "canopy", "config"), nil
}

// Load reads configuration from the given file path (if it exists) and the
// environment. A missing file is not an error. Load does not validate:
// flag overrides land after it, so callers run Validate once the full
// precedence chain (flags > env > file) has been applied.
func Load(path string) (*Config, error) {
	cfg := &Config{
		PageSize:  10,
		ProxyMode: "no-proxy",
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := loadFile(cfg, path); err != nil {
				return nil, err
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := file.Section("canopy").MapTo(cfg); err != nil {
		return fmt.Errorf("failed to map [canopy] section: %w", err)
	}
	if err := file.Section("canopy.proxy").MapTo(cfg); err != nil {
		return fmt.Errorf("failed to map [canopy.proxy] section: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CANOPY_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("CANOPY_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("CANOPY_PROXY_PASSWORD"); v != "" {
		cfg.ProxyPassword = v
	}
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return ErrMissingBaseURL
	}
	if c.PageSize < 1 || c.PageSize > 500 {
		return ErrInvalidPageSize
	}
	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return fmt.Errorf("unsupported proxy mode: %s", c.ProxyMode)
	}
	return nil
}

// Save writes the configuration to the given path, creating parent
// directories as needed. The proxy password is never written.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file := ini.Empty()
	sec := file.Section("canopy")
	sec.Key("api_url").SetValue(c.APIBaseURL)
	if c.APIToken != "" {
		sec.Key("api_token").SetValue(c.APIToken)
	}
	sec.Key("page_size").SetValue(fmt.Sprintf("%d", c.PageSize))

	proxy := file.Section("canopy.proxy")
	proxy.Key("mode").SetValue(c.ProxyMode)
	if c.ProxyHost != "" {
		proxy.Key("host").SetValue(c.ProxyHost)
	}
	if c.ProxyPort != 0 {
		proxy.Key("port").SetValue(fmt.Sprintf("%d", c.ProxyPort))
	}
	if c.ProxyUser != "" {
		proxy.Key("user").SetValue(c.ProxyUser)
	}
	if c.NoProxy != "" {
		proxy.Key("no_proxy").SetValue(c.NoProxy)
	}

	if err := file.SaveTo(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Chmod(path, 0o600)
}
