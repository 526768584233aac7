package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultAPIOrigin is used when config.toml is missing or leaves api_origin empty.
const DefaultAPIOrigin = "http://127.0.0.1:8000"

// Config represents the global ~/.homechat/config.toml.
type Config struct {
	APIOrigin            string `toml:"api_origin"`
	TransportEndpoint    string `toml:"transport_endpoint"`
	DefaultSession       string `toml:"default_session"`
	DesktopNotifications *bool  `toml:"desktop_notifications"`
}

// Default returns a config with all defaults applied.
func Default() *Config {
	return (&Config{}).withDefaults()
}

func (c *Config) withDefaults() *Config {
	if c.APIOrigin == "" {
		c.APIOrigin = DefaultAPIOrigin
	}
	return c
}

// NotificationsEnabled reports whether desktop notifications are on.
// Unset means enabled.
func (c *Config) NotificationsEnabled() bool {
	return c.DesktopNotifications == nil || *c.DesktopNotifications
}

// WSEndpoint returns the websocket endpoint for the chat transport. The
// explicit transport_endpoint override wins; otherwise it is derived from
// the API origin by swapping the scheme (http→ws, https→wss) and appending
// the chat socket path.
func (c *Config) WSEndpoint() (string, error) {
	if c.TransportEndpoint != "" {
		return c.TransportEndpoint, nil
	}
	u, err := url.Parse(c.APIOrigin)
	if err != nil {
		return "", fmt.Errorf("parse api origin: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/chat/ws"
	return u.String(), nil
}

// Load reads config from the given path. A missing file yields the default
// config; a malformed file is an error.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg.withDefaults(), nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
