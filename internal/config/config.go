// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads rnetstat's YAML configuration.
package config

import (
	"os"
	"time"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

// Config represents the rnetstat configuration
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Log       LogConfig       `yaml:"log"`
	Session   SessionConfig   `yaml:"session"`
	Store     StoreConfig     `yaml:"store"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Zones     []ZoneConfig    `yaml:"zones"`
}

// SerialConfig represents the serial port connection
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// WebSocketConfig represents a connection through a WebSocket bridge
type WebSocketConfig struct {
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`    // "json" or "console"
	FilePath string `yaml:"file_path"` // Path to log file
	Console  bool   `yaml:"console"`   // Whether to log to stderr
}

// SessionConfig represents transaction sequencing options
type SessionConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// StoreConfig represents the zone state database
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// BridgeConfig represents the WebSocket bridge server
type BridgeConfig struct {
	Listen   string `yaml:"listen"`
	Path     string `yaml:"path"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ZoneConfig names one zone
type ZoneConfig struct {
	Controller byte   `yaml:"controller"`
	Zone       byte   `yaml:"zone"`
	Name       string `yaml:"name"`
}

// LoadDefaultConfig returns a default configuration
func LoadDefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Baud: 19200,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Console: true,
		},
		Session: SessionConfig{
			HandshakeTimeout: 3 * time.Second,
		},
		Store: StoreConfig{
			Path: "rnetstat.db",
		},
		Bridge: BridgeConfig{
			Listen: ":8080",
			Path:   "/ws",
		},
	}
}

// LoadConfig loads configuration from a file. Missing fields keep their
// default values.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	config := LoadDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "parse config file")
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}

	return config, nil
}

// SaveConfig saves configuration to a file
func SaveConfig(config *Config, filename string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "write config file")
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return errors.Errorf("serial baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Session.HandshakeTimeout < 0 {
		return errors.Errorf("handshake_timeout must not be negative, got %s", c.Session.HandshakeTimeout)
	}
	if c.Store.Enabled && c.Store.Path == "" {
		return errors.New("store path is required when the store is enabled")
	}
	if c.Bridge.Path == "" || c.Bridge.Path[0] != '/' {
		return errors.Errorf("bridge path must start with '/', got %q", c.Bridge.Path)
	}

	for i, z := range c.Zones {
		if z.Controller >= rnet.AllControllers {
			return errors.Errorf("zone %d: controller %d out of range", i, z.Controller)
		}
		if z.Zone >= rnet.MaxZones {
			return errors.Errorf("zone %d: zone %d out of range (max %d)", i, z.Zone, rnet.MaxZones-1)
		}
	}

	return nil
}

// ZoneName returns the configured name of a zone, or "" when unnamed
func (c *Config) ZoneName(controller, zone byte) string {
	for _, z := range c.Zones {
		if z.Controller == controller && z.Zone == zone {
			return z.Name
		}
	}
	return ""
}
