// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultConfig(t *testing.T) {
	cfg := LoadDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 19200, cfg.Serial.Baud)
	assert.Equal(t, 3*time.Second, cfg.Session.HandshakeTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "/ws", cfg.Bridge.Path)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rnetstat.yaml")
	data := `
serial:
  port: /dev/ttyUSB0
session:
  handshake_timeout: 1500ms
store:
  enabled: true
  path: zones.db
zones:
  - controller: 1
    zone: 0
    name: Kitchen
  - controller: 1
    zone: 3
    name: Patio
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 19200, cfg.Serial.Baud, "unset fields keep defaults")
	assert.Equal(t, 1500*time.Millisecond, cfg.Session.HandshakeTimeout)
	assert.True(t, cfg.Store.Enabled)
	assert.Equal(t, "zones.db", cfg.Store.Path)
	require.Len(t, cfg.Zones, 2)
	assert.Equal(t, "Patio", cfg.ZoneName(1, 3))
	assert.Equal(t, "", cfg.ZoneName(2, 0))
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("serial: [unclosed"), 0644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("zones:\n  - controller: 1\n    zone: 9\n"), 0644))
	_, err = LoadConfig(invalid)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero baud", func(c *Config) { c.Serial.Baud = 0 }},
		{"negative timeout", func(c *Config) { c.Session.HandshakeTimeout = -time.Second }},
		{"store without path", func(c *Config) { c.Store.Enabled = true; c.Store.Path = "" }},
		{"bridge path", func(c *Config) { c.Bridge.Path = "ws" }},
		{"broadcast controller", func(c *Config) { c.Zones = []ZoneConfig{{Controller: 0x7E}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := LoadDefaultConfig()
	cfg.WebSocket.URL = "wss://bridge.local/ws"
	cfg.Zones = []ZoneConfig{{Controller: 2, Zone: 1, Name: "Den"}}

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSetupLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rnetstat.log")
	logger, closer, err := SetupLogger(&LogConfig{Level: "debug", FilePath: path})
	require.NoError(t, err)

	logger.Debug().Str("port", "/dev/null").Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"level":"debug"`)
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}

func TestSetupLogger_NoOutputs(t *testing.T) {
	logger, closer, err := SetupLogger(&LogConfig{Level: "bogus"})
	require.NoError(t, err)
	require.NotNil(t, closer)
	assert.Equal(t, zerolog.Disabled, logger.GetLevel())
}
