// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rnetstat/internal/config"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Configuration
	configFile       string
	logLevel         string
	handshakeTimeout time.Duration

	cfg       *config.Config
	logger    zerolog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "rnetstat",
	Short: "RNet Serial Bus Analyzer",
	Long: `rnetstat - A CLI tool for monitoring, analyzing and controlling RNet
multi-zone audio controllers.

Provides commands for raw packet logging, error detection, zone scanning and
zone control, plus a WebSocket bridge that shares one serial bus with remote
clients.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 19200]
  WebSocket: --url ws://host/path [--username user]

Settings may also come from a YAML file given with --config; flags override
the file.

For WebSocket authentication, the password is read from the RNET_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 19200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().DurationVar(&handshakeTimeout, "handshake-timeout", 0, "How long to wait for a controller handshake (default 3s)")
}

// loadSettings builds the effective configuration (defaults, then the config
// file, then explicitly set flags) and sets up the logger
func loadSettings(cmd *cobra.Command, args []string) error {
	var err error
	if configFile != "" {
		cfg, err = config.LoadConfig(configFile)
		if err != nil {
			return err
		}
	} else {
		cfg = config.LoadDefaultConfig()
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Serial.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.WebSocket.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.WebSocket.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.WebSocket.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("handshake-timeout") {
		cfg.Session.HandshakeTimeout = handshakeTimeout
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid settings")
	}

	logger, logCloser, err = config.SetupLogger(&cfg.Log)
	if err != nil {
		return err
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
