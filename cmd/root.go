// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/stradus/internal/config"
	"github.com/Thermoquad/stradus/internal/logging"
	"github.com/Thermoquad/stradus/pkg/stradus"
)

var (
	// Serial connection flags
	portName      string
	baudRate      int
	readTimeout   time.Duration
	strictTimeout bool

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Simulated controller
	simulate bool

	// Ambient flags
	configPath  string
	logLevel    string
	logFormat   string
	capturePath string
)

var (
	cfg    = config.Default()
	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "stradus",
	Short: "Vortran Stradus laser controller CLI",
	Long: `Stradus - A CLI tool for controlling and monitoring Vortran Stradus diode lasers.

Provides typed access to every controller command and query, a status monitor
with an optional Prometheus endpoint, an interactive shell, and frame capture
for diagnosing communication issues.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 19200]
  WebSocket: --url ws://host/path [--username user]
  Simulator: --simulate

For WebSocket authentication, the password is read from the STRADUS_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Settings may also be read from a YAML file with --config; flags given on the
command line override the file.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", stradus.DefaultBaudRate, "Baud rate (serial only)")
	rootCmd.PersistentFlags().DurationVar(&readTimeout, "timeout", stradus.DefaultTimeout, "Reply timeout per frame (100ms-30s)")
	rootCmd.PersistentFlags().BoolVar(&strictTimeout, "strict-timeout", true, "Fail exchanges that receive no bytes before the timeout")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Use the built-in simulated controller")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console, json, text)")
	rootCmd.PersistentFlags().StringVar(&capturePath, "capture", "", "Write every frame to a CBOR capture file")
}

// setup loads the configuration file, applies explicitly set flags on top of
// it and installs the logger
func setup(cmd *cobra.Command, args []string) error {
	c := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		c = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		c.Connection.Port = portName
	}
	if flags.Changed("baud") {
		c.Connection.Baud = baudRate
	}
	if flags.Changed("timeout") {
		c.Connection.Timeout = readTimeout
	}
	if flags.Changed("strict-timeout") {
		c.Connection.StrictTimeout = &strictTimeout
	}
	if flags.Changed("url") {
		c.Connection.URL = wsURL
	}
	if flags.Changed("username") {
		c.Connection.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		c.Connection.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("simulate") {
		c.Connection.Simulate = simulate
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		c.Log.Format = logFormat
	}
	if flags.Changed("capture") {
		c.Capture.File = capturePath
	}

	if err := config.Validate(c); err != nil {
		return err
	}
	config.Normalize(c)

	l, _, err := logging.New(os.Stderr, c.Log.Format, c.Log.Level)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	slog.SetDefault(l)

	cfg = c
	logger = l
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
