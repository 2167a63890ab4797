// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the optional stradus YAML configuration file
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/stradus/pkg/stradus"
)

type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Log        LogConfig        `yaml:"log"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Capture    CaptureConfig    `yaml:"capture"`
}

// ---- CONNECTION ----

type ConnectionConfig struct {
	Port          string        `yaml:"port"`
	Baud          int           `yaml:"baud"`
	DataBits      int           `yaml:"data_bits"`
	Timeout       time.Duration `yaml:"timeout"`
	StrictTimeout *bool         `yaml:"strict_timeout"`

	// WebSocket serial bridge
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`

	Simulate bool `yaml:"simulate"`
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---- MONITOR ----

type MonitorConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

// ---- CAPTURE ----

type CaptureConfig struct {
	File string `yaml:"file"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	strict := true
	return &Config{
		Connection: ConnectionConfig{
			Baud:          stradus.DefaultBaudRate,
			DataBits:      stradus.DefaultDataBits,
			Timeout:       stradus.DefaultTimeout,
			StrictTimeout: &strict,
			Username:      "admin",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Monitor: MonitorConfig{
			Interval: DefaultMonitorInterval,
		},
	}
}

// DefaultMonitorInterval is the status polling period
const DefaultMonitorInterval = time.Second

// Load reads, normalizes and validates a YAML file. Fields missing from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	Normalize(cfg)
	return cfg, nil
}

// SerialConfig returns the line settings for stradus.OpenTransport
func (c *Config) SerialConfig() stradus.SerialConfig {
	return stradus.SerialConfig{
		BaudRate: c.Connection.Baud,
		DataBits: c.Connection.DataBits,
	}.Normalize()
}

// Strict reports whether empty timed-out reads fail the exchange
func (c *Config) Strict() bool {
	return c.Connection.StrictTimeout == nil || *c.Connection.StrictTimeout
}
