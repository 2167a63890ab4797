// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Thermoquad/stradus/internal/logging"
	"github.com/Thermoquad/stradus/pkg/stradus"
)

// Validate checks configuration correctness.
// It does not mutate cfg; zero values are left for Normalize.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	c := cfg.Connection

	sources := 0
	if c.Port != "" {
		sources++
	}
	if c.URL != "" {
		sources++
	}
	if c.Simulate {
		sources++
	}
	if sources > 1 {
		return fmt.Errorf("connection: port, url and simulate are mutually exclusive")
	}

	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return fmt.Errorf("connection: invalid url: %v", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("connection: unsupported url scheme %q (use ws:// or wss://)", u.Scheme)
		}
	}

	if c.Baud < 0 {
		return fmt.Errorf("connection: baud must be positive, got %d", c.Baud)
	}
	if c.DataBits != 0 && (c.DataBits < 5 || c.DataBits > 8) {
		return fmt.Errorf("connection: data_bits must be 5-8, got %d", c.DataBits)
	}
	if c.Timeout != 0 && (c.Timeout < stradus.MinTimeout || c.Timeout > stradus.MaxTimeout) {
		return fmt.Errorf("connection: timeout %v outside %v-%v", c.Timeout, stradus.MinTimeout, stradus.MaxTimeout)
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", logging.FormatConsole, logging.FormatJSON, logging.FormatText:
	default:
		return fmt.Errorf("log: unknown format %q (use console, json or text)", cfg.Log.Format)
	}

	if cfg.Monitor.Interval < 0 {
		return fmt.Errorf("monitor: interval must not be negative")
	}

	return nil
}
