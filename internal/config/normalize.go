// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"strings"

	"github.com/Thermoquad/stradus/pkg/stradus"
)

// Normalize fills zero values with defaults.
// It must only be called after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	c := &cfg.Connection
	if c.Baud == 0 {
		c.Baud = stradus.DefaultBaudRate
	}
	if c.DataBits == 0 {
		c.DataBits = stradus.DefaultDataBits
	}
	c.Timeout = stradus.ClampTimeout(c.Timeout)
	if c.StrictTimeout == nil {
		strict := true
		c.StrictTimeout = &strict
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}

	if cfg.Monitor.Interval == 0 {
		cfg.Monitor.Interval = DefaultMonitorInterval
	}
}
