// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import (
	"log/slog"
	"time"
)

// Option configures an Engine or Laser
type Option func(*options)

type options struct {
	timeout time.Duration
	strict  bool
	sink    EventSink
	logger  *slog.Logger
	serial  SerialConfig
}

func buildOptions(opts []Option) options {
	o := options{
		timeout: DefaultTimeout,
		strict:  true,
		sink:    NopSink{},
		logger:  slog.Default(),
		serial:  DefaultSerialConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTimeout sets the per-phase read timeout, clamped to MinTimeout..MaxTimeout
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = ClampTimeout(d)
	}
}

// WithStrictTimeout controls whether an empty timed-out phase is an error.
// Strict is the default.
func WithStrictTimeout(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithEventSink sets the receiver of wire events
func WithEventSink(sink EventSink) Option {
	return func(o *options) {
		if sink == nil {
			sink = NopSink{}
		}
		o.sink = sink
	}
}

// WithLogger sets the logger used for driver warnings
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSerialConfig sets the line configuration used by Open
func WithSerialConfig(cfg SerialConfig) Option {
	return func(o *options) {
		o.serial = cfg.Normalize()
	}
}

// ClampTimeout limits d to the supported timeout range. Zero selects the
// default.
func ClampTimeout(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultTimeout
	case d < MinTimeout:
		return MinTimeout
	case d > MaxTimeout:
		return MaxTimeout
	default:
		return d
	}
}
