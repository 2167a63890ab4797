// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import (
	"context"
	"log/slog"
	"time"
)

// EventKind identifies what happened on the wire
type EventKind uint8

// Event kinds
const (
	EventSent     EventKind = iota // request frame written
	EventReceived                  // reply frame read
	EventTimeout                   // phase ended without a delimiter
	EventError                     // channel failure
)

func (k EventKind) String() string {
	switch k {
	case EventSent:
		return "SENT"
	case EventReceived:
		return "RECEIVED"
	case EventTimeout:
		return "TIMEOUT"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is one frame-level diagnostic record produced by the Engine.
//
// Phase is 0 for the request, 1 for the leading reply frame and 2 for the
// payload frame. Elapsed is measured from the start of the phase.
type Event struct {
	Time    time.Time     `cbor:"1,keyasint"`
	Kind    EventKind     `cbor:"2,keyasint"`
	Frame   string        `cbor:"3,keyasint,omitempty"`
	Phase   int           `cbor:"4,keyasint"`
	Elapsed time.Duration `cbor:"5,keyasint"`
	Err     string        `cbor:"6,keyasint,omitempty"`
}

// EventSink receives wire events. Implementations must not call back into
// the Engine.
type EventSink interface {
	Record(ev Event)
}

// NopSink discards every event
type NopSink struct{}

func (NopSink) Record(Event) {}

// MultiSink fans an event out to several sinks in order
type MultiSink []EventSink

func (m MultiSink) Record(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Record(ev)
		}
	}
}

// LogSink writes events to a slog.Logger.
// Frames are logged at debug level, timeouts at warn and failures at error.
type LogSink struct {
	Logger *slog.Logger
}

// NewLogSink returns a sink logging to logger, or to slog.Default when nil
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{Logger: logger}
}

func (s *LogSink) Record(ev Event) {
	level := slog.LevelDebug
	switch ev.Kind {
	case EventTimeout:
		level = slog.LevelWarn
	case EventError:
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("kind", ev.Kind.String()),
		slog.Int("phase", ev.Phase),
		slog.Duration("elapsed", ev.Elapsed),
	}
	if ev.Frame != "" {
		attrs = append(attrs, slog.String("frame", quoteFrame(ev.Frame)))
	}
	if ev.Err != "" {
		attrs = append(attrs, slog.String("error", ev.Err))
	}
	s.Logger.LogAttrs(context.Background(), level, "stradus frame", attrs...)
}
