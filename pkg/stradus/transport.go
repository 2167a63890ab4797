// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is a byte channel with serial-port timeout semantics.
//
// Read must return (0, nil) once the read timeout elapses without data, which
// is how go.bug.st/serial behaves. serial.Port satisfies this interface.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(timeout time.Duration) error
	ResetInputBuffer() error
}

// SerialConfig describes the serial line configuration
type SerialConfig struct {
	BaudRate int
	DataBits int
}

// DefaultSerialConfig returns 19200 baud 8N1
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{BaudRate: DefaultBaudRate, DataBits: DefaultDataBits}
}

// Normalize fills zero fields with the protocol defaults
func (c SerialConfig) Normalize() SerialConfig {
	if c.BaudRate <= 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.DataBits <= 0 {
		c.DataBits = DefaultDataBits
	}
	return c
}

// Mode converts the configuration to a serial.Mode: no parity, one stop bit.
// The controller does not use software flow control, and go.bug.st/serial
// never enables it.
func (c SerialConfig) Mode() *serial.Mode {
	c = c.Normalize()
	return &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// ReadResult is the outcome of Transport.ReadUntil.
//
// Data holds every byte consumed by the call, including the delimiter when it
// was found. TimedOut reports that the timeout elapsed before the delimiter
// arrived; Data may still hold a partial frame in that case. Err is set only
// for channel failures and wraps ErrIO.
type ReadResult struct {
	Data     []byte
	TimedOut bool
	Err      error
}

// Transport owns a Port exclusively and provides delimiter-bounded reads.
// Bytes received past a delimiter are kept for the next read.
type Transport struct {
	port    Port
	buf     []byte
	pending []byte
	closed  bool
}

// OpenTransport opens a serial endpoint such as /dev/ttyUSB0 or COM3
func OpenTransport(endpoint string, cfg SerialConfig) (*Transport, error) {
	port, err := serial.Open(endpoint, cfg.Mode())
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrConnection, endpoint, err)
	}
	return NewTransport(port), nil
}

// NewTransport wraps an already opened port
func NewTransport(port Port) *Transport {
	return &Transport{
		port: port,
		buf:  make([]byte, readChunkSize),
	}
}

// Write sends the full buffer or fails with ErrIO
func (t *Transport) Write(data []byte) error {
	if t.closed {
		return ErrClosed
	}
	n, err := t.port.Write(data)
	if err != nil {
		return fmt.Errorf("%w: write: %v", ErrIO, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: short write (%d of %d bytes)", ErrIO, n, len(data))
	}
	return nil
}

// ReadUntil accumulates bytes until delim is seen or timeout elapses
func (t *Transport) ReadUntil(delim []byte, timeout time.Duration) ReadResult {
	if t.closed {
		return ReadResult{Err: ErrClosed}
	}

	deadline := time.Now().Add(timeout)
	for {
		if i := bytes.Index(t.pending, delim); i >= 0 {
			return ReadResult{Data: t.take(i + len(delim))}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ReadResult{Data: t.take(len(t.pending)), TimedOut: true}
		}

		if err := t.port.SetReadTimeout(remaining); err != nil {
			return ReadResult{Data: t.take(len(t.pending)), Err: fmt.Errorf("%w: set read timeout: %v", ErrIO, err)}
		}

		n, err := t.port.Read(t.buf)
		if n > 0 {
			t.pending = append(t.pending, t.buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return ReadResult{Data: t.take(len(t.pending)), Err: fmt.Errorf("%w: read: %v", ErrIO, err)}
		}
	}
}

// take removes the first n pending bytes and returns them as a fresh slice
func (t *Transport) take(n int) []byte {
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, t.pending[:n])
	t.pending = append(t.pending[:0], t.pending[n:]...)
	return out
}

// Buffered returns the number of bytes retained from earlier reads
func (t *Transport) Buffered() int {
	return len(t.pending)
}

// ResetInputBuffer discards stale bytes in the port and in the transport
func (t *Transport) ResetInputBuffer() error {
	if t.closed {
		return ErrClosed
	}
	t.pending = t.pending[:0]
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("%w: reset input buffer: %v", ErrIO, err)
	}
	return nil
}

// Close releases the port. Closing twice is a no-op.
func (t *Transport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.port.Close()
}
