// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulator provides an in-memory Stradus controller that behaves
// like a serial port: writes are parsed as '\r'-terminated request lines and
// replies become readable as "\r\n{payload}\r\n", honoring the read timeout.
package simulator

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrClosed is returned by Read and Write after Close
var ErrClosed = errors.New("simulator: device closed")

// Fault register values used by the simulator. The low three bits hold the
// operating state: 0 while emitting, 1 in standby.
const (
	stateStandby        = 1
	faultInvalidCommand = 1 << 4
	faultInterlockOpen  = 1 << 5
	latchedFaultMask    = 0xFFF8
)

// Prompt is the text a controller prints when prompt mode is on
const Prompt = "Stradus>"

// defaultRegisters is the power-up state of a 405 nm, 100 mW head
var defaultRegisters = map[string]string{
	"?BPT":   "25.3",
	"?SFV":   "1.0.17",
	"?SPV":   "1.6",
	"?C":     "0",
	"?CC":    "1",
	"?DELAY": "1",
	"?ECHO":  "1",
	"?EPC":   "0",
	"?FC":    "1",
	"?FD":    "No faults",
	"?FP":    "1.6",
	"?FV":    "2.5.4",
	"?H":     "Stradus command set, see operator manual",
	"?IL":    "1",
	"?LC":    "0.0",
	"?LCS":   "85.0",
	"?LE":    "0",
	"?LH":    "1234:56",
	"?LI":    "Stradus 405-100 SN 12345",
	"?LP":    "0.0",
	"?LPS":   "50.0",
	"?LW":    "405",
	"?MAXP":  "110.0",
	"?OBT":   "25.0",
	"?OBTS":  "25.0",
	"?PP":    "50",
	"?RP":    "100.0",
	"?PUL":   "0",
	"?TEC":   "1",
}

// commandRegisters maps a settable command to the query register it updates
var commandRegisters = map[string]string{
	"ECHO":  "?ECHO",
	"C":     "?C",
	"DELAY": "?DELAY",
	"EPC":   "?EPC",
	"LE":    "?LE",
	"LP":    "?LPS",
	"LC":    "?LCS",
	"PP":    "?PP",
	"PUL":   "?PUL",
	"TEC":   "?TEC",
}

// Device is a simulated Stradus controller
type Device struct {
	mu sync.Mutex

	registers *xsync.MapOf[string, string]
	overrides *xsync.MapOf[string, string]

	in      []byte
	out     []byte
	readyAt time.Time
	ready   chan struct{}

	timeout time.Duration
	latency time.Duration
	spaced  bool
	silent  bool
	prompt  bool
	closed  bool

	lines []string
}

// Option configures a Device
type Option func(*Device)

// WithLatency delays every reply by d
func WithLatency(d time.Duration) Option {
	return func(dev *Device) {
		dev.latency = d
	}
}

// WithSpacedReplies renders query replies as "?TOK= value"
func WithSpacedReplies() Option {
	return func(dev *Device) {
		dev.spaced = true
	}
}

// WithSilence makes the device swallow every request
func WithSilence() Option {
	return func(dev *Device) {
		dev.silent = true
	}
}

// WithRegister sets the initial value returned for a query token
func WithRegister(token, value string) Option {
	return func(dev *Device) {
		dev.registers.Store(token, value)
	}
}

// WithoutEcho starts the device with echo and prompt already disabled
func WithoutEcho() Option {
	return func(dev *Device) {
		dev.registers.Store("?ECHO", "0")
		dev.prompt = false
	}
}

// New creates a device in its power-up state: echo and prompt enabled
func New(opts ...Option) *Device {
	dev := &Device{
		registers: xsync.NewMapOf[string, string](),
		overrides: xsync.NewMapOf[string, string](),
		ready:     make(chan struct{}, 1),
		timeout:   -1,
		prompt:    true,
	}
	for token, value := range defaultRegisters {
		dev.registers.Store(token, value)
	}
	for _, opt := range opts {
		opt(dev)
	}
	return dev
}

////////////////////////////////////////////////////////////////
// Port interface
////////////////////////////////////////////////////////////////

// Read blocks until reply bytes are available or the read timeout elapses,
// returning (0, nil) on timeout like a serial port
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	timeout := d.timeout
	d.mu.Unlock()

	var deadline <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return 0, ErrClosed
		}
		pending := len(d.out) > 0
		wait := time.Until(d.readyAt)
		if pending && wait <= 0 {
			n := copy(p, d.out)
			d.out = d.out[n:]
			d.mu.Unlock()
			return n, nil
		}
		d.mu.Unlock()

		var delayed <-chan time.Time
		if pending {
			delayed = time.After(wait)
		}

		select {
		case <-d.ready:
		case <-delayed:
		case <-deadline:
			return 0, nil
		}
	}
}

// Write accepts request bytes and answers every complete line
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}

	d.in = append(d.in, p...)
	for {
		i := strings.IndexByte(string(d.in), '\r')
		if i < 0 {
			break
		}
		line := string(d.in[:i])
		d.in = d.in[i+1:]
		d.handleLine(line)
	}
	return len(p), nil
}

// SetReadTimeout sets the Read timeout; negative blocks forever
func (d *Device) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeout = t
	return nil
}

// ResetInputBuffer discards unread reply bytes
func (d *Device) ResetInputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = nil
	return nil
}

// Close makes further reads and writes fail
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.signal()
	return nil
}

////////////////////////////////////////////////////////////////
// Test and demo controls
////////////////////////////////////////////////////////////////

// SetRegister changes the value returned for a query token
func (d *Device) SetRegister(token, value string) {
	d.registers.Store(token, value)
}

// Register returns the current value of a query register
func (d *Device) Register(token string) (string, bool) {
	return d.registers.Load(token)
}

// SetReply overrides the whole payload frame sent for a query token
func (d *Device) SetReply(token, payload string) {
	d.overrides.Store(token, payload)
}

// ClearReply removes a payload override
func (d *Device) ClearReply(token string) {
	d.overrides.Delete(token)
}

// SetFaultCode sets the fault register
func (d *Device) SetFaultCode(code uint16) {
	d.registers.Store("?FC", strconv.Itoa(int(code)))
}

// SetSilent switches silent mode, in which requests are never answered
func (d *Device) SetSilent(silent bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent = silent
}

// Inject queues raw bytes for the host to read, as if received on the line
func (d *Device) Inject(raw []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = append(d.out, raw...)
	d.signal()
}

// Lines returns every request line received, in order
func (d *Device) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}

// Echo reports whether character echo is on
func (d *Device) Echo() bool {
	v, _ := d.registers.Load("?ECHO")
	return v == "1"
}

// PromptEnabled reports whether prompt mode is on
func (d *Device) PromptEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prompt
}

////////////////////////////////////////////////////////////////
// Request handling (called with mu held)
////////////////////////////////////////////////////////////////

func (d *Device) handleLine(line string) {
	d.lines = append(d.lines, line)
	if d.silent {
		return
	}

	var lead string
	if echo, _ := d.registers.Load("?ECHO"); echo == "1" {
		lead = line + "\r"
	}
	if d.prompt {
		lead += Prompt
	}

	payload := d.respond(strings.TrimSpace(line))
	d.out = append(d.out, lead+"\r\n"+payload+"\r\n"...)
	d.readyAt = time.Now().Add(d.latency)
	d.signal()
}

// respond applies a request and returns the payload frame
func (d *Device) respond(line string) string {
	if strings.HasPrefix(line, "?") {
		if raw, ok := d.overrides.Load(line); ok {
			return raw
		}
		value, ok := d.registers.Load(line)
		if !ok {
			d.raiseFault(faultInvalidCommand)
			return ""
		}
		if d.spaced {
			return line + "= " + value
		}
		return line + "=" + value
	}

	token, value, _ := strings.Cut(line, "=")
	token = strings.ToUpper(strings.TrimSpace(token))
	value = strings.TrimSpace(value)

	switch token {
	case "PROMPT":
		d.prompt = value == "1"
	case "CFC":
		d.clearFaults()
	case "RFC":
	case "LE":
		d.registers.Store("?LE", value)
		d.updateEmission(value == "1")
	default:
		register, ok := commandRegisters[token]
		if !ok {
			d.raiseFault(faultInvalidCommand)
			return ""
		}
		d.registers.Store(register, value)
		if token == "LP" {
			if le, _ := d.registers.Load("?LE"); le == "1" {
				d.registers.Store("?LP", value)
			}
		}
	}
	return ""
}

func (d *Device) updateEmission(on bool) {
	if !on {
		d.registers.Store("?LP", "0.0")
		d.registers.Store("?LC", "0.0")
		d.setStateBits(stateStandby)
		return
	}
	if il, _ := d.registers.Load("?IL"); il != "1" {
		d.raiseFault(faultInterlockOpen)
		d.registers.Store("?LE", "0")
		return
	}
	setpoint, _ := d.registers.Load("?LPS")
	current, _ := d.registers.Load("?LCS")
	d.registers.Store("?LP", setpoint)
	d.registers.Store("?LC", current)
	d.setStateBits(0)
}

func (d *Device) faultCode() int {
	v, _ := d.registers.Load("?FC")
	code, _ := strconv.Atoi(v)
	return code
}

func (d *Device) raiseFault(bit int) {
	d.registers.Store("?FC", strconv.Itoa(d.faultCode()|bit))
}

func (d *Device) clearFaults() {
	d.registers.Store("?FC", strconv.Itoa(d.faultCode()&^latchedFaultMask))
}

// setStateBits replaces the emission/standby/warmup bits, keeping faults
func (d *Device) setStateBits(bits int) {
	code := d.faultCode()&latchedFaultMask | bits
	d.registers.Store("?FC", strconv.Itoa(code))
}

func (d *Device) signal() {
	select {
	case d.ready <- struct{}{}:
	default:
	}
}
