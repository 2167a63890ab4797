// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"github.com/Thermoquad/stradus/internal/simulator"
	"github.com/Thermoquad/stradus/pkg/stradus"
)

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketPort carries raw serial bytes over a WebSocket serial bridge.
// It implements stradus.Port: reads honor the read timeout and return
// (0, nil) when it elapses, like a serial port.
type WebSocketPort struct {
	conn *websocket.Conn

	messages chan []byte
	failed   chan struct{}
	done     chan struct{}
	readErr  error

	buf []byte

	mu      sync.Mutex
	timeout time.Duration

	closeOnce sync.Once
}

func newWebSocketPort(conn *websocket.Conn) *WebSocketPort {
	w := &WebSocketPort{
		conn:     conn,
		messages: make(chan []byte, 64),
		failed:   make(chan struct{}),
		done:     make(chan struct{}),
		timeout:  -1,
	}
	go w.readLoop()
	return w
}

// readLoop moves binary messages into the channel until the connection fails
func (w *WebSocketPort) readLoop() {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.readErr = fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			close(w.failed)
			return
		}

		// The bridge only forwards serial bytes as binary messages
		if messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case w.messages <- data:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocketPort) Read(p []byte) (int, error) {
	// If we have buffered data, return it first
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		return n, nil
	}

	w.mu.Lock()
	timeout := w.timeout
	w.mu.Unlock()

	var deadline <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case data := <-w.messages:
		n := copy(p, data)
		w.buf = data[n:]
		return n, nil
	case <-w.failed:
		return 0, w.readErr
	case <-deadline:
		return 0, nil
	}
}

func (w *WebSocketPort) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetReadTimeout sets the Read timeout; negative blocks until data arrives
func (w *WebSocketPort) SetReadTimeout(t time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeout = t
	return nil
}

// ResetInputBuffer drops every message received but not yet read
func (w *WebSocketPort) ResetInputBuffer() error {
	w.buf = nil
	for {
		select {
		case <-w.messages:
		default:
			return nil
		}
	}
}

func (w *WebSocketPort) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.conn.Close()
	})
	return err
}

// OpenWebSocketPort opens a WebSocket serial bridge with HTTP Basic auth
func OpenWebSocketPort(wsURL, username, password string, skipSSLVerify bool) (*WebSocketPort, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: WebSocket connection failed (HTTP %d): %v", stradus.ErrConnection, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: WebSocket connection failed: %v", stradus.ErrConnection, err)
	}

	return newWebSocketPort(conn), nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("STRADUS_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// session is one open laser plus the sinks attached to it
type session struct {
	laser   *stradus.Laser
	info    string
	stats   *stradus.Statistics
	capture *stradus.CaptureSink
	file    *os.File

	opts     []stradus.Option
	password string
}

// Close releases the laser and finishes the capture file
func (s *session) Close() error {
	var err error
	if s.laser != nil {
		err = s.laser.Close()
		s.laser = nil
	}
	if s.file != nil {
		if cerr := s.capture.Err(); cerr != nil {
			logger.Error("capture incomplete", "error", cerr)
		}
		if ferr := s.file.Close(); err == nil {
			err = ferr
		}
		logger.Info("capture written", "file", s.file.Name(), "events", s.capture.Count())
		s.file = nil
	}
	return err
}

// describeConnection returns the human-readable endpoint for the current config
func describeConnection() (string, error) {
	c := cfg.Connection
	switch {
	case c.Simulate:
		return "Simulator", nil
	case c.URL != "":
		return fmt.Sprintf("WebSocket: %s", c.URL), nil
	case c.Port != "":
		return fmt.Sprintf("Serial: %s @ %d baud", c.Port, c.Baud), nil
	}
	return "", fmt.Errorf("one of --port, --url or --simulate must be specified")
}

// openSession connects to the laser selected by flags and config.
// Extra sinks receive every wire event alongside the log and capture sinks.
func openSession(extra ...stradus.EventSink) (*session, error) {
	info, err := describeConnection()
	if err != nil {
		return nil, err
	}

	s := &session{
		info:  info,
		stats: stradus.NewStatistics(),
	}

	sinks := stradus.MultiSink{stradus.NewLogSink(logger), s.stats}
	sinks = append(sinks, extra...)

	if cfg.Capture.File != "" {
		f, err := os.Create(cfg.Capture.File)
		if err != nil {
			return nil, fmt.Errorf("create capture file: %w", err)
		}
		capture, err := stradus.NewCaptureSink(f, info)
		if err != nil {
			f.Close()
			return nil, err
		}
		s.file = f
		s.capture = capture
		sinks = append(sinks, capture)
	}

	s.opts = []stradus.Option{
		stradus.WithTimeout(cfg.Connection.Timeout),
		stradus.WithStrictTimeout(cfg.Strict()),
		stradus.WithEventSink(sinks),
		stradus.WithLogger(logger),
		stradus.WithSerialConfig(cfg.SerialConfig()),
	}

	if cfg.Connection.URL != "" && cfg.Connection.Username != "" {
		s.password, err = GetPassword()
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	if err := s.dial(); err != nil {
		s.Close()
		return nil, err
	}

	logger.Debug("connected", "connection", info)
	return s, nil
}

// dial opens the configured channel and initializes a laser on it. Sinks,
// statistics and the capture file carry over between dials.
func (s *session) dial() error {
	c := cfg.Connection

	var (
		laser *stradus.Laser
		err   error
	)
	switch {
	case c.Simulate:
		device := simulator.New(simulator.WithLatency(2 * time.Millisecond))
		laser, err = stradus.New(device, s.opts...)

	case c.URL != "":
		var port *WebSocketPort
		port, err = OpenWebSocketPort(c.URL, c.Username, s.password, c.NoSSLVerify)
		if err != nil {
			return err
		}
		laser, err = stradus.New(port, s.opts...)

	default:
		laser, err = stradus.Open(c.Port, s.opts...)
	}
	if err != nil {
		return err
	}

	s.laser = laser
	return nil
}

// hangup closes the current laser but keeps the session for a later dial
func (s *session) hangup() {
	if s.laser != nil {
		_ = s.laser.Close()
		s.laser = nil
	}
}
