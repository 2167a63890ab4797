// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/stradus/pkg/stradus"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive TUI for controlling a Stradus laser",
	Long: `Control a Stradus laser via an interactive terminal UI.

Features:
  - Browsable list of every command and query token
  - Value entry validated against the command's domain
  - Raw request lines for tokens outside the built-in vocabulary
  - Live status (state, faults, power, temperatures)
  - Statistics tracking and event logging
  - Automatic reconnection on connection loss

Tab switches between the token list, the value field, the send button and
the raw line. In the token list, 'e' enables emission, 'd' disables it and
'c' clears latched faults.

Supports serial, WebSocket and simulated connections.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

// connectionManager owns the session. The poll loop and commands issued from
// the TUI share one laser, so every use goes through do.
type connectionManager struct {
	mu       sync.Mutex
	session  *session
	p        *tea.Program
	done     chan struct{}
	interval time.Duration
}

// errNotConnected is returned by do while a reconnect is in progress
var errNotConnected = fmt.Errorf("%w: not connected", stradus.ErrClosed)

// do runs fn with exclusive use of the laser
func (cm *connectionManager) do(fn func(l *stradus.Laser) error) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.session.laser == nil {
		return errNotConnected
	}
	return fn(cm.session.laser)
}

func runShell(cmd *cobra.Command, args []string) error {
	silenceLogs()

	batcher := newEventBatcher()
	s, err := openSession(batcher)
	if err != nil {
		return err
	}

	cm := &connectionManager{
		session:  s,
		done:     make(chan struct{}),
		interval: cfg.Monitor.Interval,
	}

	m := initialShellModel(cm, s.info, s.stats)

	// Create TUI program with alt screen and mouse support
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	go batcher.run(p, cm.done)

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		cm.pollLoop()
	}()

	_, err = p.Run()

	// Signal goroutines to stop and wait for the poller to release the laser
	close(cm.done)
	<-pollDone

	cm.mu.Lock()
	s.Close()
	cm.mu.Unlock()

	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// pollLoop reads status snapshots with automatic reconnection
func (cm *connectionManager) pollLoop() {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		var status stradus.Status
		err := cm.do(func(l *stradus.Laser) error {
			var err error
			status, err = l.Status()
			return err
		})

		select {
		case <-cm.done:
			return
		default:
		}
		cm.p.Send(statusMsg{status: status, err: err})

		if connectionLost(err) {
			cm.p.Send(connectionLostMsg{})
			if !cm.reconnect() {
				return // Shutdown requested during reconnect
			}
		}

		select {
		case <-cm.done:
			return
		case <-ticker.C:
		}
	}
}

// connectionLost reports whether err means the channel itself failed
func connectionLost(err error) bool {
	return errors.Is(err, stradus.ErrIO) || errors.Is(err, stradus.ErrConnection)
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	cm.mu.Lock()
	cm.session.hangup()
	cm.mu.Unlock()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		cm.mu.Lock()
		err := cm.session.dial()
		cm.mu.Unlock()

		if err == nil {
			cm.p.Send(reconnectedMsg{connInfo: cm.session.info})
			return true
		}
		cm.p.Send(resultMsg{request: "reconnect", err: err})

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
