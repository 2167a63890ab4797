// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/stradus/internal/simulator"
	"github.com/Thermoquad/stradus/pkg/stradus"
)

// newTestShell returns a shell model wired to a simulated controller
func newTestShell(t *testing.T) (shellModel, *simulator.Device) {
	t.Helper()

	device := simulator.New()
	stats := stradus.NewStatistics()
	laser, err := stradus.New(device, stradus.WithTimeout(time.Second), stradus.WithEventSink(stats))
	require.NoError(t, err)

	s := &session{laser: laser, info: "Simulator", stats: stats}
	t.Cleanup(func() { s.Close() })

	cm := &connectionManager{session: s, done: make(chan struct{}), interval: time.Second}
	return initialShellModel(cm, s.info, stats), device
}

// run executes a command returned by Update and feeds its message back
func run(t *testing.T, m shellModel, cmd tea.Cmd) shellModel {
	t.Helper()
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	return next.(shellModel)
}

func press(m shellModel, key tea.KeyType) (shellModel, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: key})
	return next.(shellModel), cmd
}

func lastLog(m shellModel) errorLogEntry {
	return m.errorLog[len(m.errorLog)-1]
}

func TestVocabularyCoversEveryToken(t *testing.T) {
	items := vocabulary()
	require.Len(t, items, len(stradus.Queries())+len(stradus.Commands()))

	first := items[0].(token)
	assert.True(t, first.isQuery)
	assert.Equal(t, stradus.Queries()[0].Token(), first.Title())

	last := items[len(items)-1].(token)
	assert.False(t, last.isQuery)
	assert.Equal(t, stradus.Commands()[len(stradus.Commands())-1].Token(), last.Title())
}

func TestShellQuery(t *testing.T) {
	m, _ := newTestShell(t)
	m.tokenList.Select(int(stradus.QueryLaserWavelength))

	m, cmd := press(m, tea.KeyEnter)
	assert.Equal(t, 1, m.pending)
	m = run(t, m, cmd)

	assert.Equal(t, 0, m.pending)
	entry := lastLog(m)
	assert.False(t, entry.isError)
	assert.Equal(t, "?LW -> 405", entry.message)
}

func TestShellSetWithValue(t *testing.T) {
	m, device := newTestShell(t)
	m.tokenList.Select(len(stradus.Queries()) + int(stradus.CmdLaserPower))

	// Enter on a command with a value moves to the value field
	m, cmd := press(m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.Equal(t, focusValueInput, m.focusedField)

	m.valueInput.SetValue("25.5")
	m, cmd = press(m, tea.KeyEnter)
	m = run(t, m, cmd)

	assert.Equal(t, "LP=25.5 -> OK", lastLog(m).message)
	assert.Equal(t, focusTokenList, m.focusedField)

	setpoint, ok := device.Register("?LPS")
	require.True(t, ok)
	assert.Equal(t, "25.5", setpoint)
}

func TestShellRejectsInvalidValue(t *testing.T) {
	m, device := newTestShell(t)
	m.tokenList.Select(len(stradus.Queries()) + int(stradus.CmdPulsePower))
	sent := len(device.Lines())

	m.setFocus(focusValueInput)
	m.valueInput.SetValue("5000")
	m, cmd := press(m, tea.KeyEnter)

	assert.Nil(t, cmd)
	assert.True(t, lastLog(m).isError)
	assert.Contains(t, lastLog(m).message, "out of range")
	assert.Len(t, device.Lines(), sent, "nothing sent")
}

func TestShellRawLine(t *testing.T) {
	m, _ := newTestShell(t)
	m.setFocus(focusRawInput)
	m.rawInput.SetValue("?LI")

	m, cmd := press(m, tea.KeyEnter)
	assert.Empty(t, m.rawInput.Value())
	m = run(t, m, cmd)

	assert.Equal(t, "?LI -> ?LI=Stradus 405-100 SN 12345", lastLog(m).message)
}

func TestShellShortcuts(t *testing.T) {
	m, device := newTestShell(t)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("e")})
	m = run(t, next.(shellModel), cmd)
	assert.Equal(t, "enable -> Emission ON", lastLog(m).message)
	le, _ := device.Register("?LE")
	assert.Equal(t, "1", le)

	// Typing in a text field must not trigger shortcuts
	m.setFocus(focusRawInput)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	m = next.(shellModel)
	assert.Equal(t, "d", m.rawInput.Value())
	le, _ = device.Register("?LE")
	assert.Equal(t, "1", le)
}

func TestShellCycleFocusSkipsValueForQueries(t *testing.T) {
	m, _ := newTestShell(t)
	m.tokenList.Select(int(stradus.QueryLaserWavelength))

	m.cycleFocus(1)
	assert.Equal(t, focusButton, m.focusedField)
	m.cycleFocus(1)
	assert.Equal(t, focusRawInput, m.focusedField)
	m.cycleFocus(1)
	assert.Equal(t, focusTokenList, m.focusedField)
	m.cycleFocus(-1)
	assert.Equal(t, focusRawInput, m.focusedField)
}

func TestShellBlocksWhileDisconnected(t *testing.T) {
	m, _ := newTestShell(t)
	next, _ := m.Update(connectionLostMsg{})
	m = next.(shellModel)

	m, cmd := press(m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.Equal(t, "Cannot send: connection lost", lastLog(m).message)

	next, _ = m.Update(reconnectedMsg{connInfo: "Simulator"})
	assert.False(t, next.(shellModel).connectionLost)
}

func TestConnectionManagerNotConnected(t *testing.T) {
	m, _ := newTestShell(t)
	m.connMgr.session.hangup()

	err := m.connMgr.do(func(l *stradus.Laser) error { return nil })
	assert.True(t, errors.Is(err, stradus.ErrClosed))
}

func TestConnectionLost(t *testing.T) {
	assert.True(t, connectionLost(stradus.ErrIO))
	assert.True(t, connectionLost(errors.Join(errors.New("get ?FC"), stradus.ErrConnection)))
	assert.False(t, connectionLost(stradus.ErrProtocolTimeout))
	assert.False(t, connectionLost(nil))
}
