// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/stradus/pkg/stradus"
)

// Focus states
const (
	focusTokenList = iota
	focusValueInput
	focusButton
	focusRawInput
	numFocus
)

// token is one entry of the command/query vocabulary
type token struct {
	query   stradus.Query
	command stradus.Command
	isQuery bool
}

func (t token) name() string {
	if t.isQuery {
		return t.query.String()
	}
	return t.command.String()
}

func (t token) wire() string {
	if t.isQuery {
		return t.query.Token()
	}
	return t.command.Token()
}

func (t token) domain() stradus.Domain {
	if t.isQuery {
		return t.query.Domain()
	}
	return t.command.Domain()
}

// Implement list.Item interface
func (t token) Title() string { return t.wire() }
func (t token) Description() string {
	if t.isQuery {
		return fmt.Sprintf("%s -> %s", t.name(), t.domain())
	}
	return fmt.Sprintf("%s (%s)", t.name(), t.domain())
}
func (t token) FilterValue() string { return t.wire() + " " + t.name() }

// vocabulary lists every query followed by every command
func vocabulary() []list.Item {
	items := make([]list.Item, 0, len(stradus.Queries())+len(stradus.Commands()))
	for _, q := range stradus.Queries() {
		items = append(items, token{query: q, isQuery: true})
	}
	for _, c := range stradus.Commands() {
		items = append(items, token{command: c})
	}
	return items
}

// shellModel is the Bubble Tea model for the interactive shell
type shellModel struct {
	// Connection manager (for sending commands and reconnection)
	connMgr  *connectionManager
	connInfo string

	tokenList list.Model

	// Monitoring (reused from the monitor TUI)
	stats         *stradus.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	status        *stradus.Status
	pollErr       error

	// Control
	valueInput   textinput.Model
	rawInput     textinput.Model
	focusedField int
	pending      int

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type shellTickMsg time.Time

// resultMsg carries the outcome of one request issued from the shell
type resultMsg struct {
	request string
	reply   string
	err     error
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialShellModel(connMgr *connectionManager, connInfo string, stats *stradus.Statistics) shellModel {
	vi := textinput.New()
	vi.Placeholder = "value"
	vi.CharLimit = 16
	vi.Width = 16

	ri := textinput.New()
	ri.Placeholder = "?LI"
	ri.CharLimit = 64
	ri.Width = 32

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	tokenList := list.New(vocabulary(), delegate, 34, 16)
	tokenList.Title = "Tokens"
	tokenList.SetShowStatusBar(false)
	tokenList.SetShowHelp(false)
	tokenList.SetFilteringEnabled(false)

	return shellModel{
		connMgr:       connMgr,
		connInfo:      connInfo,
		tokenList:     tokenList,
		stats:         stats,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		valueInput:    vi,
		rawInput:      ri,
		focusedField:  focusTokenList,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m shellModel) Init() tea.Cmd {
	return shellTickCmd()
}

func shellTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return shellTickMsg(t)
	})
}

func (m shellModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if m.focusedField == focusTokenList {
			m.tokenList, _ = m.tokenList.Update(msg)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case shellTickMsg:
		m.stats.CalculateRates()
		return m, shellTickCmd()

	case statusMsg:
		m.applyStatus(msg)

	case eventBatchMsg:
		for _, ev := range msg {
			switch ev.Kind {
			case stradus.EventTimeout:
				m.addLogEntry(fmt.Sprintf("Reply timeout (phase %d) %q", ev.Phase, ev.Frame), true)
			case stradus.EventError:
				m.addLogEntry("I/O ERROR: "+ev.Err, true)
			}
		}

	case resultMsg:
		if m.pending > 0 {
			m.pending--
		}
		switch {
		case msg.err != nil:
			m.addLogEntry(fmt.Sprintf("%s: %v", msg.request, msg.err), true)
		case msg.reply != "":
			m.addLogEntry(fmt.Sprintf("%s -> %s", msg.request, msg.reply), false)
		default:
			m.addLogEntry(fmt.Sprintf("%s -> OK", msg.request), false)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
	}

	// Update child components
	var cmd tea.Cmd
	switch m.focusedField {
	case focusValueInput:
		m.valueInput, cmd = m.valueInput.Update(msg)
		cmds = append(cmds, cmd)
	case focusRawInput:
		m.rawInput, cmd = m.rawInput.Update(msg)
		cmds = append(cmds, cmd)
	case focusTokenList:
		m.tokenList, cmd = m.tokenList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m shellModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "esc":
		m.setFocus(focusTokenList)
		return m, nil

	case "enter":
		return m.handleEnter()
	}

	// Single-key shortcuts only apply outside the text fields
	if m.focusedField == focusTokenList || m.focusedField == focusButton {
		switch msg.String() {
		case "q":
			m.quitting = true
			return m, tea.Quit
		case "e":
			return m.send("enable", func(l *stradus.Laser) (string, error) {
				return "Emission ON", l.Enable()
			})
		case "d":
			return m.send("disable", func(l *stradus.Laser) (string, error) {
				return "Emission OFF", l.Disable()
			})
		case "c":
			return m.send("clear-faults", func(l *stradus.Laser) (string, error) {
				if err := l.ClearFaults(); err != nil {
					return "", err
				}
				code, err := l.FaultCode()
				if err != nil {
					return "", err
				}
				return "faults: " + stradus.FormatFaults(code), nil
			})
		}
	}

	// Pass through to focused component
	var cmd tea.Cmd
	switch m.focusedField {
	case focusTokenList:
		m.tokenList, cmd = m.tokenList.Update(msg)
	case focusValueInput:
		m.valueInput, cmd = m.valueInput.Update(msg)
	case focusRawInput:
		m.rawInput, cmd = m.rawInput.Update(msg)
	}
	return m, cmd
}

func (m *shellModel) cycleFocus(delta int) {
	next := (m.focusedField + delta + numFocus) % numFocus

	// Skip the value field for tokens that take no value
	if next == focusValueInput {
		if t, ok := m.selectedToken(); !ok || t.isQuery || t.domain() == stradus.DomainNone {
			next = (next + delta + numFocus) % numFocus
		}
	}
	m.setFocus(next)
}

func (m *shellModel) setFocus(field int) {
	m.focusedField = field
	m.valueInput.Blur()
	m.rawInput.Blur()
	switch field {
	case focusValueInput:
		m.valueInput.Focus()
	case focusRawInput:
		m.rawInput.Focus()
	}
}

func (m *shellModel) selectedToken() (token, bool) {
	t, ok := m.tokenList.SelectedItem().(token)
	return t, ok
}

func (m shellModel) handleEnter() (tea.Model, tea.Cmd) {
	// Don't allow commands while connection is lost
	if m.connectionLost {
		m.addLogEntry("Cannot send: connection lost", true)
		return m, nil
	}

	if m.focusedField == focusRawInput {
		line := strings.TrimSpace(m.rawInput.Value())
		if line == "" {
			return m, nil
		}
		m.rawInput.SetValue("")
		return m.send(line, func(l *stradus.Laser) (string, error) {
			return l.Engine().Exchange(line)
		})
	}

	t, ok := m.selectedToken()
	if !ok {
		return m, nil
	}

	if t.isQuery {
		q := t.query
		return m.send(q.Token(), func(l *stradus.Laser) (string, error) {
			return l.Get(q)
		})
	}

	// A command with a value needs the value field first
	if t.domain() != stradus.DomainNone && m.focusedField == focusTokenList {
		m.setFocus(focusValueInput)
		return m, nil
	}

	value, err := stradus.ValidateValue(t.command, m.valueInput.Value())
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return m, nil
	}

	c := t.command
	request := c.Token() + "=" + value
	m.valueInput.SetValue("")
	m.setFocus(focusTokenList)
	return m.send(request, func(l *stradus.Laser) (string, error) {
		return l.Set(c, value)
	})
}

// send runs fn on the laser outside the update loop and reports a resultMsg
func (m shellModel) send(request string, fn func(l *stradus.Laser) (string, error)) (tea.Model, tea.Cmd) {
	m.pending++
	cm := m.connMgr
	return m, func() tea.Msg {
		var reply string
		err := cm.do(func(l *stradus.Laser) error {
			var err error
			reply, err = fn(l)
			return err
		})
		return resultMsg{request: request, reply: reply, err: err}
	}
}

func (m *shellModel) applyStatus(msg statusMsg) {
	if msg.err != nil {
		if m.pollErr == nil {
			m.addLogEntry(fmt.Sprintf("POLL ERROR: %v", msg.err), true)
		}
		m.pollErr = msg.err
		return
	}
	m.pollErr = nil

	cur := msg.status
	if m.status != nil {
		if m.status.State != cur.State {
			m.addLogEntry(fmt.Sprintf("State %s -> %s", m.status.State, cur.State), cur.State == stradus.StateFault)
		}
		for _, f := range newFaults(m.status.FaultCode, cur.FaultCode) {
			m.addLogEntry("Fault set: "+f.String(), true)
		}
	}
	m.status = &cur
}

func (m *shellModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *shellModel) updateListSize() {
	height := m.height - 16
	if height < 6 {
		height = 6
	}
	m.tokenList.SetSize(34, height)
}

func (m shellModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	s.WriteString(titleStyle.Render("STRADUS SHELL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | Tab=switch e/d=emission c=clear q=quit", connStatus)))
	s.WriteString("\n\n")

	// Layout: left panel (tokens) | right panel (request and status)
	leftWidth := 36
	rightWidth := m.width - leftWidth - 6
	if rightWidth < 30 {
		rightWidth = 30
	}

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusTokenList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	tokenPanel := listStyle.Render(m.tokenList.View())

	right := lipgloss.JoinVertical(lipgloss.Left,
		boxStyle.Width(rightWidth).Render(m.renderRequestPanel(statsLabelStyle, headerStyle, buttonStyle, focusedButtonStyle)),
		boxStyle.Width(rightWidth).Render(m.renderStatusPanel(statsLabelStyle, statsValueStyle, errorStyle, warningStyle)),
	)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tokenPanel, " ", right))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, headerStyle, errorStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m shellModel) renderRequestPanel(labelStyle, dimStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	t, ok := m.selectedToken()
	if !ok {
		s.WriteString(dimStyle.Render("No token selected"))
		return s.String()
	}

	s.WriteString(fmt.Sprintf("%s %s  %s\n", labelStyle.Render("Selected:"), t.wire(), dimStyle.Render(t.name())))

	btnText := "[ Send ]"
	switch {
	case t.isQuery:
		s.WriteString(fmt.Sprintf("%s %s\n\n", labelStyle.Render("Reply:"), t.domain()))
		btnText = "[ Query ]"
	case t.domain() == stradus.DomainNone:
		s.WriteString(dimStyle.Render("Takes no value"))
		s.WriteString("\n\n")
	default:
		s.WriteString(labelStyle.Render(fmt.Sprintf("Value (%s): ", t.domain())))
		if m.focusedField == focusValueInput {
			s.WriteString(m.valueInput.View())
		} else {
			val := m.valueInput.Value()
			if val == "" {
				val = m.valueInput.Placeholder
			}
			s.WriteString(fmt.Sprintf("[%s]", val))
		}
		s.WriteString("\n\n")
	}

	if m.focusedField == focusButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}
	if m.pending > 0 {
		s.WriteString(dimStyle.Render(fmt.Sprintf("  %d pending", m.pending)))
	}
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("Raw: "))
	if m.focusedField == focusRawInput {
		s.WriteString(m.rawInput.View())
	} else {
		s.WriteString(dimStyle.Render(fmt.Sprintf("[%s]", m.rawInput.Placeholder)))
	}

	return s.String()
}

func (m shellModel) renderStatusPanel(labelStyle, valueStyle, errorStyle, warningStyle lipgloss.Style) string {
	if m.status == nil {
		if m.pollErr != nil {
			return errorStyle.Render(fmt.Sprintf("No status: %v", m.pollErr))
		}
		return warningStyle.Render("Waiting for status...")
	}
	st := m.status

	stateStyle := valueStyle
	if st.State == stradus.StateFault {
		stateStyle = errorStyle
	}

	var s strings.Builder
	s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
		labelStyle.Render("State:"), stateStyle.Render(st.State.String()),
		labelStyle.Render("Emission:"), valueStyle.Render(stradus.BoolOf(st.Emitting).String())))
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Faults:"), stradus.FormatFaults(st.FaultCode)))
	s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
		labelStyle.Render("Power:"), valueStyle.Render(fmt.Sprintf("%.1f mW", st.Power)),
		labelStyle.Render("Setpoint:"), valueStyle.Render(fmt.Sprintf("%.1f mW", st.PowerSetpoint))))
	s.WriteString(fmt.Sprintf("%s %s  %s %s",
		labelStyle.Render("Temp:"), valueStyle.Render(fmt.Sprintf("%.1fC / %.1fC", st.BasePlateTemperature, st.OpticalBlockTemperature)),
		labelStyle.Render("Interlock:"), valueStyle.Render(formatInterlock(st.InterlockClosed))))
	if m.pollErr != nil {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render("stale: " + m.pollErr.Error()))
	}
	return s.String()
}

func (m shellModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	snap := m.stats.Snapshot()
	errors := snap.Timeouts + snap.IOErrors

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Exchanges:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.Exchanges)),
		statsLabelStyle.Render("Errors:"), func() string {
			if errors > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", errors))
			}
			return statsValueStyle.Render("0")
		}(),
		statsLabelStyle.Render("RTT:"), statsValueStyle.Render(snap.MeanRTT().Round(time.Microsecond).String()),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f ex/s", snap.ExchangeRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m shellModel) renderEventLog(statsLabelStyle, warningStyle, headerStyle, errorStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := 8
	if len(m.errorLog) < logHeight {
		logHeight = len(m.errorLog)
	}
	startIdx := len(m.errorLog) - logHeight

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}
