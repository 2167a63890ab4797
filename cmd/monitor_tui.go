// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/stradus/pkg/stradus"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// TUI model
type model struct {
	connInfo       string
	interval       time.Duration
	showAll        bool
	metricsAddr    string
	operatingHours string
	started        time.Time
	stats          *stradus.Statistics
	errorLog       []errorLogEntry
	maxLogEntries  int
	status         *stradus.Status
	pollErr        error
	pollFailures   int
	width          int
	height         int
	quitting       bool
}

// Messages
type tickMsg time.Time
type eventBatchMsg []stradus.Event

// eventBatcher is an EventSink that buffers wire events and hands them to a
// Bubble Tea program in batches. Events are dropped when the buffer is full.
type eventBatcher struct {
	events chan stradus.Event
}

func newEventBatcher() *eventBatcher {
	return &eventBatcher{events: make(chan stradus.Event, 256)}
}

func (b *eventBatcher) Record(ev stradus.Event) {
	select {
	case b.events <- ev:
	default:
	}
}

// run sends buffered events to p every 50ms until done is closed
func (b *eventBatcher) run(p *tea.Program, done <-chan struct{}) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			var batch eventBatchMsg
		drainLoop:
			for {
				select {
				case ev := <-b.events:
					batch = append(batch, ev)
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				p.Send(batch)
			}
		}
	}
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	if total <= 0 {
		return "0 seconds"
	}

	units := []struct {
		name string
		size int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	parts := []string{}
	for _, u := range units {
		n := total / u.size
		total %= u.size
		if n == 0 {
			continue
		}
		if n == 1 {
			parts = append(parts, "1 "+u.name)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, interval time.Duration, showAll bool, stats *stradus.Statistics) model {
	return model{
		connInfo:      connInfo,
		interval:      interval,
		showAll:       showAll,
		started:       time.Now(),
		stats:         stats,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case statusMsg:
		m.applyStatus(msg)

	case eventBatchMsg:
		for _, ev := range msg {
			m.applyEvent(ev)
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

// applyStatus logs transitions between the previous and the new snapshot
func (m *model) applyStatus(msg statusMsg) {
	if msg.err != nil {
		m.pollFailures++
		if m.pollErr == nil {
			m.addLogEntry(fmt.Sprintf("POLL ERROR: %v", msg.err), true)
		}
		m.pollErr = msg.err
		return
	}
	if m.pollErr != nil {
		m.addLogEntry("Status polling recovered", false)
		m.pollErr = nil
	}

	cur := msg.status
	prev := m.status
	switch {
	case prev == nil:
		m.addLogEntry(fmt.Sprintf("State %s, faults: %s", cur.State, stradus.FormatFaults(cur.FaultCode)), cur.State == stradus.StateFault)
	default:
		if prev.State != cur.State {
			m.addLogEntry(fmt.Sprintf("State %s -> %s", prev.State, cur.State), cur.State == stradus.StateFault)
		}
		for _, f := range newFaults(prev.FaultCode, cur.FaultCode) {
			m.addLogEntry("Fault set: "+f.String(), true)
		}
		for _, f := range newFaults(cur.FaultCode, prev.FaultCode) {
			m.addLogEntry("Fault cleared: "+f.String(), false)
		}
		if prev.Emitting != cur.Emitting {
			m.addLogEntry("Emission "+stradus.BoolOf(cur.Emitting).String(), false)
		}
		if prev.InterlockClosed != cur.InterlockClosed {
			m.addLogEntry("Interlock "+formatInterlock(cur.InterlockClosed), !cur.InterlockClosed)
		}
	}
	m.status = &cur
}

// applyEvent logs timeouts and errors, and every frame with --show-all
func (m *model) applyEvent(ev stradus.Event) {
	switch ev.Kind {
	case stradus.EventTimeout:
		if ev.Frame != "" {
			m.addLogEntry(fmt.Sprintf("Partial frame %q (phase %d)", ev.Frame, ev.Phase), true)
		} else {
			m.addLogEntry(fmt.Sprintf("Reply timeout (phase %d)", ev.Phase), true)
		}
	case stradus.EventError:
		m.addLogEntry("I/O ERROR: "+ev.Err, true)
	default:
		if m.showAll {
			m.addLogEntry(fmt.Sprintf("%s %q", ev.Kind, ev.Frame), false)
		}
	}
}

func formatInterlock(closed bool) string {
	if closed {
		return "CLOSED"
	}
	return "OPEN"
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

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

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("STRADUS - STATUS MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Poll: %v | Up: %s | 'r' reset stats, 'q' quit",
		m.connInfo, m.interval, formatUptime(time.Since(m.started)))))
	s.WriteString("\n")
	if m.metricsAddr != "" {
		s.WriteString(headerStyle.Render(fmt.Sprintf("Metrics: http://%s/metrics", m.metricsAddr)))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	// Laser status
	s.WriteString(statsLabelStyle.Render("Laser:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.renderStatus(statsLabelStyle, statsValueStyle, errorStyle, warningStyle, headerStyle)))
	s.WriteString("\n\n")

	// Statistics
	snap := m.stats.Snapshot()
	var replyPercent float64
	if snap.Exchanges > 0 {
		replyPercent = float64(snap.Replies) * 100.0 / float64(snap.Exchanges)
	}
	errors := snap.Timeouts + snap.IOErrors

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Exchanges:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.Exchanges)),
		statsLabelStyle.Render("Replies:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", snap.Replies, replyPercent)),
		statsLabelStyle.Render("Errors:"), func() string {
			if errors > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", errors))
			}
			return statsValueStyle.Render("0")
		}(),
	))

	if snap.Timeouts > 0 || snap.IOErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d)   %s %s\n",
			statsLabelStyle.Render("Timeouts:"), errorStyle.Render(fmt.Sprintf("%d", snap.Timeouts)),
			headerStyle.Render("partial"), snap.PartialFrames,
			statsLabelStyle.Render("I/O Errors:"), errorStyle.Render(fmt.Sprintf("%d", snap.IOErrors)),
		))
	}

	if m.pollFailures > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Failed Polls:"), warningStyle.Render(fmt.Sprintf("%d", m.pollFailures))))
	}

	if snap.Replies > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("RTT min/avg/max:"),
			statsValueStyle.Render(fmt.Sprintf("%v / %v / %v",
				snap.MinRTT.Round(time.Microsecond),
				snap.MeanRTT().Round(time.Microsecond),
				snap.MaxRTT.Round(time.Microsecond))),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Exchange Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f ex/s", snap.ExchangeRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if snap.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", snap.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", snap.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 24
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

// renderStatus renders the latest snapshot
func (m model) renderStatus(labelStyle, valueStyle, errorStyle, warningStyle, dimStyle lipgloss.Style) string {
	if m.status == nil {
		if m.pollErr != nil {
			return errorStyle.Render(fmt.Sprintf("No status: %v", m.pollErr))
		}
		return warningStyle.Render("⏳ Waiting for first poll...")
	}
	st := m.status

	stateStyle := valueStyle
	switch st.State {
	case stradus.StateFault:
		stateStyle = errorStyle
	case stradus.StateWarmup, stradus.StateStandby:
		stateStyle = warningStyle
	}

	var c strings.Builder
	c.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		labelStyle.Render("State:"), stateStyle.Render(st.State.String()),
		labelStyle.Render("Fault Code:"), fmt.Sprintf("%d (0x%04X)", st.FaultCode, uint16(st.FaultCode)),
	))

	faults := stradus.FormatFaults(st.FaultCode)
	faultStyle := valueStyle
	if len(st.Faults) > 0 {
		faultStyle = errorStyle
	}
	c.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Faults:"), faultStyle.Render(faults)))

	c.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Emission:"), valueStyle.Render(stradus.BoolOf(st.Emitting).String()),
		labelStyle.Render("Interlock:"), func() string {
			if st.InterlockClosed {
				return valueStyle.Render("CLOSED")
			}
			return errorStyle.Render("OPEN")
		}(),
		labelStyle.Render("Wavelength:"), valueStyle.Render(fmt.Sprintf("%d nm", st.Wavelength)),
	))

	c.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Power:"), valueStyle.Render(fmt.Sprintf("%.1f mW", st.Power)),
		labelStyle.Render("Setpoint:"), valueStyle.Render(fmt.Sprintf("%.1f mW", st.PowerSetpoint)),
		labelStyle.Render("Max:"), valueStyle.Render(fmt.Sprintf("%.1f mW", st.MaxPower)),
	))

	c.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		labelStyle.Render("Base Plate:"), valueStyle.Render(fmt.Sprintf("%.1f°C", st.BasePlateTemperature)),
		labelStyle.Render("Optical Block:"), valueStyle.Render(fmt.Sprintf("%.1f°C", st.OpticalBlockTemperature)),
	))

	mode := "CONSTANT_POWER"
	if st.ConstantCurrent {
		mode = "CONSTANT_CURRENT"
	}
	c.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Drive:"), valueStyle.Render(mode),
		labelStyle.Render("Digital Mod:"), valueStyle.Render(stradus.BoolOf(st.DigitalModulation).String()),
	))

	if m.operatingHours != "" {
		c.WriteString(fmt.Sprintf("\n%s %s",
			labelStyle.Render("Operating Hours:"), dimStyle.Render(stradus.FormatOperatingHours(m.operatingHours))))
	}

	return c.String()
}
