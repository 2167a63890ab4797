// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatEvent formats a wire event into a single human-readable line
func FormatEvent(ev Event) string {
	timestamp := ev.Time.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %-8s phase=%d", timestamp, ev.Kind, ev.Phase)
	if ev.Frame != "" || ev.Kind != EventTimeout {
		result += " " + quoteFrame(ev.Frame)
	}
	result += fmt.Sprintf(" (%s)", formatElapsed(ev.Elapsed.Microseconds()))
	if ev.Err != "" {
		result += " error=" + ev.Err
	}
	return result
}

// FormatFaults renders the fault list for code, or "none"
func FormatFaults(code FaultCode) string {
	faults := DecodeFaults(code)
	if len(faults) == 0 {
		return "none"
	}
	names := make([]string, len(faults))
	for i, f := range faults {
		names[i] = f.String()
	}
	return strings.Join(names, ", ")
}

// FormatStatus formats a status snapshot as an indented block
func FormatStatus(s Status) string {
	result := fmt.Sprintf("[%s] %s (fault code %d / 0x%04X)\n",
		s.Time.Format("15:04:05.000"), s.State, s.FaultCode, uint16(s.FaultCode))
	result += fmt.Sprintf("  Faults:            %s\n", FormatFaults(s.FaultCode))
	result += fmt.Sprintf("  Wavelength:        %d nm\n", s.Wavelength)
	result += fmt.Sprintf("  Base Plate:        %.1f °C\n", s.BasePlateTemperature)
	result += fmt.Sprintf("  Optical Block:     %.1f °C\n", s.OpticalBlockTemperature)
	result += fmt.Sprintf("  Power:             %.1f mW (setpoint %.1f, max %.1f)\n", s.Power, s.PowerSetpoint, s.MaxPower)
	result += fmt.Sprintf("  Interlock:         %s\n", formatClosed(s.InterlockClosed))
	result += fmt.Sprintf("  Emission:          %s\n", BoolOf(s.Emitting))
	result += fmt.Sprintf("  Drive Mode:        %s\n", formatDriveMode(s.ConstantCurrent))
	result += fmt.Sprintf("  Digital Mod:       %s\n", BoolOf(s.DigitalModulation))
	return result
}

// FormatOperatingHours renders a ?LH reply. "H:MM" and decimal hour values
// are normalized; anything else is returned verbatim.
func FormatOperatingHours(reply string) string {
	reply = strings.TrimSpace(reply)
	if h, m, ok := strings.Cut(reply, ":"); ok {
		hours, err1 := strconv.Atoi(strings.TrimSpace(h))
		minutes, err2 := strconv.Atoi(strings.TrimSpace(m))
		if err1 == nil && err2 == nil && minutes >= 0 && minutes < 60 {
			return fmt.Sprintf("%dh %02dm", hours, minutes)
		}
		return reply
	}
	if v, err := strconv.ParseFloat(reply, 64); err == nil {
		return fmt.Sprintf("%.1fh", v)
	}
	return reply
}

func formatClosed(closed bool) string {
	if closed {
		return "CLOSED (armed)"
	}
	return "OPEN"
}

func formatDriveMode(constantCurrent bool) string {
	if constantCurrent {
		return "CONSTANT_CURRENT"
	}
	return "CONSTANT_POWER"
}

// formatElapsed formats microseconds using the largest sensible unit
func formatElapsed(us int64) string {
	switch {
	case us < 1000:
		return fmt.Sprintf("%dµs", us)
	case us < 1000000:
		return fmt.Sprintf("%.1fms", float64(us)/1000)
	default:
		return fmt.Sprintf("%.2fs", float64(us)/1000000)
	}
}

// quoteFrame renders a frame with control characters escaped
func quoteFrame(frame string) string {
	return strconv.Quote(frame)
}
