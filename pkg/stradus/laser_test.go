// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import (
	"bytes"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Thermoquad/stradus/internal/simulator"
)

// newTestLaser connects a Laser to a fresh simulated controller
func newTestLaser(t *testing.T, opts ...simulator.Option) (*Laser, *simulator.Device) {
	t.Helper()
	dev := simulator.New(opts...)
	l, err := New(dev, WithTimeout(MinTimeout))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, dev
}

// ============================================================
// Initialization Tests
// ============================================================

func TestLaser_InitializeDisablesEchoAndPrompt(t *testing.T) {
	_, dev := newTestLaser(t)

	if diff := cmp.Diff([]string{"ECHO=0", "PROMPT=0"}, dev.Lines()); diff != "" {
		t.Errorf("setup lines mismatch (-want +got):\n%s", diff)
	}
	if dev.Echo() || dev.PromptEnabled() {
		t.Error("echo and prompt should be off after initialization")
	}
}

func TestLaser_InitializeFailureClosesPort(t *testing.T) {
	dev := simulator.New(simulator.WithSilence())

	l, err := New(dev, WithTimeout(MinTimeout))
	if l != nil {
		t.Fatal("expected no laser from a silent controller")
	}
	if !errors.Is(err, ErrProtocolTimeout) {
		t.Fatalf("error = %v, want ErrProtocolTimeout", err)
	}
	if _, err := dev.Write([]byte("?LW\r")); !errors.Is(err, simulator.ErrClosed) {
		t.Errorf("port should be closed after failed initialization, write error = %v", err)
	}
}

func TestLaser_PromptFailureClosesPort(t *testing.T) {
	port := newScriptedPort()
	port.replies = []string{"\r\n\r\n"}

	l, err := New(port, WithTimeout(MinTimeout))
	if l != nil {
		t.Fatal("expected no laser when PROMPT=0 goes unanswered")
	}
	if !errors.Is(err, ErrProtocolTimeout) {
		t.Fatalf("error = %v, want ErrProtocolTimeout", err)
	}
	if port.written.String() != "ECHO=0\rPROMPT=0\r" {
		t.Errorf("written = %q, want both setup commands", port.written.String())
	}
	if !port.closed {
		t.Error("port should be closed after failed initialization")
	}
}

func TestLaser_OpenMissingDevice(t *testing.T) {
	_, err := Open("/dev/stradus-does-not-exist")
	if !errors.Is(err, ErrConnection) {
		t.Errorf("error = %v, want ErrConnection", err)
	}
}

// ============================================================
// Query Tests
// ============================================================

func TestLaser_WavelengthCached(t *testing.T) {
	l, dev := newTestLaser(t)

	for i := 0; i < 3; i++ {
		nm, err := l.Wavelength()
		if err != nil {
			t.Fatalf("Wavelength: %v", err)
		}
		if nm != 405 {
			t.Errorf("Wavelength = %d, want 405", nm)
		}
	}

	count := 0
	for _, line := range dev.Lines() {
		if line == "?LW" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("?LW sent %d times, want 1", count)
	}
}

func TestLaser_SpacedReplies(t *testing.T) {
	l, _ := newTestLaser(t, simulator.WithSpacedReplies())

	temp, err := l.Temperature()
	if err != nil {
		t.Fatalf("Temperature: %v", err)
	}
	if temp != 25.3 {
		t.Errorf("Temperature = %v, want 25.3", temp)
	}
}

func TestLaser_InvalidReply(t *testing.T) {
	l, dev := newTestLaser(t)
	dev.SetRegister("?BPT", "hot")

	if _, err := l.Temperature(); !errors.Is(err, ErrInvalidReply) {
		t.Errorf("Temperature error = %v, want ErrInvalidReply", err)
	}

	dev.SetRegister("?IL", "maybe")
	if _, err := l.InterlockClosed(); !errors.Is(err, ErrInvalidReply) {
		t.Errorf("InterlockClosed error = %v, want ErrInvalidReply", err)
	}
}

func TestLaser_Identification(t *testing.T) {
	l, _ := newTestLaser(t)

	id, err := l.Identification()
	if err != nil || id != "Stradus 405-100 SN 12345" {
		t.Errorf("Identification = %q, %v", id, err)
	}
	hours, err := l.OperatingHours()
	if err != nil || hours != "1234:56" {
		t.Errorf("OperatingHours = %q, %v", hours, err)
	}
}

// ============================================================
// Fault Tests
// ============================================================

func TestLaser_FaultCode(t *testing.T) {
	l, dev := newTestLaser(t)
	dev.SetFaultCode(20)

	state, err := l.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != StateFault {
		t.Errorf("State = %s, want FAULT", state)
	}

	faults, err := l.Faults()
	if err != nil {
		t.Fatalf("Faults: %v", err)
	}
	if diff := cmp.Diff([]FaultField{FaultWarmup, FaultInvalidCommand}, faults); diff != "" {
		t.Errorf("faults mismatch (-want +got):\n%s", diff)
	}
}

func TestLaser_InvalidFaultCode(t *testing.T) {
	l, dev := newTestLaser(t)
	dev.SetReply("?FC", "?FC=abc")

	if _, err := l.FaultCode(); !errors.Is(err, ErrInvalidFaultCode) {
		t.Errorf("error = %v, want ErrInvalidFaultCode", err)
	}
}

func TestLaser_ClearFaults(t *testing.T) {
	l, dev := newTestLaser(t)
	dev.SetFaultCode(1 | 1<<4)

	if err := l.ClearFaults(); err != nil {
		t.Fatalf("ClearFaults: %v", err)
	}
	if !slices.Contains(dev.Lines(), "CFC=") {
		t.Errorf("CFC not sent: %v", dev.Lines())
	}
	state, err := l.State()
	if err != nil || state != StateStandby {
		t.Errorf("State after clear = %s, %v; want STANDBY", state, err)
	}
}

// ============================================================
// Emission Tests
// ============================================================

func TestLaser_EnableDisable(t *testing.T) {
	l, _ := newTestLaser(t)

	if err := l.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	on, err := l.Emitting()
	if err != nil || !on {
		t.Fatalf("Emitting = %v, %v; want true", on, err)
	}
	state, _ := l.State()
	if state != StateEmissionActive {
		t.Errorf("State = %s, want EMISSION_ACTIVE", state)
	}
	power, _ := l.Power()
	if power != 50 {
		t.Errorf("Power = %v, want setpoint 50", power)
	}

	if err := l.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	on, _ = l.Emitting()
	if on {
		t.Error("still emitting after Disable")
	}
	state, _ = l.State()
	if state != StateStandby {
		t.Errorf("State = %s, want STANDBY", state)
	}
}

func TestLaser_EnableWithInterlockOpen(t *testing.T) {
	l, dev := newTestLaser(t)
	dev.SetRegister("?IL", "0")

	if err := l.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	on, _ := l.Emitting()
	if on {
		t.Error("laser must not emit with the interlock open")
	}
	code, err := l.FaultCode()
	if err != nil {
		t.Fatalf("FaultCode: %v", err)
	}
	if !code.Has(FaultInterlockOpen) {
		t.Errorf("fault code %d missing INTERLOCK_OPEN", code)
	}
}

func TestLaser_CDRHAndExternalControl(t *testing.T) {
	l, _ := newTestLaser(t)

	if err := l.SetCDRH(Off); err != nil {
		t.Fatalf("SetCDRH: %v", err)
	}
	if v, err := l.CDRH(); err != nil || v != Off {
		t.Errorf("CDRH = %s, %v; want OFF", v, err)
	}

	if err := l.SetExternalControl(On); err != nil {
		t.Fatalf("SetExternalControl: %v", err)
	}
	if v, err := l.ExternalControl(); err != nil || v != On {
		t.Errorf("ExternalControl = %s, %v; want ON", v, err)
	}
}

// ============================================================
// Drive Mode Tests
// ============================================================

func TestLaser_DigitalModulationNeedsConstantCurrent(t *testing.T) {
	l, dev := newTestLaser(t)

	if err := l.SetDigitalModulation(On); !errors.Is(err, ErrConstantPowerMode) {
		t.Fatalf("error = %v, want ErrConstantPowerMode", err)
	}
	if slices.Contains(dev.Lines(), "PUL=1") {
		t.Error("PUL=1 must not be sent in constant power mode")
	}

	if err := l.SetConstantCurrent(On); err != nil {
		t.Fatalf("SetConstantCurrent: %v", err)
	}
	if err := l.SetDigitalModulation(On); err != nil {
		t.Fatalf("SetDigitalModulation: %v", err)
	}
	if v, _ := dev.Register("?PUL"); v != "1" {
		t.Errorf("?PUL = %q, want 1", v)
	}

	// Turning modulation off is always allowed
	if err := l.SetDigitalModulation(Off); err != nil {
		t.Errorf("SetDigitalModulation(Off): %v", err)
	}
}

func TestLaser_LeavingConstantCurrentOnlyWarns(t *testing.T) {
	var logs bytes.Buffer
	dev := simulator.New(simulator.WithRegister("?C", "1"), simulator.WithRegister("?PUL", "1"))
	l, err := New(dev, WithTimeout(MinTimeout), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	if err := l.SetConstantCurrent(Off); err != nil {
		t.Fatalf("SetConstantCurrent(Off): %v", err)
	}
	if !slices.Contains(dev.Lines(), "C=0") {
		t.Errorf("C=0 not sent, lines = %v", dev.Lines())
	}
	if slices.Contains(dev.Lines(), "PUL=0") {
		t.Error("driver must leave ending digital modulation to the controller")
	}
	if !strings.Contains(logs.String(), "disabling digital modulation") {
		t.Errorf("expected a warning, logs = %q", logs.String())
	}
}

func TestLaser_PowerSetpointRoundingWarns(t *testing.T) {
	var logs bytes.Buffer
	dev := simulator.New()
	l, err := New(dev, WithTimeout(MinTimeout), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	if err := l.SetPowerSetpoint(12.5); err != nil {
		t.Fatalf("SetPowerSetpoint(12.5): %v", err)
	}
	if logs.Len() != 0 {
		t.Errorf("exact setpoint should not warn, logs = %q", logs.String())
	}

	if err := l.SetPowerSetpoint(0.04); err != nil {
		t.Fatalf("SetPowerSetpoint(0.04): %v", err)
	}
	if !slices.Contains(dev.Lines(), "LP=0.0") {
		t.Errorf("LP=0.0 not sent, lines = %v", dev.Lines())
	}
	if !strings.Contains(logs.String(), "power setpoint rounded") {
		t.Errorf("expected a rounding warning, logs = %q", logs.String())
	}
}

func TestLaser_PowerSetpointConstantWave(t *testing.T) {
	l, dev := newTestLaser(t)

	if err := l.SetPowerSetpoint(25.5); err != nil {
		t.Fatalf("SetPowerSetpoint: %v", err)
	}
	if !slices.Contains(dev.Lines(), "LP=25.5") {
		t.Errorf("LP=25.5 not sent: %v", dev.Lines())
	}
	got, err := l.PowerSetpoint()
	if err != nil || got != 25.5 {
		t.Errorf("PowerSetpoint = %v, %v; want 25.5", got, err)
	}
}

func TestLaser_PowerSetpointDigitalModulation(t *testing.T) {
	l, dev := newTestLaser(t)
	dev.SetRegister("?C", "1")
	dev.SetRegister("?PUL", "1")

	if err := l.SetPowerSetpoint(25.4); err != nil {
		t.Fatalf("SetPowerSetpoint: %v", err)
	}
	if !slices.Contains(dev.Lines(), "PP=25") {
		t.Errorf("PP=25 not sent: %v", dev.Lines())
	}
	got, err := l.PowerSetpoint()
	if err != nil || got != 25 {
		t.Errorf("PowerSetpoint = %v, %v; want 25", got, err)
	}

	if err := l.SetPowerSetpoint(1000.6); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("pulse power above limit error = %v, want ErrInvalidValue", err)
	}
}

func TestLaser_PowerSetpointRejectsNegative(t *testing.T) {
	l, dev := newTestLaser(t)
	before := len(dev.Lines())

	if err := l.SetPowerSetpoint(-1); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("error = %v, want ErrInvalidValue", err)
	}
	if len(dev.Lines()) != before {
		t.Error("nothing should be sent for a rejected setpoint")
	}
}

// ============================================================
// Status Tests
// ============================================================

func TestLaser_Status(t *testing.T) {
	l, _ := newTestLaser(t)

	s, err := l.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	if s.State != StateStandby || s.FaultCode != 1 {
		t.Errorf("State = %s (%d), want STANDBY (1)", s.State, s.FaultCode)
	}
	if s.Faults == nil || len(s.Faults) != 0 {
		t.Errorf("Faults = %v, want empty", s.Faults)
	}
	if s.Wavelength != 405 || s.BasePlateTemperature != 25.3 || s.OpticalBlockTemperature != 25 {
		t.Errorf("unexpected measurements: %+v", s)
	}
	if s.MaxPower != 110 || s.PowerSetpoint != 50 {
		t.Errorf("MaxPower = %v, PowerSetpoint = %v", s.MaxPower, s.PowerSetpoint)
	}
	if !s.InterlockClosed || s.Emitting || s.DigitalModulation || s.ConstantCurrent {
		t.Errorf("unexpected flags: %+v", s)
	}
	if s.Time.IsZero() {
		t.Error("Status time not set")
	}
}

func TestLaser_StatusPulsePowerSetpoint(t *testing.T) {
	l, dev := newTestLaser(t)
	dev.SetRegister("?PUL", "1")
	dev.SetRegister("?PP", "75")

	s, err := l.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !s.DigitalModulation || s.PowerSetpoint != 75 {
		t.Errorf("DigitalModulation = %v, PowerSetpoint = %v; want true, 75", s.DigitalModulation, s.PowerSetpoint)
	}
}

func TestLaser_RawAccess(t *testing.T) {
	l, _ := newTestLaser(t)

	reply, err := l.Engine().Exchange("?LW")
	if err != nil || reply != "?LW=405" {
		t.Errorf("Exchange = %q, %v", reply, err)
	}
	if _, err := l.Set(CmdLaserCurrent, "80.0"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, err := l.Get(QueryLaserCurrentSetting)
	if err != nil || value != "80.0" {
		t.Errorf("?LCS = %q, %v", value, err)
	}
	if l.Endpoint() != "" {
		t.Errorf("Endpoint = %q, want empty for injected ports", l.Endpoint())
	}
}
