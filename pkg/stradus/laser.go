// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// Laser is the high-level driver for one Stradus controller.
//
// A Laser is only returned once the controller has accepted the echo and
// prompt setup commands. Like Engine, it is not safe for concurrent use.
type Laser struct {
	engine   *Engine
	logger   *slog.Logger
	endpoint string

	wavelength      int
	wavelengthKnown bool
}

// Status is a snapshot of the controller taken by Laser.Status
type Status struct {
	Time                    time.Time
	State                   DeviceState
	FaultCode               FaultCode
	Faults                  []FaultField
	Wavelength              int     // nm
	BasePlateTemperature    float64 // °C
	OpticalBlockTemperature float64 // °C
	Power                   float64 // mW
	PowerSetpoint           float64 // mW
	MaxPower                float64 // mW
	InterlockClosed         bool
	Emitting                bool
	DigitalModulation       bool
	ConstantCurrent         bool
}

// Open connects to the controller on a serial endpoint
func Open(endpoint string, opts ...Option) (*Laser, error) {
	o := buildOptions(opts)
	transport, err := OpenTransport(endpoint, o.serial)
	if err != nil {
		return nil, err
	}
	return newLaser(transport, endpoint, opts)
}

// New connects to the controller over an already opened port. The port is
// closed if initialization fails.
func New(port Port, opts ...Option) (*Laser, error) {
	return newLaser(NewTransport(port), "", opts)
}

func newLaser(transport *Transport, endpoint string, opts []Option) (*Laser, error) {
	o := buildOptions(opts)
	logger := o.logger
	if endpoint != "" {
		logger = logger.With("endpoint", endpoint)
	}

	l := &Laser{
		engine:   NewEngine(transport, opts...),
		logger:   logger,
		endpoint: endpoint,
	}
	if err := l.initialize(); err != nil {
		transport.Close()
		logger.Error("controller not responding", "error", err)
		return nil, fmt.Errorf("initialize %s: %w", l.describe(), err)
	}
	return l, nil
}

// initialize puts the interface into a known state: no stale input, no
// character echo and no prompt prefix on replies.
func (l *Laser) initialize() error {
	if err := l.engine.Transport().ResetInputBuffer(); err != nil {
		return err
	}
	if _, err := l.engine.Set(CmdEcho, Off); err != nil {
		return err
	}
	if _, err := l.engine.Set(CmdPrompt, Off); err != nil {
		return err
	}
	return nil
}

func (l *Laser) describe() string {
	if l.endpoint == "" {
		return "port"
	}
	return l.endpoint
}

// Engine exposes the raw get/set interface
func (l *Laser) Engine() *Engine {
	return l.engine
}

// Endpoint returns the serial endpoint name, empty for injected ports
func (l *Laser) Endpoint() string {
	return l.endpoint
}

// Get is shorthand for Engine().Get
func (l *Laser) Get(q Query) (string, error) {
	return l.engine.Get(q)
}

// Set is shorthand for Engine().Set
func (l *Laser) Set(cmd Command, value any) (string, error) {
	return l.engine.Set(cmd, value)
}

// Close releases the serial endpoint
func (l *Laser) Close() error {
	return l.engine.Close()
}

////////////////////////////////////////////////////////////////
// Emission
////////////////////////////////////////////////////////////////

// Enable turns emission on
func (l *Laser) Enable() error {
	_, err := l.engine.Set(CmdLaserEmission, On)
	return err
}

// Disable turns emission off
func (l *Laser) Disable() error {
	_, err := l.engine.Set(CmdLaserEmission, Off)
	return err
}

// Emitting reports whether the laser is emitting
func (l *Laser) Emitting() (bool, error) {
	v, err := l.getBool(QueryLaserEmission)
	return v.Bool(), err
}

// InterlockClosed reports whether the key is turned and the laser is armed
func (l *Laser) InterlockClosed() (bool, error) {
	v, err := l.getBool(QueryInterlockStatus)
	return v.Bool(), err
}

// CDRH returns the 5-second emission delay setting
func (l *Laser) CDRH() (BoolValue, error) {
	return l.getBool(QueryFiveSecEmissionDelay)
}

// SetCDRH enables or disables the 5-second emission delay
func (l *Laser) SetCDRH(v BoolValue) error {
	_, err := l.engine.Set(CmdFiveSecEmissionDelay, v)
	return err
}

// ExternalControl returns whether power follows the external analog input
func (l *Laser) ExternalControl() (BoolValue, error) {
	return l.getBool(QueryExternalPowerControl)
}

// SetExternalControl hands power control to the analog input. 0-5 V maps
// linearly to 0 through maximum output power, ignoring the setpoint.
func (l *Laser) SetExternalControl(v BoolValue) error {
	_, err := l.engine.Set(CmdExternalPowerControl, v)
	return err
}

////////////////////////////////////////////////////////////////
// State and faults
////////////////////////////////////////////////////////////////

// FaultCode reads the fault register. Reading it clears latched faults.
func (l *Laser) FaultCode() (FaultCode, error) {
	reply, err := l.engine.Get(QueryFaultCode)
	if err != nil {
		return 0, err
	}
	return ParseFaultCode(reply)
}

// State returns the classified controller state
func (l *Laser) State() (DeviceState, error) {
	code, err := l.FaultCode()
	if err != nil {
		return StateFault, err
	}
	return Classify(code), nil
}

// Faults returns every active fault, empty when there are none
func (l *Laser) Faults() ([]FaultField, error) {
	code, err := l.FaultCode()
	if err != nil {
		return nil, err
	}
	return DecodeFaults(code), nil
}

// ClearFaults clears the stored fault code
func (l *Laser) ClearFaults() error {
	_, err := l.engine.Set(CmdClearFaultCode, nil)
	return err
}

////////////////////////////////////////////////////////////////
// Measurements and identification
////////////////////////////////////////////////////////////////

// Wavelength returns the laser wavelength in nm. The value is read once and
// cached for the life of the connection.
func (l *Laser) Wavelength() (int, error) {
	if l.wavelengthKnown {
		return l.wavelength, nil
	}
	reply, err := l.engine.Get(QueryLaserWavelength)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q", ErrInvalidReply, QueryLaserWavelength.Token(), reply)
	}
	l.wavelength = v
	l.wavelengthKnown = true
	return v, nil
}

// Temperature returns the base plate temperature in °C
func (l *Laser) Temperature() (float64, error) {
	return l.getFloat(QueryBasePlateTemperature)
}

// OpticalBlockTemperature returns the optical block temperature in °C
func (l *Laser) OpticalBlockTemperature() (float64, error) {
	return l.getFloat(QueryOpticalBlockTemperature)
}

// Power returns the measured output power in mW
func (l *Laser) Power() (float64, error) {
	return l.getFloat(QueryLaserPower)
}

// MaxPower returns the maximum laser power in mW
func (l *Laser) MaxPower() (float64, error) {
	return l.getFloat(QueryMaximumLaserPower)
}

// RatedPower returns the rated laser power in mW
func (l *Laser) RatedPower() (float64, error) {
	return l.getFloat(QueryRatedPower)
}

// Identification returns the ?LI text verbatim
func (l *Laser) Identification() (string, error) {
	return l.engine.Get(QueryLaserIdentification)
}

// FirmwareVersion returns the ?FV text verbatim
func (l *Laser) FirmwareVersion() (string, error) {
	return l.engine.Get(QueryFirmwareVersion)
}

// OperatingHours returns the ?LH text verbatim
func (l *Laser) OperatingHours() (string, error) {
	return l.engine.Get(QueryLaserOperatingHours)
}

////////////////////////////////////////////////////////////////
// Drive mode and setpoints
////////////////////////////////////////////////////////////////

// DigitalModulation reports whether pulse mode is on
func (l *Laser) DigitalModulation() (BoolValue, error) {
	return l.getBool(QueryPulseMode)
}

// SetDigitalModulation switches pulse mode. Turning it on requires constant
// current mode and fails with ErrConstantPowerMode otherwise.
func (l *Laser) SetDigitalModulation(v BoolValue) error {
	if v == On {
		cc, err := l.ConstantCurrent()
		if err != nil {
			return err
		}
		if cc == Off {
			l.logger.Warn("laser is in constant power mode and cannot be put in digital modulation mode")
			return ErrConstantPowerMode
		}
	}
	_, err := l.engine.Set(CmdPulseMode, v)
	return err
}

// ConstantCurrent reports whether the driver runs in constant current mode
func (l *Laser) ConstantCurrent() (BoolValue, error) {
	return l.getBool(QueryLaserDriverControlMode)
}

// SetConstantCurrent selects constant current (On) or constant power (Off).
// The controller ends digital modulation itself when it leaves constant
// current mode; the driver only logs a warning and sends no PUL command.
func (l *Laser) SetConstantCurrent(v BoolValue) error {
	if v == Off {
		dm, err := l.DigitalModulation()
		if err != nil {
			return err
		}
		if dm == On {
			l.logger.Warn("putting laser in constant power mode and disabling digital modulation mode")
		}
	}
	_, err := l.engine.Set(CmdLaserDriverControlMode, v)
	return err
}

// PowerSetpoint returns the pulse power in digital modulation mode and the
// laser power setting otherwise, in mW
func (l *Laser) PowerSetpoint() (float64, error) {
	dm, err := l.DigitalModulation()
	if err != nil {
		return 0, err
	}
	if dm == On {
		return l.getFloat(QueryPulsePower)
	}
	return l.getFloat(QueryLaserPowerSetting)
}

// SetPowerSetpoint writes the setpoint matching the current mode: pulse
// power (whole mW, 0 to MaxPulsePower) in digital modulation mode, laser
// power otherwise. Both are rounded to the nearest value the controller
// accepts, whole mW for pulse power and 0.1 mW for laser power, and a
// warning is logged when rounding changes the value.
func (l *Laser) SetPowerSetpoint(mW float64) error {
	if math.IsNaN(mW) || math.IsInf(mW, 0) || mW < 0 {
		return fmt.Errorf("%w: power setpoint %v", ErrInvalidValue, mW)
	}
	dm, err := l.DigitalModulation()
	if err != nil {
		return err
	}
	if dm == On {
		pulse := int(math.Round(mW))
		if pulse > MaxPulsePower {
			return fmt.Errorf("%w: pulse power %d mW exceeds %d mW", ErrInvalidValue, pulse, MaxPulsePower)
		}
		l.warnRounded(mW, float64(pulse))
		_, err = l.engine.Set(CmdPulsePower, pulse)
		return err
	}
	wire := strconv.FormatFloat(mW, 'f', 1, 64)
	sent, _ := strconv.ParseFloat(wire, 64)
	l.warnRounded(mW, sent)
	_, err = l.engine.Set(CmdLaserPower, wire)
	return err
}

func (l *Laser) warnRounded(requested, sent float64) {
	if math.Abs(requested-sent) > 1e-9 {
		l.logger.Warn("power setpoint rounded", "requested_mw", requested, "sent_mw", sent)
	}
}

////////////////////////////////////////////////////////////////
// Snapshot
////////////////////////////////////////////////////////////////

// Status reads a full snapshot. The fault register is read once, so both
// State and Faults come from the same reading.
func (l *Laser) Status() (Status, error) {
	s := Status{Time: time.Now()}
	var err error

	if s.FaultCode, err = l.FaultCode(); err != nil {
		return s, err
	}
	s.State = Classify(s.FaultCode)
	s.Faults = DecodeFaults(s.FaultCode)

	if s.Wavelength, err = l.Wavelength(); err != nil {
		return s, err
	}
	if s.BasePlateTemperature, err = l.Temperature(); err != nil {
		return s, err
	}
	if s.OpticalBlockTemperature, err = l.OpticalBlockTemperature(); err != nil {
		return s, err
	}
	if s.Power, err = l.Power(); err != nil {
		return s, err
	}
	if s.MaxPower, err = l.MaxPower(); err != nil {
		return s, err
	}
	if s.InterlockClosed, err = l.InterlockClosed(); err != nil {
		return s, err
	}
	if s.Emitting, err = l.Emitting(); err != nil {
		return s, err
	}

	cc, err := l.ConstantCurrent()
	if err != nil {
		return s, err
	}
	s.ConstantCurrent = cc.Bool()

	dm, err := l.DigitalModulation()
	if err != nil {
		return s, err
	}
	s.DigitalModulation = dm.Bool()

	setpoint := QueryLaserPowerSetting
	if s.DigitalModulation {
		setpoint = QueryPulsePower
	}
	if s.PowerSetpoint, err = l.getFloat(setpoint); err != nil {
		return s, err
	}
	return s, nil
}

func (l *Laser) getBool(q Query) (BoolValue, error) {
	reply, err := l.engine.Get(q)
	if err != nil {
		return Off, err
	}
	v, err := ParseBoolValue(reply)
	if err != nil {
		return Off, fmt.Errorf("%w: %s: %q", ErrInvalidReply, q.Token(), reply)
	}
	return v, nil
}

func (l *Laser) getFloat(q Query) (float64, error) {
	reply, err := l.engine.Get(q)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q", ErrInvalidReply, q.Token(), reply)
	}
	return v, nil
}
