// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import (
	"fmt"
	"strconv"
	"strings"
)

// FaultCode is the 16-bit fault register returned by ?FC.
// Each bit is an independent condition; bit 0 marks emission and is not a
// fault.
type FaultCode uint16

// FaultField names one bit position of FaultCode
type FaultField uint8

// Fault bits
const (
	FaultLaserEmissionActive       FaultField = iota // bit 0, never reported
	FaultStandby                                     // bit 1
	FaultWarmup                                      // bit 2
	FaultValueOutOfRange                             // bit 3
	FaultInvalidCommand                              // bit 4
	FaultInterlockOpen                               // bit 5
	FaultTECOff                                      // bit 6
	FaultDiodeOverCurrent                            // bit 7
	FaultDiodeTemperature                            // bit 8
	FaultBasePlateTemperature                        // bit 9
	FaultPowerLockLost                               // bit 10
	FaultEEPROMError                                 // bit 11
	FaultI2CError                                    // bit 12
	FaultFan                                         // bit 13
	FaultPowerSupply                                 // bit 14
	FaultTemperature                                 // bit 15
	numFaultFields
)

var faultNames = [numFaultFields]string{
	"LASER_EMISSION_ACTIVE",
	"STANDBY",
	"WARMUP",
	"VALUE_OUT_OF_RANGE",
	"INVALID_COMMAND",
	"INTERLOCK_OPEN",
	"TEC_OFF",
	"DIODE_OVER_CURRENT",
	"DIODE_TEMPERATURE_FAULT",
	"BASE_PLATE_TEMPERATURE_FAULT",
	"POWER_LOCK_LOST",
	"EEPROM_ERROR",
	"I2C_ERROR",
	"FAN",
	"POWER_SUPPLY",
	"TEMPERATURE",
}

func (f FaultField) String() string {
	if f >= numFaultFields {
		return fmt.Sprintf("FAULT_BIT_%d", uint8(f))
	}
	return faultNames[f]
}

// Bit returns the register mask of the field
func (f FaultField) Bit() FaultCode {
	return FaultCode(1) << f
}

// FaultFields returns all 16 fields in bit order
func FaultFields() []FaultField {
	out := make([]FaultField, 0, numFaultFields)
	for f := FaultField(0); f < numFaultFields; f++ {
		out = append(out, f)
	}
	return out
}

// ParseFaultField looks a field up by name, case-insensitively
func ParseFaultField(s string) (FaultField, error) {
	s = strings.TrimSpace(s)
	for f, name := range faultNames {
		if strings.EqualFold(s, name) {
			return FaultField(f), nil
		}
	}
	return 0, fmt.Errorf("unknown fault field %q", s)
}

// DeviceState is the coarse controller state derived from FaultCode
type DeviceState uint8

// Device states
const (
	StateEmissionActive DeviceState = iota
	StateStandby
	StateWarmup
	StateFault
)

func (s DeviceState) String() string {
	switch s {
	case StateEmissionActive:
		return "EMISSION_ACTIVE"
	case StateStandby:
		return "STANDBY"
	case StateWarmup:
		return "WARMUP"
	case StateFault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// Classify maps 0, 1 and 2 to their states by equality; anything else is a
// fault.
func Classify(code FaultCode) DeviceState {
	switch code {
	case 0:
		return StateEmissionActive
	case 1:
		return StateStandby
	case 2:
		return StateWarmup
	default:
		return StateFault
	}
}

// ParseFaultCode parses the decoded ?FC reply
func ParseFaultCode(reply string) (FaultCode, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(reply), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFaultCode, reply)
	}
	return FaultCode(v), nil
}

// ClassifyReply parses a ?FC reply and classifies it
func ClassifyReply(reply string) (DeviceState, error) {
	code, err := ParseFaultCode(reply)
	if err != nil {
		return StateFault, err
	}
	return Classify(code), nil
}

// DecodeFaults lists every fault bit set in code, in ascending bit order.
// Bit 0 is skipped. The result is empty, not nil, when no faults are set.
func DecodeFaults(code FaultCode) []FaultField {
	faults := make([]FaultField, 0, 4)
	for f := FaultStandby; f < numFaultFields; f++ {
		if code&f.Bit() != 0 {
			faults = append(faults, f)
		}
	}
	return faults
}

// Has reports whether field's bit is set
func (c FaultCode) Has(field FaultField) bool {
	return c&field.Bit() != 0
}
