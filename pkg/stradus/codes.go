// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import (
	"fmt"
	"strings"
)

// Domain describes the value carried by a command or returned by a query
type Domain int

// Value domains
const (
	DomainNone Domain = iota // action without an argument
	DomainBool
	DomainInt
	DomainFloat
	DomainText
)

func (d Domain) String() string {
	switch d {
	case DomainNone:
		return "none"
	case DomainBool:
		return "bool"
	case DomainInt:
		return "int"
	case DomainFloat:
		return "float"
	case DomainText:
		return "text"
	default:
		return fmt.Sprintf("Domain(%d)", int(d))
	}
}

// Command names a settable device parameter
type Command int

// Commands (Host → Controller)
const (
	CmdEcho                   Command = iota // Enable(1)/Disable(0) character echo
	CmdPrompt                                // Enable(1)/Disable(0) reply prompt
	CmdLaserDriverControlMode                // Power=0, Current=1
	CmdClearFaultCode                        // Clear stored fault code
	CmdRecallFaultCode                       // Recall stored fault codes
	CmdFiveSecEmissionDelay                  // 5-second CDRH delay
	CmdExternalPowerControl                  // External analog power control
	CmdLaserEmission                         // Emission on/off
	CmdLaserPower                            // Power setpoint ###.# mW
	CmdLaserCurrent                          // Current setpoint ###.# mA
	CmdPulsePower                            // Peak pulse power 0-1000 mW
	CmdPulseMode                             // Digital modulation on/off
	CmdThermalElectricCooler                 // TEC on/off
	numCommands
)

type commandInfo struct {
	name   string
	token  string
	domain Domain
}

var commandTable = [numCommands]commandInfo{
	CmdEcho:                   {"Echo", "ECHO", DomainBool},
	CmdPrompt:                 {"Prompt", "PROMPT", DomainBool},
	CmdLaserDriverControlMode: {"LaserDriverControlMode", "C", DomainBool},
	CmdClearFaultCode:         {"ClearFaultCode", "CFC", DomainNone},
	CmdRecallFaultCode:        {"RecallFaultCode", "RFC", DomainNone},
	CmdFiveSecEmissionDelay:   {"FiveSecEmissionDelay", "DELAY", DomainBool},
	CmdExternalPowerControl:   {"ExternalPowerControl", "EPC", DomainBool},
	CmdLaserEmission:          {"LaserEmission", "LE", DomainBool},
	CmdLaserPower:             {"LaserPower", "LP", DomainFloat},
	CmdLaserCurrent:           {"LaserCurrent", "LC", DomainFloat},
	CmdPulsePower:             {"PulsePower", "PP", DomainInt},
	CmdPulseMode:              {"PulseMode", "PUL", DomainBool},
	CmdThermalElectricCooler:  {"ThermalElectricCooler", "TEC", DomainBool},
}

// Token returns the wire mnemonic
func (c Command) Token() string {
	if c < 0 || c >= numCommands {
		return ""
	}
	return commandTable[c].token
}

// Domain returns the expected value domain
func (c Command) Domain() Domain {
	if c < 0 || c >= numCommands {
		return DomainNone
	}
	return commandTable[c].domain
}

func (c Command) String() string {
	if c < 0 || c >= numCommands {
		return fmt.Sprintf("Command(%d)", int(c))
	}
	return commandTable[c].name
}

// Query names a readable device parameter
type Query int

// Queries (Host → Controller)
const (
	QueryBasePlateTemperature Query = iota
	QuerySystemFirmwareVersion
	QuerySystemFirmwareProtocolVersion
	QueryLaserDriverControlMode
	QueryComputerControl
	QueryFiveSecEmissionDelay
	QueryEchoStatus
	QueryExternalPowerControl
	QueryFaultCode // also clears latched faults
	QueryFaultDescription
	QueryFirmwareProtocol
	QueryFirmwareVersion
	QueryHelp
	QueryInterlockStatus
	QueryLaserCurrent
	QueryLaserCurrentSetting
	QueryLaserEmission
	QueryLaserOperatingHours
	QueryLaserIdentification
	QueryLaserPower
	QueryLaserPowerSetting
	QueryLaserWavelength
	QueryMaximumLaserPower
	QueryOpticalBlockTemperature
	QueryOpticalBlockTemperatureSetting
	QueryPulsePower
	QueryRatedPower
	QueryPulseMode
	QueryThermalElectricCoolerStatus
	numQueries
)

var queryTable = [numQueries]commandInfo{
	QueryBasePlateTemperature:           {"BasePlateTemperature", "?BPT", DomainFloat},
	QuerySystemFirmwareVersion:          {"SystemFirmwareVersion", "?SFV", DomainText},
	QuerySystemFirmwareProtocolVersion:  {"SystemFirmwareProtocolVersion", "?SPV", DomainText},
	QueryLaserDriverControlMode:         {"LaserDriverControlMode", "?C", DomainBool},
	QueryComputerControl:                {"ComputerControl", "?CC", DomainBool},
	QueryFiveSecEmissionDelay:           {"FiveSecEmissionDelay", "?DELAY", DomainBool},
	QueryEchoStatus:                     {"EchoStatus", "?ECHO", DomainBool},
	QueryExternalPowerControl:           {"ExternalPowerControl", "?EPC", DomainBool},
	QueryFaultCode:                      {"FaultCode", "?FC", DomainInt},
	QueryFaultDescription:               {"FaultDescription", "?FD", DomainText},
	QueryFirmwareProtocol:               {"FirmwareProtocol", "?FP", DomainText},
	QueryFirmwareVersion:                {"FirmwareVersion", "?FV", DomainText},
	QueryHelp:                           {"Help", "?H", DomainText},
	QueryInterlockStatus:                {"InterlockStatus", "?IL", DomainBool},
	QueryLaserCurrent:                   {"LaserCurrent", "?LC", DomainFloat},
	QueryLaserCurrentSetting:            {"LaserCurrentSetting", "?LCS", DomainFloat},
	QueryLaserEmission:                  {"LaserEmission", "?LE", DomainBool},
	QueryLaserOperatingHours:            {"LaserOperatingHours", "?LH", DomainText},
	QueryLaserIdentification:            {"LaserIdentification", "?LI", DomainText},
	QueryLaserPower:                     {"LaserPower", "?LP", DomainFloat},
	QueryLaserPowerSetting:              {"LaserPowerSetting", "?LPS", DomainFloat},
	QueryLaserWavelength:                {"LaserWavelength", "?LW", DomainInt},
	QueryMaximumLaserPower:              {"MaximumLaserPower", "?MAXP", DomainFloat},
	QueryOpticalBlockTemperature:        {"OpticalBlockTemperature", "?OBT", DomainFloat},
	QueryOpticalBlockTemperatureSetting: {"OpticalBlockTemperatureSetting", "?OBTS", DomainFloat},
	QueryPulsePower:                     {"PulsePower", "?PP", DomainInt},
	QueryRatedPower:                     {"RatedPower", "?RP", DomainFloat},
	QueryPulseMode:                      {"PulseMode", "?PUL", DomainBool},
	QueryThermalElectricCoolerStatus:    {"ThermalElectricCoolerStatus", "?TEC", DomainBool},
}

// Token returns the wire mnemonic including its leading '?'
func (q Query) Token() string {
	if q < 0 || q >= numQueries {
		return ""
	}
	return queryTable[q].token
}

// Domain returns the expected reply domain
func (q Query) Domain() Domain {
	if q < 0 || q >= numQueries {
		return DomainText
	}
	return queryTable[q].domain
}

func (q Query) String() string {
	if q < 0 || q >= numQueries {
		return fmt.Sprintf("Query(%d)", int(q))
	}
	return queryTable[q].name
}

// Commands returns the full command vocabulary in declaration order
func Commands() []Command {
	out := make([]Command, 0, numCommands)
	for c := Command(0); c < numCommands; c++ {
		out = append(out, c)
	}
	return out
}

// Queries returns the full query vocabulary in declaration order
func Queries() []Query {
	out := make([]Query, 0, numQueries)
	for q := Query(0); q < numQueries; q++ {
		out = append(out, q)
	}
	return out
}

// ParseCommand looks up a command by name or wire token, case-insensitively
func ParseCommand(s string) (Command, error) {
	s = strings.TrimSpace(s)
	for c := Command(0); c < numCommands; c++ {
		info := commandTable[c]
		if strings.EqualFold(s, info.name) || strings.EqualFold(s, info.token) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", s)
}

// ParseQuery looks up a query by name or wire token, case-insensitively.
// The leading '?' of a token is optional.
func ParseQuery(s string) (Query, error) {
	s = strings.TrimSpace(s)
	bare := strings.TrimPrefix(s, QueryMarker)
	for q := Query(0); q < numQueries; q++ {
		info := queryTable[q]
		if strings.EqualFold(s, info.name) || strings.EqualFold(bare, info.token[1:]) {
			return q, nil
		}
	}
	return 0, fmt.Errorf("unknown query %q", s)
}

// BoolValue is the two-valued wire representation "0"/"1"
type BoolValue uint8

// Boolean wire values
const (
	Off BoolValue = iota
	On
)

// Bool converts the wire value to its truth value
func (b BoolValue) Bool() bool {
	return b == On
}

// Wire returns "0" or "1"
func (b BoolValue) Wire() string {
	if b == On {
		return "1"
	}
	return "0"
}

func (b BoolValue) String() string {
	if b == On {
		return "ON"
	}
	return "OFF"
}

// BoolOf converts a Go bool to its wire value
func BoolOf(v bool) BoolValue {
	if v {
		return On
	}
	return Off
}

// ParseBoolValue accepts 0/1, on/off and true/false in any case
func ParseBoolValue(s string) (BoolValue, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "on", "true":
		return On, nil
	case "0", "off", "false":
		return Off, nil
	}
	return Off, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, s)
}
