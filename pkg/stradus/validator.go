// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueIssue classifies a rejected command value
type ValueIssue int

const (
	IssueNotBoolean ValueIssue = iota
	IssueNotInteger
	IssueNotNumber
	IssueOutOfRange
	IssueUnexpectedValue
)

func (i ValueIssue) String() string {
	switch i {
	case IssueNotBoolean:
		return "NOT_BOOLEAN"
	case IssueNotInteger:
		return "NOT_INTEGER"
	case IssueNotNumber:
		return "NOT_NUMBER"
	case IssueOutOfRange:
		return "OUT_OF_RANGE"
	case IssueUnexpectedValue:
		return "UNEXPECTED_VALUE"
	default:
		return "UNKNOWN"
	}
}

// ValidationError represents a rejected command value
type ValidationError struct {
	Command Command
	Type    ValueIssue
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Unwrap lets errors.Is match ErrInvalidValue
func (v *ValidationError) Unwrap() error {
	return ErrInvalidValue
}

// ValidateValue checks raw CLI text against the command's value domain and
// returns the wire text to send. Float values are rounded to one decimal,
// the resolution the controller accepts.
func ValidateValue(cmd Command, raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	switch cmd.Domain() {
	case DomainNone:
		if raw != "" {
			return "", &ValidationError{
				Command: cmd,
				Type:    IssueUnexpectedValue,
				Message: fmt.Sprintf("%s takes no value, got %q", cmd.Token(), raw),
				Details: map[string]interface{}{"value": raw},
			}
		}
		return "", nil

	case DomainBool:
		v, err := ParseBoolValue(raw)
		if err != nil {
			return "", &ValidationError{
				Command: cmd,
				Type:    IssueNotBoolean,
				Message: fmt.Sprintf("%s expects 0/1, on/off or true/false, got %q", cmd.Token(), raw),
				Details: map[string]interface{}{"value": raw},
			}
		}
		return v.Wire(), nil

	case DomainInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", &ValidationError{
				Command: cmd,
				Type:    IssueNotInteger,
				Message: fmt.Sprintf("%s expects an integer, got %q", cmd.Token(), raw),
				Details: map[string]interface{}{"value": raw},
			}
		}
		if cmd == CmdPulsePower && (n < 0 || n > MaxPulsePower) {
			return "", &ValidationError{
				Command: cmd,
				Type:    IssueOutOfRange,
				Message: fmt.Sprintf("Pulse power %d mW out of range (valid 0-%d)", n, MaxPulsePower),
				Details: map[string]interface{}{"value": n, "min": 0, "max": MaxPulsePower},
			}
		}
		return strconv.Itoa(n), nil

	case DomainFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return "", &ValidationError{
				Command: cmd,
				Type:    IssueNotNumber,
				Message: fmt.Sprintf("%s expects a number, got %q", cmd.Token(), raw),
				Details: map[string]interface{}{"value": raw},
			}
		}
		if f < 0 {
			return "", &ValidationError{
				Command: cmd,
				Type:    IssueOutOfRange,
				Message: fmt.Sprintf("%s setpoint %v must not be negative", cmd.Token(), f),
				Details: map[string]interface{}{"value": f, "min": 0},
			}
		}
		return strconv.FormatFloat(f, 'f', 1, 64), nil
	}

	return raw, nil
}
