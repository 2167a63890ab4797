// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import "errors"

var (
	// ErrConnection indicates the endpoint could not be opened at the
	// requested line configuration.
	ErrConnection = errors.New("stradus: connection failed")

	// ErrIO indicates a channel-level read or write failure, such as an
	// unplugged adapter. It is never retried internally.
	ErrIO = errors.New("stradus: i/o error")

	// ErrClosed is returned for operations on a closed transport.
	ErrClosed = errors.New("stradus: transport closed")
)

var (
	// ErrProtocolTimeout indicates no reply delimiter was observed within
	// the read timeout on either phase of an exchange. The exchange may be
	// retried by the caller.
	ErrProtocolTimeout = errors.New("stradus: protocol timeout")

	// ErrInvalidFaultCode indicates the fault-code reply was not a 16-bit
	// unsigned integer.
	ErrInvalidFaultCode = errors.New("stradus: invalid fault code")

	// ErrInvalidReply indicates a typed accessor could not parse the reply
	// in its expected domain.
	ErrInvalidReply = errors.New("stradus: invalid reply")
)

var (
	// ErrInvalidValue indicates a command value outside its domain.
	ErrInvalidValue = errors.New("stradus: invalid value")

	// ErrConstantPowerMode indicates digital modulation was requested while
	// the driver is in constant power mode.
	ErrConstantPowerMode = errors.New("stradus: digital modulation requires constant current mode")
)
