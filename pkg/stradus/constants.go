// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package stradus provides a Go driver for the Vortran Stradus diode-laser
// controller serial protocol.
//
// The controller speaks a line-oriented ASCII protocol. Commands are sent as
// "TOKEN=VALUE\r" and queries as "?TOKEN\r". Every exchange is answered with
// two "\r\n"-terminated frames: an empty leading frame followed by the
// payload frame. This package provides the wire codec, a transport over any
// serial-like port, the request/reply engine with its two-phase timeout, the
// fault-code decoder, and a Laser facade with typed accessors.
package stradus

import "time"

// Wire framing
const (
	RequestTerminator = "\r"
	ReplyTerminator   = "\r\n"
	QueryMarker       = "?"
)

// Serial line defaults
const (
	DefaultBaudRate = 19200
	DefaultDataBits = 8
	DefaultTimeout  = 5 * time.Second

	MinTimeout = 100 * time.Millisecond
	MaxTimeout = 30 * time.Second
)

// Value limits
const (
	MaxPulsePower = 1000 // mW
)

// replyTerminator is the delimiter as bytes for Transport.ReadUntil
var replyTerminator = []byte(ReplyTerminator)

// readChunkSize bounds each port read
const readChunkSize = 64
