// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import (
	"fmt"
	"strings"
	"time"
)

// ExchangeState tracks the progress of one request/reply exchange
type ExchangeState int

// Exchange states
const (
	ExchangeIdle ExchangeState = iota
	ExchangeSending
	ExchangeAwaitingFirstDelimiter
	ExchangeAwaitingSecondDelimiter
	ExchangeAwaitingReply
	ExchangeComplete
	ExchangeFailed
)

func (s ExchangeState) String() string {
	switch s {
	case ExchangeIdle:
		return "IDLE"
	case ExchangeSending:
		return "SENDING"
	case ExchangeAwaitingFirstDelimiter:
		return "AWAITING_FIRST_DELIMITER"
	case ExchangeAwaitingSecondDelimiter:
		return "AWAITING_SECOND_DELIMITER"
	case ExchangeAwaitingReply:
		return "AWAITING_REPLY"
	case ExchangeComplete:
		return "COMPLETE"
	case ExchangeFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Engine runs request/reply exchanges over a Transport.
//
// Every reply consists of two "\r\n"-terminated frames, an empty one and the
// payload, so each exchange reads the delimiter twice. A phase fails with
// ErrProtocolTimeout only when it produced no bytes at all and strict
// timeouts are enabled; a partial frame is handed on as-is. After any timed
// out phase the input buffer is reset before the next request, so a reply
// that arrives late is never read as the answer to a later one.
//
// Engine is not safe for concurrent use. Callers serialize exchanges.
type Engine struct {
	transport *Transport
	timeout   time.Duration
	strict    bool
	sink      EventSink
	state     ExchangeState
	resync    bool
}

// NewEngine creates an engine owning transport
func NewEngine(transport *Transport, opts ...Option) *Engine {
	o := buildOptions(opts)
	return &Engine{
		transport: transport,
		timeout:   o.timeout,
		strict:    o.strict,
		sink:      o.sink,
	}
}

// Get sends a query and returns its decoded value
func (e *Engine) Get(q Query) (string, error) {
	reply, err := e.exchange(EncodeGet(q))
	if err != nil {
		return "", fmt.Errorf("get %s: %w", q.Token(), err)
	}
	return DecodeReply(q.Token(), reply), nil
}

// Set sends a command and returns the raw reply, usually empty
func (e *Engine) Set(cmd Command, value any) (string, error) {
	reply, err := e.exchange(EncodeSet(cmd, value))
	if err != nil {
		return "", fmt.Errorf("set %s: %w", cmd.Token(), err)
	}
	return reply, nil
}

// Exchange sends a raw message line and returns the raw reply
func (e *Engine) Exchange(msg string) (string, error) {
	msg = strings.TrimRight(msg, "\r\n")
	reply, err := e.exchange([]byte(msg))
	if err != nil {
		return "", fmt.Errorf("exchange %q: %w", msg, err)
	}
	return reply, nil
}

// State returns the state reached by the most recent exchange
func (e *Engine) State() ExchangeState {
	return e.state
}

// Timeout returns the per-phase read timeout
func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

// Transport returns the underlying transport
func (e *Engine) Transport() *Transport {
	return e.transport
}

// Close releases the transport
func (e *Engine) Close() error {
	return e.transport.Close()
}

func (e *Engine) exchange(payload []byte) (string, error) {
	if e.resync {
		if err := e.transport.ResetInputBuffer(); err != nil {
			e.state = ExchangeFailed
			e.record(Event{Kind: EventError, Frame: string(payload), Err: err.Error()})
			return "", err
		}
		e.resync = false
	}

	e.state = ExchangeSending
	frame := make([]byte, 0, len(payload)+len(RequestTerminator))
	frame = append(frame, payload...)
	frame = append(frame, RequestTerminator...)

	start := time.Now()
	if err := e.transport.Write(frame); err != nil {
		e.state = ExchangeFailed
		e.record(Event{Kind: EventError, Frame: string(payload), Elapsed: time.Since(start), Err: err.Error()})
		return "", err
	}
	e.record(Event{Kind: EventSent, Frame: string(payload), Elapsed: time.Since(start)})

	e.state = ExchangeAwaitingFirstDelimiter
	if _, err := e.readPhase(1); err != nil {
		return "", err
	}

	e.state = ExchangeAwaitingSecondDelimiter
	data, err := e.readPhase(2)
	if err != nil {
		return "", err
	}

	e.state = ExchangeAwaitingReply
	reply := strings.TrimRight(string(data), ReplyTerminator)
	reply = strings.ToValidUTF8(reply, "�")

	e.state = ExchangeComplete
	return reply, nil
}

// readPhase reads one delimited frame and applies the timeout rule
func (e *Engine) readPhase(phase int) ([]byte, error) {
	start := time.Now()
	res := e.transport.ReadUntil(replyTerminator, e.timeout)
	elapsed := time.Since(start)

	if res.Err != nil {
		e.state = ExchangeFailed
		e.record(Event{Kind: EventError, Frame: string(res.Data), Phase: phase, Elapsed: elapsed, Err: res.Err.Error()})
		return nil, res.Err
	}

	if res.TimedOut {
		e.resync = true
		e.record(Event{Kind: EventTimeout, Frame: string(res.Data), Phase: phase, Elapsed: elapsed})
		if len(res.Data) == 0 && e.strict {
			e.state = ExchangeFailed
			return nil, fmt.Errorf("%w: no reply after %v (phase %d)", ErrProtocolTimeout, e.timeout, phase)
		}
		return res.Data, nil
	}

	e.record(Event{Kind: EventReceived, Frame: string(res.Data), Phase: phase, Elapsed: elapsed})
	return res.Data, nil
}

func (e *Engine) record(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	e.sink.Record(ev)
}
