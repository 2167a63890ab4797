// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// CaptureHeader is the first record of a capture stream
type CaptureHeader struct {
	Session  uuid.UUID `cbor:"1,keyasint"`
	Endpoint string    `cbor:"2,keyasint"`
	Started  time.Time `cbor:"3,keyasint"`
}

// captureRecord is one CBOR item in the stream: [kind, body]
type captureRecord struct {
	_      struct{} `cbor:",toarray"`
	Kind   uint8
	Header *CaptureHeader
	Event  *Event
}

const (
	recordHeader uint8 = 1
	recordEvent  uint8 = 2
)

var (
	captureEncMode cbor.EncMode
	captureDecMode cbor.DecMode
)

func init() {
	var err error
	captureEncMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	captureDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// CaptureSink writes every wire event to a CBOR stream. The header is
// written when the sink is created.
type CaptureSink struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	header CaptureHeader
	err    error
	count  int
}

// NewCaptureSink starts a capture stream on w
func NewCaptureSink(w io.Writer, endpoint string) (*CaptureSink, error) {
	s := &CaptureSink{
		enc: captureEncMode.NewEncoder(w),
		header: CaptureHeader{
			Session:  uuid.New(),
			Endpoint: endpoint,
			Started:  time.Now(),
		},
	}
	if err := s.enc.Encode(captureRecord{Kind: recordHeader, Header: &s.header}); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return s, nil
}

// Record appends one event. The first write error is kept and later events
// are dropped.
func (s *CaptureSink) Record(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	if err := s.enc.Encode(captureRecord{Kind: recordEvent, Event: &ev}); err != nil {
		s.err = fmt.Errorf("write capture event: %w", err)
		return
	}
	s.count++
}

// Header returns the stream header
func (s *CaptureSink) Header() CaptureHeader {
	return s.header
}

// Count returns the number of events written
func (s *CaptureSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Err returns the first write error, if any
func (s *CaptureSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ReadCapture decodes a stream written by CaptureSink
func ReadCapture(r io.Reader) (CaptureHeader, []Event, error) {
	dec := captureDecMode.NewDecoder(r)

	var first captureRecord
	if err := dec.Decode(&first); err != nil {
		return CaptureHeader{}, nil, fmt.Errorf("failed to decode capture header: %w", err)
	}
	if first.Kind != recordHeader || first.Header == nil {
		return CaptureHeader{}, nil, fmt.Errorf("expected capture header, got record kind %d", first.Kind)
	}

	events := []Event{}
	for {
		var rec captureRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return *first.Header, events, fmt.Errorf("failed to decode capture event %d: %w", len(events), err)
		}
		if rec.Kind != recordEvent || rec.Event == nil {
			return *first.Header, events, fmt.Errorf("unexpected record kind %d at event %d", rec.Kind, len(events))
		}
		events = append(events, *rec.Event)
	}

	return *first.Header, events, nil
}
