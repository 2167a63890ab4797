// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func sampleExchange(start time.Time) []Event {
	return []Event{
		{Time: start, Kind: EventSent, Frame: "?LW", Elapsed: 40 * time.Microsecond},
		{Time: start.Add(2 * time.Millisecond), Kind: EventReceived, Frame: "\r\n", Phase: 1, Elapsed: 2 * time.Millisecond},
		{Time: start.Add(5 * time.Millisecond), Kind: EventReceived, Frame: "?LW=405\r\n", Phase: 2, Elapsed: 3 * time.Millisecond},
	}
}

// ============================================================
// Capture Tests
// ============================================================

func TestCapture_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewCaptureSink(&buf, "Serial: /dev/ttyUSB0 @ 19200 baud")
	if err != nil {
		t.Fatalf("NewCaptureSink: %v", err)
	}

	events := sampleExchange(time.Date(2025, 3, 4, 5, 6, 7, 8_000_000, time.UTC))
	events = append(events, Event{
		Time:    events[2].Time.Add(time.Second),
		Kind:    EventTimeout,
		Phase:   1,
		Elapsed: time.Second,
	}, Event{
		Time:  events[2].Time.Add(2 * time.Second),
		Kind:  EventError,
		Frame: "?F",
		Phase: 2,
		Err:   "stradus: i/o error: read: unexpected EOF",
	})
	for _, ev := range events {
		sink.Record(ev)
	}
	if sink.Count() != len(events) || sink.Err() != nil {
		t.Fatalf("Count = %d, Err = %v", sink.Count(), sink.Err())
	}

	header, got, err := ReadCapture(&buf)
	if err != nil {
		t.Fatalf("ReadCapture: %v", err)
	}
	if header.Session != sink.Header().Session {
		t.Errorf("session = %s, want %s", header.Session, sink.Header().Session)
	}
	if header.Endpoint != "Serial: /dev/ttyUSB0 @ 19200 baud" {
		t.Errorf("endpoint = %q", header.Endpoint)
	}
	if !header.Started.Equal(sink.Header().Started) {
		t.Errorf("started = %v, want %v", header.Started, sink.Header().Started)
	}
	if diff := cmp.Diff(events, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestCapture_EmptyStream(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewCaptureSink(&buf, "Simulator"); err != nil {
		t.Fatalf("NewCaptureSink: %v", err)
	}

	header, events, err := ReadCapture(&buf)
	if err != nil {
		t.Fatalf("ReadCapture: %v", err)
	}
	if header.Endpoint != "Simulator" {
		t.Errorf("endpoint = %q", header.Endpoint)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("events = %v, want empty non-nil", events)
	}
}

func TestCapture_Truncated(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewCaptureSink(&buf, "Simulator")
	if err != nil {
		t.Fatalf("NewCaptureSink: %v", err)
	}
	for _, ev := range sampleExchange(time.Now()) {
		sink.Record(ev)
	}

	data := buf.Bytes()[:buf.Len()-3]
	_, events, err := ReadCapture(bytes.NewReader(data))
	if err == nil {
		t.Fatal("expected error for truncated stream")
	}
	if len(events) != 2 {
		t.Errorf("decoded %d events before truncation, want 2", len(events))
	}
}

func TestCapture_NotACapture(t *testing.T) {
	_, events, err := ReadCapture(strings.NewReader(""))
	if err == nil || events != nil {
		t.Errorf("empty input: events = %v, err = %v", events, err)
	}

	_, events, err = ReadCapture(strings.NewReader("hello world"))
	if err == nil || events != nil {
		t.Errorf("text input: events = %v, err = %v", events, err)
	}
}

type failingWriter struct {
	allow int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.allow <= 0 {
		return 0, errors.New("disk full")
	}
	w.allow--
	return len(p), nil
}

func TestCapture_WriteErrorKept(t *testing.T) {
	sink, err := NewCaptureSink(&failingWriter{allow: 1}, "Simulator")
	if err != nil {
		t.Fatalf("NewCaptureSink: %v", err)
	}
	for _, ev := range sampleExchange(time.Now()) {
		sink.Record(ev)
	}
	if sink.Err() == nil {
		t.Fatal("expected write error")
	}
	if sink.Count() != 0 {
		t.Errorf("Count = %d, want 0", sink.Count())
	}

	if _, err := NewCaptureSink(&failingWriter{}, "Simulator"); err == nil {
		t.Error("expected header write error")
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Record(t *testing.T) {
	stats := NewStatistics()
	start := time.Now()
	for _, ev := range sampleExchange(start) {
		stats.Record(ev)
	}
	stats.Record(Event{Time: start.Add(time.Second), Kind: EventSent, Frame: "?FC"})
	stats.Record(Event{Time: start.Add(2 * time.Second), Kind: EventTimeout, Frame: "?F", Phase: 2})
	stats.Record(Event{Kind: EventTimeout, Phase: 1})
	stats.Record(Event{Kind: EventError, Err: "boom"})

	snap := stats.Snapshot()
	if snap.Exchanges != 2 || snap.Replies != 1 {
		t.Errorf("Exchanges = %d, Replies = %d; want 2, 1", snap.Exchanges, snap.Replies)
	}
	if snap.Timeouts != 2 || snap.PartialFrames != 1 || snap.IOErrors != 1 {
		t.Errorf("Timeouts = %d, PartialFrames = %d, IOErrors = %d", snap.Timeouts, snap.PartialFrames, snap.IOErrors)
	}
	if snap.BytesSent != 8 {
		t.Errorf("BytesSent = %d, want 8", snap.BytesSent)
	}
	if snap.BytesReceived != uint64(len("\r\n?LW=405\r\n?F")) {
		t.Errorf("BytesReceived = %d", snap.BytesReceived)
	}
	if snap.LastRTT != 5*time.Millisecond || snap.MinRTT != 5*time.Millisecond || snap.MaxRTT != 5*time.Millisecond {
		t.Errorf("RTT last/min/max = %v/%v/%v, want 5ms", snap.LastRTT, snap.MinRTT, snap.MaxRTT)
	}
	if stats.MeanRTT() != 5*time.Millisecond {
		t.Errorf("MeanRTT = %v, want 5ms", stats.MeanRTT())
	}
}

func TestStatistics_SnapshotIsCopy(t *testing.T) {
	stats := NewStatistics()
	stats.Record(Event{Time: time.Now(), Kind: EventSent, Frame: "?LW"})
	snap := stats.Snapshot()

	stats.Record(Event{Time: time.Now(), Kind: EventSent, Frame: "?LW"})
	if snap.Exchanges != 1 {
		t.Errorf("snapshot changed after Record: Exchanges = %d", snap.Exchanges)
	}
}

func TestStatistics_StringAndReset(t *testing.T) {
	stats := NewStatistics()
	for _, ev := range sampleExchange(time.Now()) {
		stats.Record(ev)
	}
	stats.Record(Event{Kind: EventTimeout, Frame: "x"})

	out := stats.String()
	for _, want := range []string{"Exchanges:", "Replies:", "Timeouts:", "Partial Frames:", "RTT min/avg/max: 5ms/5ms/5ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "I/O Errors") {
		t.Errorf("String() should omit zero I/O errors:\n%s", out)
	}

	stats.Reset()
	snap := stats.Snapshot()
	if snap.Exchanges != 0 || snap.Timeouts != 0 || snap.MaxRTT != 0 || snap.BytesReceived != 0 {
		t.Errorf("counters not reset: %+v", snap)
	}
	if stats.MeanRTT() != 0 {
		t.Errorf("MeanRTT after reset = %v", stats.MeanRTT())
	}
}

func TestStatistics_IgnoresReplyWithoutRequest(t *testing.T) {
	stats := NewStatistics()
	stats.Record(Event{Time: time.Now(), Kind: EventReceived, Frame: "?LW=405\r\n", Phase: 2})

	snap := stats.Snapshot()
	if snap.Replies != 1 || snap.LastRTT != 0 {
		t.Errorf("Replies = %d, LastRTT = %v", snap.Replies, snap.LastRTT)
	}
}

// ============================================================
// Sink Tests
// ============================================================

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sink := MultiSink{a, nil, b}

	sink.Record(Event{Kind: EventSent, Frame: "?LW"})
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("fan-out counts = %d, %d; want 1, 1", len(a.events), len(b.events))
	}
}

func TestLogSink_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewLogSink(logger)

	sink.Record(Event{Kind: EventReceived, Frame: "?LW=405\r\n", Phase: 2})
	sink.Record(Event{Kind: EventTimeout, Phase: 1})
	sink.Record(Event{Kind: EventError, Err: "unplugged"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d:\n%s", len(lines), buf.String())
	}
	checks := []struct {
		level string
		kind  string
	}{
		{"level=DEBUG", "kind=RECEIVED"},
		{"level=WARN", "kind=TIMEOUT"},
		{"level=ERROR", "kind=ERROR"},
	}
	for i, c := range checks {
		if !strings.Contains(lines[i], c.level) || !strings.Contains(lines[i], c.kind) {
			t.Errorf("line %d = %q, want %s %s", i, lines[i], c.level, c.kind)
		}
	}
	if !strings.Contains(lines[2], "error=unplugged") {
		t.Errorf("error line missing error attribute: %q", lines[2])
	}
}

func TestEventKind_String(t *testing.T) {
	if EventKind(9).String() != "UNKNOWN" {
		t.Errorf("EventKind(9) = %q", EventKind(9).String())
	}
	if NewLogSink(nil).Logger == nil {
		t.Error("NewLogSink(nil) should use the default logger")
	}
}
