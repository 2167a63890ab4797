// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stradus

import (
	"fmt"
	"sync"
	"time"
)

// Statistics tracks exchange counts, timeouts and round-trip times.
// It implements EventSink and may be read while an Engine records into it.
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Exchanges      uint64 // requests written
	Replies        uint64 // payload frames received
	Timeouts       uint64 // phases that ended without a delimiter
	PartialFrames  uint64 // timeouts that still carried bytes
	IOErrors       uint64
	FramesSent     uint64
	FramesReceived uint64
	BytesSent      uint64
	BytesReceived  uint64

	// Round trip, request written to payload frame received
	LastRTT  time.Duration
	MinRTT   time.Duration
	MaxRTT   time.Duration
	TotalRTT time.Duration

	// Rates (calculated)
	ExchangeRate float64 // exchanges/sec
	ErrorRate    float64 // errors/sec

	sentAt time.Time
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Record updates the counters from one wire event
func (s *Statistics) Record(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case EventSent:
		s.Exchanges++
		s.FramesSent++
		s.BytesSent += uint64(len(ev.Frame) + len(RequestTerminator))
		s.sentAt = ev.Time
	case EventReceived:
		s.FramesReceived++
		s.BytesReceived += uint64(len(ev.Frame))
		if ev.Phase == 2 {
			s.Replies++
			s.observeRTT(ev.Time.Sub(s.sentAt))
		}
	case EventTimeout:
		s.Timeouts++
		s.BytesReceived += uint64(len(ev.Frame))
		if ev.Frame != "" {
			s.PartialFrames++
		}
	case EventError:
		s.IOErrors++
	}

	s.LastUpdateTime = time.Now()
}

func (s *Statistics) observeRTT(rtt time.Duration) {
	if s.sentAt.IsZero() || rtt < 0 {
		return
	}
	s.LastRTT = rtt
	s.TotalRTT += rtt
	if s.MinRTT == 0 || rtt < s.MinRTT {
		s.MinRTT = rtt
	}
	if rtt > s.MaxRTT {
		s.MaxRTT = rtt
	}
}

// MeanRTT returns the average round-trip time over completed replies
func (s *Statistics) MeanRTT() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meanRTT()
}

func (s *Statistics) meanRTT() time.Duration {
	if s.Replies == 0 {
		return 0
	}
	return s.TotalRTT / time.Duration(s.Replies)
}

// CalculateRates calculates exchange and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.ExchangeRate = float64(s.Exchanges) / elapsed
		s.ErrorRate = float64(s.Timeouts+s.IOErrors) / elapsed
	}
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() *Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
	return &Statistics{
		StartTime:      s.StartTime,
		LastUpdateTime: s.LastUpdateTime,
		Exchanges:      s.Exchanges,
		Replies:        s.Replies,
		Timeouts:       s.Timeouts,
		PartialFrames:  s.PartialFrames,
		IOErrors:       s.IOErrors,
		FramesSent:     s.FramesSent,
		FramesReceived: s.FramesReceived,
		BytesSent:      s.BytesSent,
		BytesReceived:  s.BytesReceived,
		LastRTT:        s.LastRTT,
		MinRTT:         s.MinRTT,
		MaxRTT:         s.MaxRTT,
		TotalRTT:       s.TotalRTT,
		ExchangeRate:   s.ExchangeRate,
		ErrorRate:      s.ErrorRate,
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()

	var replyPercent, timeoutPercent float64
	if s.Exchanges > 0 {
		replyPercent = float64(s.Replies) * 100.0 / float64(s.Exchanges)
		timeoutPercent = float64(s.Timeouts) * 100.0 / float64(s.Exchanges)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Exchanges:       %8d\n", s.Exchanges)
	result += fmt.Sprintf("Replies:         %8d (%.1f%%)\n", s.Replies, replyPercent)

	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d (%.1f%%)\n", s.Timeouts, timeoutPercent)
		if s.PartialFrames > 0 {
			result += fmt.Sprintf("  Partial Frames:   %5d\n", s.PartialFrames)
		}
	}
	if s.IOErrors > 0 {
		result += fmt.Sprintf("I/O Errors:      %8d\n", s.IOErrors)
	}

	result += fmt.Sprintf("Bytes Sent:      %8d\n", s.BytesSent)
	result += fmt.Sprintf("Bytes Received:  %8d\n", s.BytesReceived)
	if s.Replies > 0 {
		result += fmt.Sprintf("RTT min/avg/max: %v/%v/%v\n",
			s.MinRTT.Round(time.Microsecond),
			s.meanRTT().Round(time.Microsecond),
			s.MaxRTT.Round(time.Microsecond))
	}
	result += fmt.Sprintf("Exchange Rate:   %8.1f ex/sec\n", s.ExchangeRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.Exchanges = 0
	s.Replies = 0
	s.Timeouts = 0
	s.PartialFrames = 0
	s.IOErrors = 0
	s.FramesSent = 0
	s.FramesReceived = 0
	s.BytesSent = 0
	s.BytesReceived = 0
	s.LastRTT = 0
	s.MinRTT = 0
	s.MaxRTT = 0
	s.TotalRTT = 0
	s.ExchangeRate = 0
	s.ErrorRate = 0
	s.sentAt = time.Time{}
}
