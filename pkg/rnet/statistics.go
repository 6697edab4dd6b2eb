// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rnet

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames      uint64
	ValidFrames      uint64
	Unclassified     uint64
	FramingErrors    uint64
	DecodeErrors     uint64
	ChecksumErrors   uint64
	TruncatedFrames  uint64
	MalformedPackets uint64
	AnomalousValues  uint64
	HandshakesSent   uint64
	HandshakesRecv   uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// UpdateError counts a decoder error. Framing errors are tracked apart from
// frames that failed to parse.
func (s *Statistics) UpdateError(err error) {
	var framingErr *FramingError
	if errors.As(err, &framingErr) {
		s.FramingErrors++
	} else {
		s.TotalFrames++
		s.DecodeErrors++
	}
	s.LastUpdateTime = time.Now()
}

// Update updates statistics based on a decoded frame, its packet (nil when
// unclassified) and any validation errors
func (s *Statistics) Update(p Packet, validationErrors []ValidationError) {
	s.TotalFrames++

	if p == nil {
		s.Unclassified++
	}
	if _, ok := p.(*HandshakePacket); ok {
		s.HandshakesRecv++
	}

	if len(validationErrors) > 0 {
		for _, err := range validationErrors {
			switch err.Type {
			case AnomalyChecksumError:
				s.ChecksumErrors++
			case AnomalyTruncated:
				s.TruncatedFrames++
				s.MalformedPackets++
			case AnomalyLengthMismatch:
				s.MalformedPackets++
			default:
				s.AnomalousValues++
			}
		}
	} else {
		s.ValidFrames++
	}

	s.LastUpdateTime = time.Now()
}

// ErrorCount returns the total number of errors and anomalies counted
func (s *Statistics) ErrorCount() uint64 {
	return s.FramingErrors + s.DecodeErrors + s.ChecksumErrors + s.MalformedPackets + s.AnomalousValues
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.ErrorCount()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, percent(s.ValidFrames))
	result += fmt.Sprintf("Unclassified:    %8d (%.1f%%)\n", s.Unclassified, percent(s.Unclassified))

	if s.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d\n", s.FramingErrors)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, percent(s.DecodeErrors))
	}
	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, percent(s.ChecksumErrors))
	}
	if s.MalformedPackets > 0 {
		result += fmt.Sprintf("Malformed Pkts:  %8d (%.1f%%)\n", s.MalformedPackets, percent(s.MalformedPackets))
		if s.TruncatedFrames > 0 {
			result += fmt.Sprintf("  Truncated:        %5d\n", s.TruncatedFrames)
		}
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d (%.1f%%)\n", s.AnomalousValues, percent(s.AnomalousValues))
	}
	if s.HandshakesSent > 0 || s.HandshakesRecv > 0 {
		result += fmt.Sprintf("Handshakes:      %8d sent, %d received\n", s.HandshakesSent, s.HandshakesRecv)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
