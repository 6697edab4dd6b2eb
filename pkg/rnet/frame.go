// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rnet

import (
	"fmt"
	"time"
)

// Frame is the wire-level RNet envelope. Body holds the message body with
// byte stuffing already removed.
type Frame struct {
	Header
	Body     []byte
	Checksum byte

	raw           []byte
	checksumValid bool
	timestamp     time.Time
}

// Raw returns the frame's wire bytes, including markers and escapes.
func (f *Frame) Raw() []byte {
	return f.raw
}

// ChecksumValid reports whether the transmitted checksum matched the
// computed one. A mismatch is a diagnostic only; the frame is still usable.
func (f *Frame) ChecksumValid() bool {
	return f.checksumValid
}

// Timestamp returns the time the frame was decoded.
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// EncodeFrame wraps a header and an already-encoded message body into a
// complete wire frame. The body is written as-is.
func EncodeFrame(h Header, body []byte) []byte {
	out := make([]byte, 0, MinFrameSize+len(body))
	out = append(out, StartByte,
		h.TargetControllerID, h.TargetZoneID, h.TargetKeypadID,
		h.SourceControllerID, h.SourceZoneID, h.SourceKeypadID,
		h.MessageType)
	out = append(out, body...)
	out = append(out, CalculateChecksum(out), EndByte)
	return out
}

// ParseFrame parses a complete wire frame (start through end marker).
// Escape sequences in the body are resolved.
func ParseFrame(raw []byte) (*Frame, error) {
	if len(raw) < MinFrameSize {
		return nil, fmt.Errorf("frame too short: %d bytes (min %d)", len(raw), MinFrameSize)
	}
	if raw[0] != StartByte {
		return nil, fmt.Errorf("frame does not begin with start marker: 0x%02X", raw[0])
	}
	if raw[len(raw)-1] != EndByte {
		return nil, fmt.Errorf("frame does not end with end marker: 0x%02X", raw[len(raw)-1])
	}

	inner := make([]byte, 0, len(raw))
	escapeNext := false
	for _, b := range raw[1 : len(raw)-1] {
		if escapeNext {
			inner = append(inner, ^b)
			escapeNext = false
			continue
		}
		if b == EscapeByte {
			escapeNext = true
			continue
		}
		inner = append(inner, b)
	}
	return buildFrame(raw, inner)
}

// ParseFrameAt is ParseFrame for a frame captured at ts.
func ParseFrameAt(raw []byte, ts time.Time) (*Frame, error) {
	f, err := ParseFrame(raw)
	if err != nil {
		return nil, err
	}
	f.timestamp = ts
	return f, nil
}

// buildFrame assembles a Frame from wire bytes and the unstuffed bytes
// between the markers.
func buildFrame(raw, inner []byte) (*Frame, error) {
	if len(inner) < HeaderSize+1 {
		return nil, fmt.Errorf("frame too short after unescaping: %d bytes", len(inner)+2)
	}

	wire := make([]byte, len(raw))
	copy(wire, raw)

	f := &Frame{
		Header: Header{
			TargetControllerID: inner[0],
			TargetZoneID:       inner[1],
			TargetKeypadID:     inner[2],
			SourceControllerID: inner[3],
			SourceZoneID:       inner[4],
			SourceKeypadID:     inner[5],
			MessageType:        inner[6],
		},
		Body:      append([]byte(nil), inner[HeaderSize:len(inner)-1]...),
		Checksum:  inner[len(inner)-1],
		raw:       wire,
		timestamp: time.Now(),
	}
	f.checksumValid = CalculateChecksum(wire[:len(wire)-2]) == f.Checksum
	return f, nil
}

// Decoder implements the streaming RNet frame decoder. It is not safe for
// concurrent use; feed it from a single reader.
type Decoder struct {
	state      int
	buffer     []byte // unstuffed bytes between the markers
	rawBuffer  []byte // wire bytes including framing
	escapeNext bool
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		buffer:    make([]byte, 0, MaxFrameSize),
		rawBuffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset drops any pending frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.escapeNext = false
	d.buffer = d.buffer[:0]
	d.rawBuffer = d.rawBuffer[:0]
}

// Pending reports whether a frame is being accumulated
func (d *Decoder) Pending() bool {
	return d.state == stateFrame
}

// GetRawBytes returns the wire bytes of the pending frame
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns a *FramingError for stray bytes; the decoder resynchronizes on the
// next start marker. A malformed complete frame returns a plain error.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch b {
	case StartByte:
		var err error
		if d.state == stateFrame {
			err = &FramingError{Reason: "start marker inside pending frame, discarding", Byte: b}
		}
		d.Reset()
		d.state = stateFrame
		d.rawBuffer = append(d.rawBuffer, b)
		return nil, err

	case EndByte:
		if d.state != stateFrame {
			return nil, &FramingError{Reason: "end marker without start marker", Byte: b}
		}
		d.rawBuffer = append(d.rawBuffer, b)
		frame, err := buildFrame(d.rawBuffer, d.buffer)
		d.Reset()
		return frame, err
	}

	if d.state != stateFrame {
		return nil, &FramingError{Reason: "byte outside frame", Byte: b}
	}

	if len(d.rawBuffer) >= MaxFrameSize {
		d.Reset()
		return nil, &FramingError{Reason: fmt.Sprintf("frame exceeds %d bytes", MaxFrameSize), Byte: b}
	}
	d.rawBuffer = append(d.rawBuffer, b)

	if b == EscapeByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}
	if d.escapeNext {
		b = ^b
		d.escapeNext = false
	}
	d.buffer = append(d.buffer, b)
	return nil, nil
}
