// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rnet

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeAll feeds data through a fresh decoder and collects frames and errors
func decodeAll(d *Decoder, data []byte) ([]*Frame, []error) {
	var frames []*Frame
	var errs []error
	for _, b := range data {
		f, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames, errs
}

// handshakeFrame is the acknowledge handshake sent to controller 1
var handshakeFrame = []byte{0xF0, 0x01, 0x00, 0x7F, 0x00, 0x00, 0x70, 0x02, 0x02, 0x6D, 0xF7}

// ============================================================
// Checksum Tests
// ============================================================

func TestCalculateChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{"empty", []byte{}, 0x00},
		{"start marker only", []byte{0xF0}, 0x71},
		{"handshake", handshakeFrame[:9], 0x6D},
		{"all 0x7F header", []byte{0xF0, 0x7F, 0x7F, 0x7F, 0x7F, 0x7F, 0x7F, 0x7F}, 0x71},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateChecksum(tt.data); got != tt.expected {
				t.Errorf("checksum mismatch: expected 0x%02X, got 0x%02X", tt.expected, got)
			}
		})
	}
}

func TestCalculateChecksum_SevenBit(t *testing.T) {
	data := make([]byte, 0, 300)
	for i := 0; i < 300; i++ {
		data = append(data, 0xFF)
		if cs := CalculateChecksum(data); cs > 0x7F {
			t.Fatalf("checksum 0x%02X exceeds 7 bits at length %d", cs, len(data))
		}
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodeFrame_Layout(t *testing.T) {
	h := Header{
		TargetControllerID: 0x01,
		TargetKeypadID:     ControllerKeypadID,
		SourceKeypadID:     ExternalKeypadID,
		MessageType:        MsgHandshake,
	}
	got := EncodeFrame(h, []byte{HandshakeTypeAcknowledge})
	assert.Equal(t, handshakeFrame, got)
}

func TestEncodeFrame_EmptyBody(t *testing.T) {
	got := EncodeFrame(Header{MessageType: MsgData}, nil)
	require.Len(t, got, MinFrameSize)
	assert.Equal(t, byte(StartByte), got[0])
	assert.Equal(t, byte(EndByte), got[len(got)-1])
	assert.Equal(t, CalculateChecksum(got[:8]), got[8])
}

// ============================================================
// ParseFrame Tests
// ============================================================

func TestParseFrame_Valid(t *testing.T) {
	f, err := ParseFrame(handshakeFrame)
	require.NoError(t, err)

	assert.Equal(t, byte(0x01), f.TargetControllerID)
	assert.Equal(t, byte(ControllerKeypadID), f.TargetKeypadID)
	assert.Equal(t, byte(ExternalKeypadID), f.SourceKeypadID)
	assert.Equal(t, byte(MsgHandshake), f.MessageType)
	assert.Equal(t, []byte{0x02}, f.Body)
	assert.Equal(t, byte(0x6D), f.Checksum)
	assert.True(t, f.ChecksumValid())
	assert.Equal(t, handshakeFrame, f.Raw())
}

func TestParseFrame_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"too short", []byte{0xF0, 0x01, 0xF7}},
		{"missing start", append([]byte{0x00}, handshakeFrame[1:]...)},
		{"missing end", append(append([]byte{}, handshakeFrame[:10]...), 0x00)},
		{"header cut by escape", []byte{0xF0, 0xF1, 0x01, 0xF1, 0x02, 0xF1, 0x03, 0xF1, 0x04, 0xF7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFrame(tt.raw); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseFrame_ChecksumMismatchIsWarning(t *testing.T) {
	raw := append([]byte{}, handshakeFrame...)
	raw[9] = 0x00

	f, err := ParseFrame(raw)
	require.NoError(t, err)
	assert.False(t, f.ChecksumValid())
	assert.Equal(t, []byte{0x02}, f.Body)
}

func TestParseFrameAt(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	f, err := ParseFrameAt(handshakeFrame, ts)
	require.NoError(t, err)
	assert.Equal(t, ts, f.Timestamp())
	assert.True(t, f.ChecksumValid())

	_, err = ParseFrameAt([]byte{StartByte, EndByte}, ts)
	assert.Error(t, err)
}

// ============================================================
// Streaming Decoder Tests
// ============================================================

func TestDecoder_SingleFrame(t *testing.T) {
	d := NewDecoder()
	frames, errs := decodeAll(d, handshakeFrame)

	require.Empty(t, errs)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0x02}, frames[0].Body)
	assert.True(t, frames[0].ChecksumValid())
	assert.False(t, d.Pending())
}

func TestDecoder_BackToBackFrames(t *testing.T) {
	stream := append(append([]byte{}, handshakeFrame...), handshakeFrame...)
	frames, errs := decodeAll(NewDecoder(), stream)

	require.Empty(t, errs)
	assert.Len(t, frames, 2)
}

func TestDecoder_StrayStartRecovery(t *testing.T) {
	stream := append([]byte{0xF0, 0x01, 0x02, 0x03}, handshakeFrame...)
	frames, errs := decodeAll(NewDecoder(), stream)

	require.Len(t, errs, 1)
	var framingErr *FramingError
	assert.True(t, errors.As(errs[0], &framingErr))

	require.Len(t, frames, 1)
	assert.Equal(t, handshakeFrame, frames[0].Raw())
}

func TestDecoder_EndWithoutStart(t *testing.T) {
	d := NewDecoder()
	f, err := d.DecodeByte(EndByte)
	assert.Nil(t, f)

	var framingErr *FramingError
	require.True(t, errors.As(err, &framingErr))
	assert.Equal(t, byte(EndByte), framingErr.Byte)
	assert.False(t, d.Pending())
}

func TestDecoder_ByteOutsideFrame(t *testing.T) {
	d := NewDecoder()
	for _, b := range []byte{0x00, 0x42, EscapeByte} {
		f, err := d.DecodeByte(b)
		assert.Nil(t, f)
		var framingErr *FramingError
		assert.True(t, errors.As(err, &framingErr), "byte 0x%02X", b)
	}
	assert.False(t, d.Pending())
}

func TestDecoder_Escape(t *testing.T) {
	// Body byte 0xDD travels as F1 22
	h := Header{TargetControllerID: 0x01, MessageType: MsgHandshake}
	body := []byte{EscapeByte, ^byte(0xDD)}
	raw := EncodeFrame(h, body)

	frames, errs := decodeAll(NewDecoder(), raw)
	require.Empty(t, errs)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0xDD}, frames[0].Body)
	assert.True(t, frames[0].ChecksumValid())
	assert.Equal(t, raw, frames[0].Raw())
}

func TestDecoder_EscapedEscape(t *testing.T) {
	d := NewDecoder()
	for _, b := range []byte{StartByte, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, EscapeByte, EscapeByte} {
		_, err := d.DecodeByte(b)
		require.NoError(t, err)
	}
	// Second escape byte is data, inverted
	assert.Equal(t, byte(^byte(EscapeByte)), d.buffer[len(d.buffer)-1])
	assert.False(t, d.escapeNext)
}

func TestDecoder_ChecksumMismatchStillDelivered(t *testing.T) {
	raw := append([]byte{}, handshakeFrame...)
	raw[9] ^= 0x01

	frames, errs := decodeAll(NewDecoder(), raw)
	require.Empty(t, errs)
	require.Len(t, frames, 1)
	assert.False(t, frames[0].ChecksumValid())
}

func TestDecoder_ShortFrame(t *testing.T) {
	frames, errs := decodeAll(NewDecoder(), []byte{0xF0, 0x01, 0x02, 0xF7})
	assert.Empty(t, frames)
	require.Len(t, errs, 1)

	var framingErr *FramingError
	assert.False(t, errors.As(errs[0], &framingErr), "short frame is a parse error, not a framing error")
}

func TestDecoder_Overflow(t *testing.T) {
	d := NewDecoder()
	stream := append([]byte{StartByte}, bytes.Repeat([]byte{0x11}, MaxFrameSize+10)...)

	frames, errs := decodeAll(d, stream)
	assert.Empty(t, frames)
	require.NotEmpty(t, errs)

	var framingErr *FramingError
	assert.True(t, errors.As(errs[0], &framingErr))

	// Decoder resynchronizes on the next frame
	frames, _ = decodeAll(d, handshakeFrame)
	assert.Len(t, frames, 1)
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	decodeAll(d, handshakeFrame[:5])
	require.True(t, d.Pending())
	assert.Equal(t, handshakeFrame[:5], d.GetRawBytes())

	d.Reset()
	assert.False(t, d.Pending())
	assert.Empty(t, d.GetRawBytes())
}

func TestDecoder_MatchesParseFrame(t *testing.T) {
	packets := []Packet{
		NewHandshake(2),
		NewSetPower(1, 3, true),
		&KeypadEventPacket{ControllerID: 1, ZoneID: 2, Key: KeyPower, Timestamp: 0x00C8, Data: 0x0001},
		&ZoneInfoPacket{ControllerID: 1, ZoneID: 4, Power: true, Volume: 40, Bass: -2},
	}

	for _, p := range packets {
		raw := EncodePacket(p)
		parsed, err := ParseFrame(raw)
		require.NoError(t, err)

		frames, errs := decodeAll(NewDecoder(), raw)
		require.Empty(t, errs)
		require.Len(t, frames, 1)

		assert.Equal(t, parsed.Header, frames[0].Header)
		assert.Equal(t, parsed.Body, frames[0].Body)
		assert.Equal(t, parsed.Checksum, frames[0].Checksum)
		assert.True(t, frames[0].ChecksumValid())
	}
}
