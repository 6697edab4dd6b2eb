// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rnet

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Validator Tests
// ============================================================

func TestValidatePacket_Valid(t *testing.T) {
	for name, p := range samplePackets() {
		errs := ValidatePacket(p, p.Message())
		assert.Empty(t, errs, name)
	}
}

func TestValidatePacket_Anomalies(t *testing.T) {
	tests := []struct {
		name     string
		packet   Packet
		expected AnomalyType
	}{
		{"volume over max", &ZoneVolumePacket{Volume: 120}, AnomalyInvalidVolume},
		{"set volume negative", &SetVolumePacket{Volume: -2}, AnomalyInvalidVolume},
		{"source out of range", &ZoneSourcePacket{SourceID: 7}, AnomalyInvalidSource},
		{"parameter out of range", &ZoneParameterPacket{Parameter: ParamBass, Value: SignedValue(15)}, AnomalyInvalidParameter},
		{"zone info bass", &ZoneInfoPacket{Bass: 11}, AnomalyInvalidValue},
		{"zone info party mode", &ZoneInfoPacket{PartyMode: 4}, AnomalyInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidatePacket(tt.packet, nil)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.expected, errs[0].Type)
			assert.NotEmpty(t, errs[0].Error())
		})
	}
}

func TestValidatePacket_ShortZoneInfo(t *testing.T) {
	m := dataReply([]byte{0x02, 0x00, 0x01, 0x07}, []byte{0x01, 0x00, 0x10})
	p := Classify(m)
	errs := ValidatePacket(p, m)
	require.Len(t, errs, 1)
	assert.Equal(t, AnomalyLengthMismatch, errs[0].Type)
}

func TestValidateFrame(t *testing.T) {
	raw := append([]byte{}, handshakeFrame...)
	raw[9] = 0x01
	f, err := ParseFrame(raw)
	require.NoError(t, err)

	errs := ValidateFrame(f, DecodeMessage(f))
	require.Len(t, errs, 1)
	assert.Equal(t, AnomalyChecksumError, errs[0].Type)

	f, err = ParseFrame(EncodeFrame(Header{MessageType: MsgData}, []byte{0x03, 0x02}))
	require.NoError(t, err)
	errs = ValidateFrame(f, DecodeMessage(f))
	require.Len(t, errs, 1)
	assert.Equal(t, AnomalyTruncated, errs[0].Type)
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()

	s.Update(NewHandshake(1), nil)
	s.Update(nil, nil)
	s.Update(&ZoneVolumePacket{Volume: 120}, []ValidationError{{Type: AnomalyInvalidVolume}})
	s.Update(&ZoneInfoPacket{}, []ValidationError{{Type: AnomalyChecksumError}, {Type: AnomalyTruncated}})
	s.UpdateError(&FramingError{Reason: "test"})
	s.UpdateError(errors.New("frame too short"))

	assert.Equal(t, uint64(5), s.TotalFrames)
	assert.Equal(t, uint64(2), s.ValidFrames)
	assert.Equal(t, uint64(1), s.Unclassified)
	assert.Equal(t, uint64(1), s.HandshakesRecv)
	assert.Equal(t, uint64(1), s.AnomalousValues)
	assert.Equal(t, uint64(1), s.ChecksumErrors)
	assert.Equal(t, uint64(1), s.TruncatedFrames)
	assert.Equal(t, uint64(1), s.MalformedPackets)
	assert.Equal(t, uint64(1), s.FramingErrors)
	assert.Equal(t, uint64(1), s.DecodeErrors)
	assert.Equal(t, uint64(5), s.ErrorCount())

	out := s.String()
	assert.True(t, strings.HasPrefix(out, "=== Statistics"))
	assert.Contains(t, out, "Framing Errors:")
	assert.Contains(t, out, "Checksum Errors:")

	s.Reset()
	assert.Zero(t, s.TotalFrames)
	assert.WithinDuration(t, time.Now(), s.StartTime, time.Second)
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatPacket(t *testing.T) {
	ts := time.Date(2025, 1, 1, 12, 30, 45, 123000000, time.UTC)
	out := FormatPacket(ts, &ZoneVolumePacket{ControllerID: 1, ZoneID: 2, Volume: 40})

	assert.True(t, strings.HasPrefix(out, "[12:30:45.123] ZONE_VOLUME (0x00)"))
	assert.Contains(t, out, "Zone 1.2: Volume=40")
}

func TestFormatNames(t *testing.T) {
	for name, p := range samplePackets() {
		assert.NotEqual(t, "UNKNOWN", FormatPacketName(p), name)
		assert.NotEmpty(t, FormatPacketFields(p), name)
	}
	assert.Equal(t, "EVENT", FormatMessageType(MsgEvent))
	assert.Equal(t, "UNKNOWN", FormatMessageType(0x42))
	assert.Equal(t, "POWER", FormatKeypadKey(KeyPower))
	assert.Equal(t, "UNKNOWN", FormatKeypadKey(KeypadKey(0x65)))
}

func TestFormatFrame(t *testing.T) {
	f, err := ParseFrame(handshakeFrame)
	require.NoError(t, err)
	out := FormatFrame(f)
	assert.Contains(t, out, "HANDSHAKE (0x02)")
	assert.Contains(t, out, "Payload: 02")
	assert.NotContains(t, out, "mismatch")
}

func TestFormatHex(t *testing.T) {
	assert.Equal(t, "  (no payload)\n", FormatHex(nil))

	data := make([]byte, 17)
	out := FormatHex(data)
	assert.Equal(t, 2, strings.Count(out, "\n"))
}
