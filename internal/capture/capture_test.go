// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/rnetstat/internal/session"
	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

func TestCapture_WriteRead(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	start := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)
	want := []Record{
		{Direction: uint8(session.Inbound), UnixNanos: start.UnixNano(), Raw: rnet.EncodePacket(rnet.NewHandshake(1))},
		{Direction: uint8(session.Outbound), UnixNanos: start.Add(time.Millisecond).UnixNano(), Raw: rnet.EncodePacket(rnet.NewRequestZoneInfo(1, 2))},
	}
	for _, rec := range want {
		require.NoError(t, w.Write(rec))
	}
	require.NoError(t, w.Flush())
	assert.Equal(t, 2, w.Count())

	got, err := NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.True(t, got[0].Inbound())
	assert.False(t, got[1].Inbound())
	assert.True(t, got[0].Time().Equal(start))
}

func TestCapture_Empty(t *testing.T) {
	_, err := NewReader(bytes.NewReader(nil)).Next()
	assert.Equal(t, io.EOF, err)
}

func TestCapture_Corrupt(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Write(Record{Raw: []byte{0xF0, 0xF7}}))
	require.NoError(t, w.Flush())

	// A truncated second record fails after the first decodes
	buf.Write([]byte{0x83, 0x00})

	records, err := NewReader(&buf).ReadAll()
	assert.Error(t, err)
	assert.Len(t, records, 1)
}

func TestCapture_Observer(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	observe := w.Observer()

	raw := rnet.EncodePacket(rnet.NewSetPower(1, 0, true))
	f, err := rnet.ParseFrame(raw)
	require.NoError(t, err)

	now := time.Now()
	observe(session.Event{Direction: session.Outbound, Time: now, Frame: f})
	observe(session.Event{Direction: session.Inbound, Time: now})
	require.NoError(t, w.Flush())

	got, err := NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 1, "events without a frame are skipped")
	assert.Equal(t, raw, got[0].Raw)
	assert.Equal(t, uint8(session.Outbound), got[0].Direction)
	assert.Equal(t, now.UnixNano(), got[0].UnixNanos)
}
