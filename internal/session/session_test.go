// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

// busWriter records every frame written to it
type busWriter struct {
	mu     sync.Mutex
	frames [][]byte
	fail   error
	closed bool
}

func (w *busWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return 0, w.fail
	}
	w.frames = append(w.frames, append([]byte(nil), p...))
	return len(p), nil
}

func (w *busWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *busWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}

// packets classifies every written frame
func (w *busWriter) packets(t *testing.T) []rnet.Packet {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []rnet.Packet
	for _, raw := range w.frames {
		f, err := rnet.ParseFrame(raw)
		require.NoError(t, err)
		out = append(out, rnet.Classify(rnet.DecodeMessage(f)))
	}
	return out
}

func newTestSequencer(w *busWriter, timeout time.Duration) *Sequencer {
	s := NewSequencer(timeout, zerolog.Nop())
	s.Attach(w)
	return s
}

func volumes(t *testing.T, levels ...int) []rnet.Packet {
	t.Helper()
	var out []rnet.Packet
	for _, v := range levels {
		p, err := rnet.NewSetVolume(1, 2, v)
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

// ============================================================
// Sequencer Tests
// ============================================================

func TestSequencer_IdleSendsImmediately(t *testing.T) {
	w := &busWriter{}
	s := newTestSequencer(w, time.Second)

	require.NoError(t, s.Send(rnet.NewSetPower(1, 0, true)))
	assert.Equal(t, 1, w.count())
	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, s.Pending())
}

func TestSequencer_HandshakeCausingPacketWaits(t *testing.T) {
	w := &busWriter{}
	s := newTestSequencer(w, time.Minute)

	require.NoError(t, s.Send(rnet.NewRequestZoneInfo(1, 2)))
	assert.Equal(t, StateAwaitingHandshake, s.State())

	for _, p := range volumes(t, 10, 20, 30) {
		require.NoError(t, s.Send(p))
	}
	assert.Equal(t, 1, w.count())
	assert.Equal(t, 3, s.Pending())
}

func TestSequencer_OrderAfterHandshake(t *testing.T) {
	w := &busWriter{}
	s := newTestSequencer(w, time.Minute)

	require.NoError(t, s.Send(rnet.NewRequestZoneInfo(1, 2)))
	queued := volumes(t, 10, 20, 30)
	for _, p := range queued {
		require.NoError(t, s.Send(p))
	}

	// Our acknowledge of the controller's reply releases the queue
	require.NoError(t, s.Send(rnet.NewHandshake(1)))

	got := w.packets(t)
	require.Len(t, got, 5)
	assert.Equal(t, rnet.NewRequestZoneInfo(1, 2), got[0])
	assert.Equal(t, rnet.NewHandshake(1), got[1])
	assert.Equal(t, queued, got[2:])
	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, s.Pending())
}

func TestSequencer_OnHandshakeReceivedDrains(t *testing.T) {
	w := &busWriter{}
	s := newTestSequencer(w, time.Minute)

	require.NoError(t, s.Send(rnet.NewRequestZoneInfo(1, 2)))
	queued := volumes(t, 40, 50, 60)
	for _, p := range queued {
		require.NoError(t, s.Send(p))
	}

	require.NoError(t, s.OnHandshakeReceived(1))
	got := w.packets(t)
	require.Len(t, got, 4)
	assert.Equal(t, queued, got[1:])
}

func TestSequencer_DrainStopsAtNextWait(t *testing.T) {
	w := &busWriter{}
	s := newTestSequencer(w, time.Minute)

	require.NoError(t, s.Send(rnet.NewRequestZoneInfo(1, 0)))
	require.NoError(t, s.Send(rnet.NewSetPower(1, 0, true)))
	require.NoError(t, s.Send(rnet.NewRequestZoneInfo(1, 1)))
	require.NoError(t, s.Send(rnet.NewSetPower(1, 1, true)))

	require.NoError(t, s.OnHandshakeReceived(1))
	assert.Equal(t, 3, w.count())
	assert.Equal(t, StateAwaitingHandshake, s.State())
	assert.Equal(t, 1, s.Pending())

	require.NoError(t, s.OnHandshakeReceived(1))
	assert.Equal(t, 4, w.count())
	assert.Equal(t, StateIdle, s.State())
}

func TestSequencer_TimeoutRecovers(t *testing.T) {
	w := &busWriter{}
	s := newTestSequencer(w, 20*time.Millisecond)

	require.NoError(t, s.Send(rnet.NewRequestZoneInfo(1, 2)))
	queued := volumes(t, 10, 20, 30)
	for _, p := range queued {
		require.NoError(t, s.Send(p))
	}

	require.Eventually(t, func() bool { return w.count() == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, queued, w.packets(t)[1:])
	assert.Equal(t, StateIdle, s.State())

	transmitted, timeouts := s.Counters()
	assert.Equal(t, uint64(4), transmitted)
	assert.Equal(t, uint64(1), timeouts)
}

func TestSequencer_HandshakeCancelsTimeout(t *testing.T) {
	w := &busWriter{}
	s := newTestSequencer(w, 30*time.Millisecond)

	require.NoError(t, s.Send(rnet.NewRequestZoneInfo(1, 2)))
	require.NoError(t, s.OnHandshakeReceived(1))

	time.Sleep(60 * time.Millisecond)
	_, timeouts := s.Counters()
	assert.Zero(t, timeouts)
}

func TestSequencer_ResetAndClose(t *testing.T) {
	w := &busWriter{}
	s := newTestSequencer(w, time.Minute)

	require.NoError(t, s.Send(rnet.NewRequestZoneInfo(1, 2)))
	require.NoError(t, s.Send(rnet.NewSetPower(1, 2, false)))

	s.Reset()
	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, s.Pending())
	assert.ErrorIs(t, s.Send(rnet.NewSetPower(1, 2, true)), ErrNotConnected)

	s.Attach(w)
	require.NoError(t, s.Send(rnet.NewSetPower(1, 2, true)))

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send(rnet.NewSetPower(1, 2, true)), ErrSessionClosed)
}

func TestSequencer_WriteFailure(t *testing.T) {
	w := &busWriter{fail: errors.New("device gone")}
	s := newTestSequencer(w, time.Minute)

	err := s.Send(rnet.NewSetPower(1, 0, true))
	var ioErr *SerialIOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "write", ioErr.Op)
	assert.Equal(t, StateIdle, s.State())
}

// ============================================================
// Session Tests
// ============================================================

func newTestSession(w *busWriter, timeout time.Duration) *Session {
	s := New(Options{HandshakeTimeout: timeout, Logger: zerolog.Nop()})
	s.Connect(w)
	return s
}

func feed(t *testing.T, s *Session, data []byte) []rnet.Packet {
	t.Helper()
	var out []rnet.Packet
	for _, b := range data {
		p, _ := s.DecodeStream(b)
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func TestSession_AcknowledgesZoneReply(t *testing.T) {
	w := &busWriter{}
	s := newTestSession(w, time.Minute)

	reply := &rnet.ZonePowerPacket{ControllerID: 1, ZoneID: 3, Power: true}
	got := feed(t, s, rnet.EncodePacket(reply))

	require.Len(t, got, 1)
	assert.Equal(t, reply, got[0])
	assert.Equal(t, []rnet.Packet{rnet.NewHandshake(1)}, w.packets(t))
	assert.Equal(t, uint64(1), s.Stats().HandshakesSent)
}

func TestSession_DisconnectedDoesNotAcknowledge(t *testing.T) {
	w := &busWriter{}
	s := newTestSession(w, time.Minute)
	s.Disconnect()

	var errs []error
	s.OnError(func(err error) { errs = append(errs, err) })

	reply := &rnet.ZonePowerPacket{ControllerID: 1, ZoneID: 3, Power: true}
	got := feed(t, s, rnet.EncodePacket(reply))

	require.Len(t, got, 1)
	assert.Equal(t, reply, got[0])
	assert.Empty(t, errs)
	assert.Zero(t, w.count())
	assert.Zero(t, s.Stats().HandshakesSent)
}

func TestSession_ErrorHandlers(t *testing.T) {
	w := &busWriter{}
	s := newTestSession(w, time.Minute)

	var first, second int
	s.OnError(func(error) { first++ })
	s.OnError(func(error) { second++ })

	// End marker outside a frame
	_, err := s.DecodeStream(rnet.EndByte)
	require.Error(t, err)
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestSession_NoAcknowledgeForKeypadEvent(t *testing.T) {
	w := &busWriter{}
	s := newTestSession(w, time.Minute)

	ev := &rnet.KeypadEventPacket{ControllerID: 1, ZoneID: 2, Key: rnet.KeyPower}
	got := feed(t, s, rnet.EncodePacket(ev))

	require.Len(t, got, 1)
	assert.Zero(t, w.count())
}

func TestSession_RequestReplyExchange(t *testing.T) {
	w := &busWriter{}
	s := newTestSession(w, time.Minute)

	require.NoError(t, s.Send(rnet.NewRequestZoneInfo(1, 2)))
	require.NoError(t, s.Send(rnet.NewSetPower(1, 2, true)))
	assert.Equal(t, 1, w.count())

	info := &rnet.ZoneInfoPacket{ControllerID: 1, ZoneID: 2, Volume: 20}
	feed(t, s, rnet.EncodePacket(info))

	got := w.packets(t)
	require.Len(t, got, 3)
	assert.Equal(t, rnet.NewHandshake(1), got[1])
	assert.Equal(t, rnet.NewSetPower(1, 2, true), got[2])
}

func TestSession_InboundHandshakeReleasesQueue(t *testing.T) {
	w := &busWriter{}
	s := newTestSession(w, time.Minute)

	require.NoError(t, s.Send(rnet.NewRequestZoneInfo(1, 2)))
	require.NoError(t, s.Send(rnet.NewSetPower(1, 2, false)))

	// Controller 1 handshakes rnetstat
	hs := rnet.EncodeFrame(rnet.Header{
		TargetKeypadID:     rnet.ExternalKeypadID,
		SourceControllerID: 1,
		SourceKeypadID:     rnet.ControllerKeypadID,
		MessageType:        rnet.MsgHandshake,
	}, []byte{rnet.HandshakeTypeRequest})
	feed(t, s, hs)

	assert.Equal(t, 2, w.count())
	assert.Equal(t, StateIdle, s.Sequencer().State())
}

func TestSession_StrayStartRecovery(t *testing.T) {
	w := &busWriter{}
	s := newTestSession(w, time.Minute)

	var errs []error
	s.OnError(func(err error) { errs = append(errs, err) })

	frame := rnet.EncodePacket(&rnet.ZoneVolumePacket{ControllerID: 1, ZoneID: 0, Volume: 30})
	stream := append([]byte{0x42, rnet.StartByte, 0x01, 0x02}, frame...)

	got := feed(t, s, stream)
	require.Len(t, got, 1)
	assert.Equal(t, &rnet.ZoneVolumePacket{ControllerID: 1, ZoneID: 0, Volume: 30}, got[0])
	assert.Len(t, errs, 2)
	assert.Equal(t, uint64(2), s.Stats().FramingErrors)
}

func TestSession_Observers(t *testing.T) {
	w := &busWriter{}
	s := newTestSession(w, time.Minute)

	var events []Event
	s.Observe(func(e Event) { events = append(events, e) })

	feed(t, s, rnet.EncodePacket(&rnet.ZoneSourcePacket{ControllerID: 2, ZoneID: 1, SourceID: 3}))

	require.Len(t, events, 2)
	assert.Equal(t, Inbound, events[0].Direction)
	assert.IsType(t, &rnet.ZoneSourcePacket{}, events[0].Packet)
	assert.Equal(t, Outbound, events[1].Direction)
	assert.Equal(t, rnet.NewHandshake(2), events[1].Packet)
	assert.Equal(t, "TX", events[1].Direction.String())
}

func TestSession_Run(t *testing.T) {
	w := &busWriter{}
	s := newTestSession(w, time.Minute)

	var stream []byte
	stream = append(stream, rnet.EncodePacket(&rnet.ZonePowerPacket{ControllerID: 1, ZoneID: 0, Power: true})...)
	stream = append(stream, rnet.EncodePacket(&rnet.KeypadEventPacket{ControllerID: 1, ZoneID: 0, Key: rnet.KeyPlay})...)

	var packets []rnet.Packet
	s.Observe(func(e Event) {
		if e.Direction == Inbound {
			packets = append(packets, e.Packet)
		}
	})

	require.NoError(t, s.Run(context.Background(), bytes.NewReader(stream)))
	assert.Len(t, packets, 2)
	assert.Equal(t, uint64(2), s.Stats().TotalFrames)
}

func TestSession_RunCancelled(t *testing.T) {
	s := newTestSession(&busWriter{}, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx, bytes.NewReader(nil)), context.Canceled)
}

func TestSession_DisconnectAndClose(t *testing.T) {
	w := &busWriter{}
	s := newTestSession(w, time.Minute)
	require.True(t, s.Connected())

	s.Disconnect()
	assert.False(t, s.Connected())
	assert.ErrorIs(t, s.Send(rnet.NewSetAllPower(false)), ErrNotConnected)

	s.Connect(w)
	require.NoError(t, s.Close())
	assert.True(t, w.closed)
	assert.ErrorIs(t, s.Send(rnet.NewSetAllPower(false)), ErrSessionClosed)
}
