// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"io"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

// DefaultHandshakeTimeout is how long the sequencer waits for a controller's
// handshake before giving up and sending the next queued packet.
const DefaultHandshakeTimeout = 3000 * time.Millisecond

// ErrNotConnected is returned by Send while no transport is attached.
var ErrNotConnected = errors.New("not connected")

// State is the sequencer's handshake state
type State int

const (
	StateIdle State = iota
	StateAwaitingHandshake
)

func (s State) String() string {
	if s == StateAwaitingHandshake {
		return "AWAITING_HANDSHAKE"
	}
	return "IDLE"
}

// Sequencer serializes writes to the bus. After a packet that makes the
// controller answer with a handshake-requiring reply, further packets are
// queued until the handshake exchange completes or times out.
type Sequencer struct {
	mu      sync.Mutex
	w       io.Writer
	log     zerolog.Logger
	timeout time.Duration

	state       State
	awaitingCtl byte
	queue       []rnet.Packet
	timer       *time.Timer
	generation  uint64
	closed      bool

	transmitted uint64
	timeouts    uint64

	// onTransmit runs under the sequencer lock and must not call Send
	onTransmit func(p rnet.Packet, raw []byte)
}

// NewSequencer creates an idle sequencer with no transport attached
func NewSequencer(timeout time.Duration, log zerolog.Logger) *Sequencer {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	return &Sequencer{
		timeout: timeout,
		log:     log,
	}
}

// Attach sets the transport and clears any previous state
func (s *Sequencer) Attach(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.w = w
}

// Reset drops queued packets, cancels the handshake timeout and detaches the
// transport. Sends fail with ErrNotConnected until Attach is called again.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.w = nil
}

// Close resets the sequencer permanently
func (s *Sequencer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.w = nil
	s.closed = true
	return nil
}

// Send transmits p now or queues it behind an outstanding handshake.
// Handshakes always go out immediately and release the queue.
func (s *Sequencer) Send(p rnet.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.w == nil {
		return ErrNotConnected
	}

	if _, ok := p.(*rnet.HandshakePacket); ok {
		if err := s.transmitLocked(p); err != nil {
			return err
		}
		s.clearWaitLocked()
		return s.drainLocked()
	}

	if s.state == StateIdle && len(s.queue) == 0 {
		return s.transmitLocked(p)
	}

	s.queue = append(s.queue, p)
	s.log.Debug().
		Int("queued", len(s.queue)).
		Str("state", s.state.String()).
		Msg("packet queued")
	return nil
}

// OnHandshakeReceived ends the wait started by a handshake-causing packet and
// sends whatever was queued behind it.
func (s *Sequencer) OnHandshakeReceived(controllerID byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingHandshake {
		return nil
	}
	if controllerID != s.awaitingCtl {
		s.log.Debug().
			Uint8("expected", s.awaitingCtl).
			Uint8("controller", controllerID).
			Msg("handshake from unexpected controller")
	}
	s.clearWaitLocked()
	return s.drainLocked()
}

// State returns the current handshake state
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the number of queued packets
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Counters returns the number of packets written and handshake timeouts seen
func (s *Sequencer) Counters() (transmitted, timeouts uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transmitted, s.timeouts
}

func (s *Sequencer) transmitLocked(p rnet.Packet) error {
	raw := rnet.EncodePacket(p)
	if _, err := s.w.Write(raw); err != nil {
		return &SerialIOError{Op: "write", Err: err}
	}
	s.transmitted++

	if s.onTransmit != nil {
		s.onTransmit(p, raw)
	}

	if p.CausesResponseWithHandshake() {
		s.state = StateAwaitingHandshake
		s.awaitingCtl = p.Message().MessageHeader().TargetControllerID
		s.armLocked()
	}
	return nil
}

func (s *Sequencer) drainLocked() error {
	for s.state == StateIdle && len(s.queue) > 0 {
		next := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		if err := s.transmitLocked(next); err != nil {
			return err
		}
	}
	return nil
}

// armLocked starts the handshake timeout. The generation counter discards a
// timer that fires after it was superseded.
func (s *Sequencer) armLocked() {
	s.stopTimerLocked()
	gen := s.generation
	s.timer = time.AfterFunc(s.timeout, func() { s.expire(gen) })
}

func (s *Sequencer) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.state != StateAwaitingHandshake {
		return
	}

	s.timeouts++
	s.log.Warn().
		Err(&HandshakeTimeoutError{ControllerID: s.awaitingCtl, Timeout: s.timeout}).
		Int("queued", len(s.queue)).
		Msg("handshake timeout, resuming")

	s.timer = nil
	s.state = StateIdle
	if err := s.drainLocked(); err != nil {
		s.log.Error().Err(err).Msg("send after handshake timeout failed")
	}
}

func (s *Sequencer) clearWaitLocked() {
	s.stopTimerLocked()
	s.state = StateIdle
}

func (s *Sequencer) stopTimerLocked() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Sequencer) resetLocked() {
	s.stopTimerLocked()
	s.state = StateIdle
	s.queue = nil
}
