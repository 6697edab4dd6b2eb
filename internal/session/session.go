// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session drives one RNet connection: it decodes and classifies the
// inbound byte stream, answers handshakes, and sequences outbound packets.
package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/rnetstat/pkg/rnet"
)

// Direction of a frame relative to rnetstat
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "TX"
	}
	return "RX"
}

// Event describes one frame seen by the session. Packet is nil when the frame
// did not classify; Anomalies holds validator findings for inbound frames.
type Event struct {
	Direction Direction
	Time      time.Time
	Frame     *rnet.Frame
	Packet    rnet.Packet
	Anomalies []rnet.ValidationError
}

// Observer receives session events. Outbound events are delivered while the
// sequencer lock is held, so observers must not call Send.
type Observer func(Event)

// Options configure a session
type Options struct {
	HandshakeTimeout time.Duration
	Logger           zerolog.Logger
}

// Session owns the decoder, sequencer and transport of one connection.
type Session struct {
	log     zerolog.Logger
	decoder *rnet.Decoder
	seq     *Sequencer

	mu        sync.Mutex
	conn      io.Writer
	observers []Observer
	stats     *rnet.Statistics
	errs      []func(error)
}

// New creates a disconnected session
func New(opts Options) *Session {
	log := opts.Logger.With().Str("component", "session").Logger()
	s := &Session{
		log:     log,
		decoder: rnet.NewDecoder(),
		seq:     NewSequencer(opts.HandshakeTimeout, log),
		stats:   rnet.NewStatistics(),
	}
	s.seq.onTransmit = s.transmitted
	return s
}

// Connect attaches a transport. Pending decode and send state from any
// previous connection is dropped, so call it while no reader is running.
func (s *Session) Connect(w io.Writer) {
	s.mu.Lock()
	s.conn = w
	s.decoder.Reset()
	s.mu.Unlock()

	s.seq.Attach(w)
	s.log.Info().Msg("connected")
}

// Disconnect detaches the transport without closing it. Queued packets are
// discarded and the handshake timeout is cancelled.
func (s *Session) Disconnect() {
	s.seq.Reset()

	s.mu.Lock()
	s.conn = nil
	s.decoder.Reset()
	s.mu.Unlock()

	s.log.Info().Msg("disconnected")
}

// Connected reports whether a transport is attached
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Observe registers an observer for inbound and outbound frames
func (s *Session) Observe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// OnError registers a callback for decode errors and failed handshake replies
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, fn)
}

// Sequencer returns the session's sequencer
func (s *Session) Sequencer() *Sequencer {
	return s.seq
}

// Send queues or transmits a packet
func (s *Session) Send(p rnet.Packet) error {
	return s.seq.Send(p)
}

// EncodePacket returns the wire bytes for p
func (s *Session) EncodePacket(p rnet.Packet) []byte {
	return rnet.EncodePacket(p)
}

// Stats returns a snapshot of the session's frame statistics
func (s *Session) Stats() rnet.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.stats
}

// ResetStats clears the frame statistics
func (s *Session) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Reset()
}

// DecodeStream feeds one inbound byte. It returns the classified packet when
// the byte completes a frame, nil otherwise. Framing and parse errors are
// returned for reporting only; decoding continues with the next byte.
//
// DecodeStream must be called from a single reader goroutine.
func (s *Session) DecodeStream(b byte) (rnet.Packet, error) {
	f, err := s.decoder.DecodeByte(b)
	if err != nil {
		s.mu.Lock()
		s.stats.UpdateError(err)
		s.mu.Unlock()
		s.reportError(err)
		return nil, err
	}
	if f == nil {
		return nil, nil
	}

	m := rnet.DecodeMessage(f)
	p := rnet.Classify(m)

	anomalies := rnet.ValidateFrame(f, m)
	if p != nil {
		anomalies = append(anomalies, rnet.ValidatePacket(p, m)...)
	}

	s.mu.Lock()
	s.stats.Update(p, anomalies)
	s.mu.Unlock()

	if !f.ChecksumValid() {
		s.log.Warn().
			Uint8("controller", f.SourceControllerID).
			Uint8("type", f.MessageType).
			Msg("checksum mismatch")
	}

	s.notify(Event{Direction: Inbound, Time: f.Timestamp(), Frame: f, Packet: p, Anomalies: anomalies})

	if p == nil {
		return nil, nil
	}

	if _, ok := p.(*rnet.HandshakePacket); ok {
		if err := s.seq.OnHandshakeReceived(f.SourceControllerID); err != nil {
			s.reportError(err)
			return p, err
		}
	}

	// Listen-only sessions never reply
	if p.RequiresHandshake() && s.Connected() {
		if err := s.seq.Send(rnet.NewHandshake(f.SourceControllerID)); err != nil {
			err = errors.Wrap(err, "acknowledge")
			s.reportError(err)
			return p, err
		}
		s.mu.Lock()
		s.stats.HandshakesSent++
		s.mu.Unlock()
	}

	return p, nil
}

// Run reads from r until the context is cancelled or the read fails,
// feeding every byte to DecodeStream. A clean EOF returns nil.
func (s *Session) Run(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			s.DecodeStream(buf[i])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return &SerialIOError{Op: "read", Err: err}
		}
	}
}

// Close detaches the sequencer permanently and closes the transport if it
// implements io.Closer
func (s *Session) Close() error {
	var result error
	if err := s.seq.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if c, ok := conn.(io.Closer); ok {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "close transport"))
		}
	}
	return result
}

// transmitted is the sequencer's transmit hook
func (s *Session) transmitted(p rnet.Packet, raw []byte) {
	f, err := rnet.ParseFrame(raw)
	if err != nil {
		return
	}
	s.notify(Event{Direction: Outbound, Time: f.Timestamp(), Frame: f, Packet: p})
}

func (s *Session) notify(e Event) {
	s.mu.Lock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o(e)
	}
}

func (s *Session) reportError(err error) {
	s.mu.Lock()
	handlers := make([]func(error), len(s.errs))
	copy(handlers, s.errs)
	s.mu.Unlock()

	s.log.Debug().Err(err).Msg("session error")
	for _, fn := range handlers {
		fn(err)
	}
}
