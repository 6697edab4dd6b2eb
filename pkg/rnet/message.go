// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rnet

// Header holds the addressing fields shared by every message.
type Header struct {
	TargetControllerID byte
	TargetZoneID       byte
	TargetKeypadID     byte
	SourceControllerID byte
	SourceZoneID       byte
	SourceKeypadID     byte
	MessageType        byte
}

// Message is a decoded frame body. The set of implementations is closed:
// *DataMessage, *EventMessage, *HandshakeMessage and *OpaqueMessage.
type Message interface {
	MessageHeader() Header
	message()
}

// DataMessage carries a Data (0x00) or RequestData (0x01) body. Display
// messages (0x04) share the Data body layout.
type DataMessage struct {
	Header
	TargetPath   []byte
	SourcePath   []byte
	PacketNumber uint16
	PacketCount  uint16
	Data         []byte

	// Truncated is set when the body ended before all fields were read.
	Truncated bool
}

// EventMessage carries an Event (0x05) body.
type EventMessage struct {
	Header
	TargetPath     []byte
	SourcePath     []byte
	EventID        uint16
	EventTimestamp uint16
	EventData      uint16
	EventPriority  byte

	Truncated bool
}

// HandshakeMessage carries a Handshake (0x02) body.
type HandshakeMessage struct {
	Header
	HandshakeType byte
}

// OpaqueMessage carries a body that is passed through uninterpreted.
type OpaqueMessage struct {
	Header
	Body []byte
}

func (m *DataMessage) MessageHeader() Header      { return m.Header }
func (m *EventMessage) MessageHeader() Header     { return m.Header }
func (m *HandshakeMessage) MessageHeader() Header { return m.Header }
func (m *OpaqueMessage) MessageHeader() Header    { return m.Header }

func (*DataMessage) message()      {}
func (*EventMessage) message()     {}
func (*HandshakeMessage) message() {}
func (*OpaqueMessage) message()    {}

// DecodeMessage decodes a frame's body according to its message type.
// Unknown message types yield an *OpaqueMessage. Decoding never fails;
// short bodies leave trailing fields at their defaults.
func DecodeMessage(f *Frame) Message {
	return DecodeMessageBody(f.Header, f.Body, false)
}

// DecodeMessageBody decodes a message body. When escaped is true the body is
// in wire form and the escape-aware Event fields resolve 0xF1 sequences
// themselves.
func DecodeMessageBody(h Header, body []byte, escaped bool) Message {
	r := &bodyReader{buf: body, escaped: escaped}

	switch h.MessageType {
	case MsgData, MsgDisplayMessage:
		m := &DataMessage{Header: h, PacketCount: 1}
		m.Truncated = decodeDataBody(r, m) != nil
		return m

	case MsgRequestData:
		m := &DataMessage{Header: h, PacketCount: 1}
		m.TargetPath, _ = r.readPath()
		m.SourcePath, _ = r.readPath()
		return m

	case MsgEvent:
		m := &EventMessage{Header: h}
		m.Truncated = decodeEventBody(r, m) != nil
		return m

	case MsgHandshake:
		m := &HandshakeMessage{Header: h}
		m.HandshakeType, _ = r.readByte()
		return m
	}

	return &OpaqueMessage{Header: h, Body: append([]byte(nil), body...)}
}

// DecodeError returns the truncation diagnostic for a decoded message, or nil.
func DecodeError(m Message) error {
	switch msg := m.(type) {
	case *DataMessage:
		if msg.Truncated {
			return &TruncatedMessageError{MessageType: msg.MessageType, Field: "data body"}
		}
	case *EventMessage:
		if msg.Truncated {
			return &TruncatedMessageError{MessageType: msg.MessageType, Field: "event body"}
		}
	}
	return nil
}

func decodeDataBody(r *bodyReader, m *DataMessage) error {
	if r.remaining() == 0 {
		return nil
	}

	var err error
	if m.TargetPath, err = r.readPath(); err != nil {
		return err
	}
	if m.SourcePath, err = r.readPath(); err != nil {
		return err
	}
	if m.PacketNumber, err = r.readUint16(); err != nil {
		return err
	}
	if m.PacketCount, err = r.readUint16(); err != nil {
		m.PacketCount = 1
		return err
	}
	length, err := r.readUint16()
	if err != nil {
		return err
	}
	m.Data, err = r.readN(int(length), "data")
	return err
}

func decodeEventBody(r *bodyReader, m *EventMessage) error {
	if r.remaining() == 0 {
		return nil
	}

	var err error
	if m.TargetPath, err = r.readPath(); err != nil {
		return err
	}
	if m.SourcePath, err = r.readPath(); err != nil {
		return err
	}
	if m.EventID, err = r.readEscapedUint16(); err != nil {
		return err
	}
	if m.EventTimestamp, err = r.readEscapedUint16(); err != nil {
		return err
	}
	if m.EventData, err = r.readEscapedUint16(); err != nil {
		return err
	}
	m.EventPriority, err = r.readEscapedByte()
	return err
}

// EncodeMessage serializes a message body. Framing and checksum are added by
// EncodeFrame.
func EncodeMessage(m Message) []byte {
	w := &bodyWriter{}

	switch msg := m.(type) {
	case *DataMessage:
		w.writePath(msg.TargetPath)
		w.writePath(msg.SourcePath)
		if msg.MessageType == MsgRequestData {
			return w.buf
		}
		w.writeUint16(msg.PacketNumber)
		w.writeUint16(msg.PacketCount)
		w.writeUint16(uint16(len(msg.Data)))
		w.buf = append(w.buf, msg.Data...)

	case *EventMessage:
		w.writePath(msg.TargetPath)
		w.writePath(msg.SourcePath)
		w.writeEscapedUint16(msg.EventID)
		w.writeEscapedUint16(msg.EventTimestamp)
		w.writeEscapedUint16(msg.EventData)
		w.writeEscapedByte(msg.EventPriority)

	case *HandshakeMessage:
		w.buf = append(w.buf, msg.HandshakeType)

	case *OpaqueMessage:
		w.buf = append(w.buf, msg.Body...)
	}

	return w.buf
}

// EncodeMessageFrame encodes a message into a complete wire frame.
func EncodeMessageFrame(m Message) []byte {
	return EncodeFrame(m.MessageHeader(), EncodeMessage(m))
}

// bodyReader reads little-endian fields from a message body.
type bodyReader struct {
	buf     []byte
	pos     int
	escaped bool
}

func (r *bodyReader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *bodyReader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, &TruncatedMessageError{Field: "byte", Offset: r.pos}
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// readN reads n bytes. When fewer remain it returns what is left along with
// a truncation error.
func (r *bodyReader) readN(n int, field string) ([]byte, error) {
	if r.remaining() < n {
		out := append([]byte(nil), r.buf[r.pos:]...)
		err := &TruncatedMessageError{Field: field, Offset: r.pos}
		r.pos = len(r.buf)
		return out, err
	}
	out := append([]byte(nil), r.buf[r.pos:r.pos+n]...)
	r.pos += n
	return out, nil
}

func (r *bodyReader) readPath() ([]byte, error) {
	n, err := r.readByte()
	if err != nil {
		return nil, err
	}
	return r.readN(int(n), "path")
}

func (r *bodyReader) readUint16() (uint16, error) {
	lo, err := r.readByte()
	if err != nil {
		return 0, err
	}
	hi, err := r.readByte()
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

// readEscapedByte resolves an 0xF1 escape preceding the byte when the body is
// in wire form.
func (r *bodyReader) readEscapedByte() (byte, error) {
	b, err := r.readByte()
	if err != nil || !r.escaped || b != EscapeByte {
		return b, err
	}
	b, err = r.readByte()
	if err != nil {
		return 0, err
	}
	return ^b, nil
}

// readEscapedUint16 mirrors writeEscapedUint16: only the low byte may be
// escaped.
func (r *bodyReader) readEscapedUint16() (uint16, error) {
	lo, err := r.readEscapedByte()
	if err != nil {
		return 0, err
	}
	hi, err := r.readByte()
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

// bodyWriter builds a message body.
type bodyWriter struct {
	buf []byte
}

func (w *bodyWriter) writePath(path []byte) {
	w.buf = append(w.buf, byte(len(path)))
	w.buf = append(w.buf, path...)
}

func (w *bodyWriter) writeUint16(v uint16) {
	w.buf = append(w.buf, byte(v), byte(v>>8))
}

// writeEscapedByte emits bytes above 127 as 0xF1 followed by the complement.
func (w *bodyWriter) writeEscapedByte(b byte) {
	if b > 0x7F {
		w.buf = append(w.buf, EscapeByte, ^b)
		return
	}
	w.buf = append(w.buf, b)
}

func (w *bodyWriter) writeEscapedUint16(v uint16) {
	w.writeEscapedByte(byte(v))
	w.buf = append(w.buf, byte(v>>8))
}
