// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rnet

import "fmt"

// Packet is a semantic RNet packet built on a Data, Event, Handshake or
// opaque message. The set of implementations is closed; inbound packets are
// produced by Classify and outbound packets by the New* builders.
type Packet interface {
	// Message builds the message that carries this packet on the wire.
	Message() Message
	// RequiresHandshake reports whether the sender expects an acknowledge
	// handshake after this packet is received.
	RequiresHandshake() bool
	// CausesResponseWithHandshake reports whether sending this packet makes
	// the controller answer with traffic that completes a handshake.
	CausesResponseWithHandshake() bool
	packet()
}

// commandHeader addresses a controller from rnetstat's external keypad.
func commandHeader(controllerID, msgType byte) Header {
	return Header{
		TargetControllerID: controllerID,
		TargetKeypadID:     ControllerKeypadID,
		SourceKeypadID:     ExternalKeypadID,
		MessageType:        msgType,
	}
}

// replyHeader addresses rnetstat's external keypad from a controller.
func replyHeader(controllerID, msgType byte) Header {
	return Header{
		TargetKeypadID:     ExternalKeypadID,
		SourceControllerID: controllerID,
		SourceKeypadID:     ControllerKeypadID,
		MessageType:        msgType,
	}
}

func zonePath(zoneID, leaf byte) []byte {
	return []byte{PathRootMenu, PathRunMode, zoneID, leaf}
}

func parameterPath(zoneID byte, id ParameterID) []byte {
	return []byte{PathRootMenu, PathRunMode, zoneID, LeafParameter, byte(id)}
}

func zoneReply(controllerID, zoneID, leaf byte, data []byte) *DataMessage {
	return &DataMessage{
		Header:      replyHeader(controllerID, MsgData),
		TargetPath:  []byte{},
		SourcePath:  zonePath(zoneID, leaf),
		PacketCount: 1,
		Data:        data,
	}
}

func zoneEvent(controllerID, zoneID byte, eventID, timestamp uint16) *EventMessage {
	return &EventMessage{
		Header:         commandHeader(controllerID, MsgEvent),
		TargetPath:     []byte{PathRootMenu, PathRunMode},
		SourcePath:     []byte{},
		EventID:        eventID,
		EventTimestamp: timestamp,
		EventData:      uint16(zoneID),
		EventPriority:  DefaultEventPriority,
	}
}

// ============================================================
// Zone state replies (controller -> keypad)
// ============================================================

// ZoneInfoPacket carries the full state of one zone.
type ZoneInfoPacket struct {
	ControllerID byte
	ZoneID       byte
	Power        bool
	SourceID     byte
	Volume       int // 0-100, always even on the wire
	Bass         int // -10..+10
	Treble       int // -10..+10
	Loudness     bool
	Balance      int // -10..+10
	PartyMode    byte
	DoNotDisturb byte
}

func (p *ZoneInfoPacket) Message() Message {
	data := make([]byte, ZoneInfoSize)
	data[0] = boolByte(p.Power)
	data[1] = p.SourceID
	data[2] = byte(p.Volume / 2)
	data[3] = byte(p.Bass + signedOffset)
	data[4] = byte(p.Treble + signedOffset)
	data[5] = boolByte(p.Loudness)
	data[6] = byte(p.Balance + signedOffset)
	data[8] = p.PartyMode
	data[9] = p.DoNotDisturb
	return zoneReply(p.ControllerID, p.ZoneID, LeafInfo, data)
}

// ZonePowerPacket reports a zone's power state.
type ZonePowerPacket struct {
	ControllerID byte
	ZoneID       byte
	Power        bool
}

func (p *ZonePowerPacket) Message() Message {
	return zoneReply(p.ControllerID, p.ZoneID, LeafPower, []byte{boolByte(p.Power)})
}

// ZoneVolumePacket reports a zone's volume (0-100).
type ZoneVolumePacket struct {
	ControllerID byte
	ZoneID       byte
	Volume       int
}

func (p *ZoneVolumePacket) Message() Message {
	return zoneReply(p.ControllerID, p.ZoneID, LeafVolume, []byte{byte(p.Volume / 2)})
}

// ZoneSourcePacket reports a zone's selected source.
type ZoneSourcePacket struct {
	ControllerID byte
	ZoneID       byte
	SourceID     byte
}

func (p *ZoneSourcePacket) Message() Message {
	return zoneReply(p.ControllerID, p.ZoneID, LeafSource, []byte{p.SourceID})
}

// ZoneParameterPacket reports one zone parameter.
type ZoneParameterPacket struct {
	ControllerID byte
	ZoneID       byte
	Parameter    ParameterID
	Value        ParameterValue
}

func (p *ZoneParameterPacket) Message() Message {
	return &DataMessage{
		Header:      replyHeader(p.ControllerID, MsgData),
		TargetPath:  []byte{},
		SourcePath:  parameterPath(p.ZoneID, p.Parameter),
		PacketCount: 1,
		Data:        []byte{encodeParameterLenient(p.Parameter, p.Value)},
	}
}

// SourceDescriptiveTextPacket carries the display text a source publishes.
type SourceDescriptiveTextPacket struct {
	ControllerID byte
	SourceID     byte
	Text         string
}

func (p *SourceDescriptiveTextPacket) Message() Message {
	data := append([]byte(p.Text), 0x00)
	return &DataMessage{
		Header:      replyHeader(p.ControllerID, MsgData),
		TargetPath:  []byte{},
		SourcePath:  []byte{PathRootMenu, PathSource, p.SourceID},
		PacketCount: 1,
		Data:        data,
	}
}

// ============================================================
// Keypad and display traffic
// ============================================================

// KeypadEventPacket is a key press on a zone keypad.
type KeypadEventPacket struct {
	ControllerID byte
	ZoneID       byte
	Key          KeypadKey
	Timestamp    uint16
	Data         uint16
}

func (p *KeypadEventPacket) Message() Message {
	return &EventMessage{
		Header: Header{
			TargetControllerID: p.ControllerID,
			TargetKeypadID:     ControllerKeypadID,
			SourceControllerID: p.ControllerID,
			SourceZoneID:       p.ZoneID,
			MessageType:        MsgEvent,
		},
		TargetPath:     []byte{PathRootMenu, PathRunMode},
		SourcePath:     []byte{p.ControllerID, p.ZoneID},
		EventID:        uint16(p.Key),
		EventTimestamp: p.Timestamp,
		EventData:      p.Data,
		EventPriority:  DefaultEventPriority,
	}
}

// DisplayMessagePacket shows text on a zone's keypad display.
type DisplayMessagePacket struct {
	ControllerID byte
	ZoneID       byte
	Alignment    byte
	FlashTime    uint16 // milliseconds, 0 for a persistent message
	Text         string
}

func (p *DisplayMessagePacket) Message() Message {
	data := []byte{p.Alignment, byte(p.FlashTime), byte(p.FlashTime >> 8)}
	data = append(data, p.Text...)
	data = append(data, 0x00)
	return &DataMessage{
		Header:      commandHeader(p.ControllerID, MsgDisplayMessage),
		TargetPath:  []byte{PathRootMenu, PathRunMode, p.ZoneID},
		SourcePath:  []byte{},
		PacketCount: 1,
		Data:        data,
	}
}

// RenderedDisplayMessagePacket is a controller-rendered display update. Its
// body is passed through uninterpreted.
type RenderedDisplayMessagePacket struct {
	ControllerID byte
	Body         []byte
}

func (p *RenderedDisplayMessagePacket) Message() Message {
	return &OpaqueMessage{
		Header: replyHeader(p.ControllerID, MsgRenderedDisplayMessage),
		Body:   p.Body,
	}
}

// ============================================================
// Requests and commands (keypad -> controller)
// ============================================================

// RequestDataPacket asks a controller for one zone leaf (info, power, ...).
type RequestDataPacket struct {
	ControllerID byte
	ZoneID       byte
	Leaf         byte
}

func (p *RequestDataPacket) Message() Message {
	return &DataMessage{
		Header:      commandHeader(p.ControllerID, MsgRequestData),
		TargetPath:  zonePath(p.ZoneID, p.Leaf),
		SourcePath:  []byte{},
		PacketCount: 1,
	}
}

// RequestParameterPacket asks a controller for one zone parameter.
type RequestParameterPacket struct {
	ControllerID byte
	ZoneID       byte
	Parameter    ParameterID
}

func (p *RequestParameterPacket) Message() Message {
	return &DataMessage{
		Header:      commandHeader(p.ControllerID, MsgRequestData),
		TargetPath:  parameterPath(p.ZoneID, p.Parameter),
		SourcePath:  []byte{},
		PacketCount: 1,
	}
}

// SetPowerPacket turns one zone on or off.
type SetPowerPacket struct {
	ControllerID byte
	ZoneID       byte
	Power        bool
}

func (p *SetPowerPacket) Message() Message {
	return zoneEvent(p.ControllerID, p.ZoneID, powerEventID(p.Power), uint16(boolByte(p.Power)))
}

// SetAllPowerPacket turns every zone on every controller on or off.
type SetAllPowerPacket struct {
	Power bool
}

func (p *SetAllPowerPacket) Message() Message {
	return zoneEvent(AllControllers, 0, powerEventID(p.Power), uint16(boolByte(p.Power)))
}

// SetVolumePacket sets a zone's volume (0-100).
type SetVolumePacket struct {
	ControllerID byte
	ZoneID       byte
	Volume       int
}

func (p *SetVolumePacket) Message() Message {
	return zoneEvent(p.ControllerID, p.ZoneID, EventVolume, uint16(p.Volume/2))
}

// SetSourcePacket selects a zone's source.
type SetSourcePacket struct {
	ControllerID byte
	ZoneID       byte
	SourceID     byte
}

func (p *SetSourcePacket) Message() Message {
	return zoneEvent(p.ControllerID, p.ZoneID, EventSourceSelect, uint16(p.SourceID))
}

// SetParameterPacket writes one zone parameter.
type SetParameterPacket struct {
	ControllerID byte
	ZoneID       byte
	Parameter    ParameterID
	Value        ParameterValue
}

func (p *SetParameterPacket) Message() Message {
	return &DataMessage{
		Header:      commandHeader(p.ControllerID, MsgData),
		TargetPath:  parameterPath(p.ZoneID, p.Parameter),
		SourcePath:  []byte{},
		PacketCount: 1,
		Data:        []byte{encodeParameterLenient(p.Parameter, p.Value)},
	}
}

// HandshakePacket acknowledges traffic between rnetstat and a controller.
// ControllerID is the controller at the other end: the addressee of a
// handshake rnetstat sends, the sender of one it receives.
type HandshakePacket struct {
	ControllerID byte
	Type         byte
}

func (p *HandshakePacket) Message() Message {
	return &HandshakeMessage{
		Header:        commandHeader(p.ControllerID, MsgHandshake),
		HandshakeType: p.Type,
	}
}

func powerEventID(power bool) uint16 {
	if power {
		return EventPowerOn
	}
	return EventPowerOff
}

// ============================================================
// Handshake predicates
// ============================================================

func (*ZoneInfoPacket) RequiresHandshake() bool               { return true }
func (*ZonePowerPacket) RequiresHandshake() bool              { return true }
func (*ZoneVolumePacket) RequiresHandshake() bool             { return true }
func (*ZoneSourcePacket) RequiresHandshake() bool             { return true }
func (*ZoneParameterPacket) RequiresHandshake() bool          { return true }
func (*SourceDescriptiveTextPacket) RequiresHandshake() bool  { return true }
func (*KeypadEventPacket) RequiresHandshake() bool            { return false }
func (*DisplayMessagePacket) RequiresHandshake() bool         { return false }
func (*RenderedDisplayMessagePacket) RequiresHandshake() bool { return false }
func (*RequestDataPacket) RequiresHandshake() bool            { return false }
func (*RequestParameterPacket) RequiresHandshake() bool       { return false }
func (*SetPowerPacket) RequiresHandshake() bool               { return false }
func (*SetAllPowerPacket) RequiresHandshake() bool            { return false }
func (*SetVolumePacket) RequiresHandshake() bool              { return false }
func (*SetSourcePacket) RequiresHandshake() bool              { return false }
func (*SetParameterPacket) RequiresHandshake() bool           { return false }
func (*HandshakePacket) RequiresHandshake() bool              { return false }

func (*ZoneInfoPacket) CausesResponseWithHandshake() bool               { return false }
func (*ZonePowerPacket) CausesResponseWithHandshake() bool              { return false }
func (*ZoneVolumePacket) CausesResponseWithHandshake() bool             { return false }
func (*ZoneSourcePacket) CausesResponseWithHandshake() bool             { return false }
func (*ZoneParameterPacket) CausesResponseWithHandshake() bool          { return false }
func (*SourceDescriptiveTextPacket) CausesResponseWithHandshake() bool  { return false }
func (*KeypadEventPacket) CausesResponseWithHandshake() bool            { return false }
func (*DisplayMessagePacket) CausesResponseWithHandshake() bool         { return true }
func (*RenderedDisplayMessagePacket) CausesResponseWithHandshake() bool { return false }
func (*RequestDataPacket) CausesResponseWithHandshake() bool            { return true }
func (*RequestParameterPacket) CausesResponseWithHandshake() bool       { return true }
func (*SetPowerPacket) CausesResponseWithHandshake() bool               { return false }
func (*SetAllPowerPacket) CausesResponseWithHandshake() bool            { return false }
func (*SetVolumePacket) CausesResponseWithHandshake() bool              { return false }
func (*SetSourcePacket) CausesResponseWithHandshake() bool              { return false }
func (*SetParameterPacket) CausesResponseWithHandshake() bool           { return true }
func (*HandshakePacket) CausesResponseWithHandshake() bool              { return false }

func (*ZoneInfoPacket) packet()               {}
func (*ZonePowerPacket) packet()              {}
func (*ZoneVolumePacket) packet()             {}
func (*ZoneSourcePacket) packet()             {}
func (*ZoneParameterPacket) packet()          {}
func (*SourceDescriptiveTextPacket) packet()  {}
func (*KeypadEventPacket) packet()            {}
func (*DisplayMessagePacket) packet()         {}
func (*RenderedDisplayMessagePacket) packet() {}
func (*RequestDataPacket) packet()            {}
func (*RequestParameterPacket) packet()       {}
func (*SetPowerPacket) packet()               {}
func (*SetAllPowerPacket) packet()            {}
func (*SetVolumePacket) packet()              {}
func (*SetSourcePacket) packet()              {}
func (*SetParameterPacket) packet()           {}
func (*HandshakePacket) packet()              {}

// EncodePacket encodes a packet into a complete wire frame.
func EncodePacket(p Packet) []byte {
	return EncodeMessageFrame(p.Message())
}

// ============================================================
// Builders
// ============================================================

// NewRequestZoneInfo requests the full state of one zone.
func NewRequestZoneInfo(controllerID, zoneID byte) *RequestDataPacket {
	return &RequestDataPacket{ControllerID: controllerID, ZoneID: zoneID, Leaf: LeafInfo}
}

// NewRequestParameter requests one zone parameter.
func NewRequestParameter(controllerID, zoneID byte, id ParameterID) (*RequestParameterPacket, error) {
	if _, err := id.Kind(); err != nil {
		return nil, err
	}
	return &RequestParameterPacket{ControllerID: controllerID, ZoneID: zoneID, Parameter: id}, nil
}

// NewSetPower turns a zone on or off.
func NewSetPower(controllerID, zoneID byte, power bool) *SetPowerPacket {
	return &SetPowerPacket{ControllerID: controllerID, ZoneID: zoneID, Power: power}
}

// NewSetAllPower turns every zone on or off.
func NewSetAllPower(power bool) *SetAllPowerPacket {
	return &SetAllPowerPacket{Power: power}
}

// NewSetVolume sets a zone's volume. Odd volumes are rounded down on the wire.
func NewSetVolume(controllerID, zoneID byte, volume int) (*SetVolumePacket, error) {
	if volume < 0 || volume > MaxVolume {
		return nil, fmt.Errorf("volume %d outside 0..%d", volume, MaxVolume)
	}
	return &SetVolumePacket{ControllerID: controllerID, ZoneID: zoneID, Volume: volume}, nil
}

// NewSetSource selects a zone's source.
func NewSetSource(controllerID, zoneID, sourceID byte) (*SetSourcePacket, error) {
	if sourceID >= MaxSources {
		return nil, fmt.Errorf("source %d outside 0..%d", sourceID, MaxSources-1)
	}
	return &SetSourcePacket{ControllerID: controllerID, ZoneID: zoneID, SourceID: sourceID}, nil
}

// NewSetParameter writes one zone parameter after validating the value.
func NewSetParameter(controllerID, zoneID byte, id ParameterID, value ParameterValue) (*SetParameterPacket, error) {
	if err := ValidateParameter(id, value); err != nil {
		return nil, err
	}
	return &SetParameterPacket{ControllerID: controllerID, ZoneID: zoneID, Parameter: id, Value: value}, nil
}

// NewHandshake acknowledges traffic from a controller.
func NewHandshake(controllerID byte) *HandshakePacket {
	return &HandshakePacket{ControllerID: controllerID, Type: HandshakeTypeAcknowledge}
}

// NewDisplayMessage shows text on a zone keypad.
func NewDisplayMessage(controllerID, zoneID byte, text string, flashTime uint16) *DisplayMessagePacket {
	return &DisplayMessagePacket{ControllerID: controllerID, ZoneID: zoneID, FlashTime: flashTime, Text: text}
}
