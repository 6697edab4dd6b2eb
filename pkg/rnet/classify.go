// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rnet

import "bytes"

// Classify promotes a decoded message to a semantic packet. It returns nil for
// traffic rnetstat does not recognise; other devices' chatter on the bus is
// expected and must be ignored, not treated as an error.
//
// Precedence, most specific first:
//  1. Handshake (0x02)
//  2. Rendered display message (0x06)
//  3. Data replies under [0x02, 0x00, zone, ...] by leaf code
//  4. Keypad events (Event, source path >= 2, ID 0x64-0x73)
//  5. Requests, commands and display messages rnetstat itself emits
func Classify(m Message) Packet {
	h := m.MessageHeader()

	switch msg := m.(type) {
	case *HandshakeMessage:
		ctrl := h.SourceControllerID
		if h.SourceKeypadID == ExternalKeypadID {
			ctrl = h.TargetControllerID
		}
		return &HandshakePacket{ControllerID: ctrl, Type: msg.HandshakeType}

	case *OpaqueMessage:
		if h.MessageType == MsgRenderedDisplayMessage {
			return &RenderedDisplayMessagePacket{ControllerID: h.SourceControllerID, Body: msg.Body}
		}
		return nil

	case *DataMessage:
		switch h.MessageType {
		case MsgData:
			if p := classifyZoneReply(msg); p != nil {
				return p
			}
			return classifyDataCommand(msg)
		case MsgRequestData:
			return classifyRequest(msg)
		case MsgDisplayMessage:
			return classifyDisplayMessage(msg)
		}
		return nil

	case *EventMessage:
		if len(msg.SourcePath) >= 2 && IsKeypadKey(msg.EventID) {
			return &KeypadEventPacket{
				ControllerID: h.TargetControllerID,
				ZoneID:       msg.SourcePath[1],
				Key:          KeypadKey(msg.EventID),
				Timestamp:    msg.EventTimestamp,
				Data:         msg.EventData,
			}
		}
		return classifyEventCommand(msg)
	}

	return nil
}

// isZonePath reports whether path has the [0x02, 0x00, zone, ...] prefix and
// the given length.
func isZonePath(path []byte, length int) bool {
	return len(path) == length && path[0] == PathRootMenu && path[1] == PathRunMode
}

func classifyZoneReply(m *DataMessage) Packet {
	ctrl := m.SourceControllerID
	path := m.SourcePath

	switch {
	case isZonePath(path, 4):
		zone := path[2]
		switch path[3] {
		case LeafInfo:
			return parseZoneInfo(ctrl, zone, m.Data)
		case LeafPower:
			return &ZonePowerPacket{ControllerID: ctrl, ZoneID: zone, Power: dataByte(m.Data, 0) != 0}
		case LeafSource:
			return &ZoneSourcePacket{ControllerID: ctrl, ZoneID: zone, SourceID: dataByte(m.Data, 0)}
		case LeafVolume:
			return &ZoneVolumePacket{ControllerID: ctrl, ZoneID: zone, Volume: int(dataByte(m.Data, 0)) * 2}
		}

	case isZonePath(path, 5) && path[3] == LeafParameter:
		id := ParameterID(path[4])
		return &ZoneParameterPacket{
			ControllerID: ctrl,
			ZoneID:       path[2],
			Parameter:    id,
			Value:        decodeParameterLenient(id, dataByte(m.Data, 0)),
		}

	case len(path) == 3 && path[0] == PathRootMenu && path[1] == PathSource:
		return &SourceDescriptiveTextPacket{ControllerID: ctrl, SourceID: path[2], Text: cString(m.Data)}
	}

	return nil
}

// parseZoneInfo reads the zone info payload. Missing bytes default to zero
// (or false) rather than failing.
func parseZoneInfo(controllerID, zoneID byte, data []byte) *ZoneInfoPacket {
	p := &ZoneInfoPacket{
		ControllerID: controllerID,
		ZoneID:       zoneID,
		Power:        dataByte(data, 0) != 0,
		SourceID:     dataByte(data, 1),
		Volume:       int(dataByte(data, 2)) * 2,
		Loudness:     dataByte(data, 5) != 0,
		PartyMode:    dataByte(data, 8),
		DoNotDisturb: dataByte(data, 9),
	}
	p.Bass = signedDataByte(data, 3)
	p.Treble = signedDataByte(data, 4)
	p.Balance = signedDataByte(data, 6)
	return p
}

func classifyDataCommand(m *DataMessage) Packet {
	path := m.TargetPath
	if isZonePath(path, 5) && path[3] == LeafParameter {
		id := ParameterID(path[4])
		return &SetParameterPacket{
			ControllerID: m.TargetControllerID,
			ZoneID:       path[2],
			Parameter:    id,
			Value:        decodeParameterLenient(id, dataByte(m.Data, 0)),
		}
	}
	return nil
}

// classifyRequest distinguishes data and parameter requests by target path
// length: the parameter ID is the fifth path byte.
func classifyRequest(m *DataMessage) Packet {
	path := m.TargetPath
	switch {
	case isZonePath(path, 4):
		return &RequestDataPacket{ControllerID: m.TargetControllerID, ZoneID: path[2], Leaf: path[3]}
	case isZonePath(path, 5) && path[3] == LeafParameter:
		return &RequestParameterPacket{ControllerID: m.TargetControllerID, ZoneID: path[2], Parameter: ParameterID(path[4])}
	}
	return nil
}

func classifyDisplayMessage(m *DataMessage) Packet {
	p := &DisplayMessagePacket{ControllerID: m.TargetControllerID}
	if len(m.TargetPath) >= 3 {
		p.ZoneID = m.TargetPath[2]
	}
	p.Alignment = dataByte(m.Data, 0)
	p.FlashTime = uint16(dataByte(m.Data, 1)) | uint16(dataByte(m.Data, 2))<<8
	if len(m.Data) > 3 {
		p.Text = cString(m.Data[3:])
	}
	return p
}

func classifyEventCommand(m *EventMessage) Packet {
	ctrl := m.TargetControllerID
	zone := byte(m.EventData)

	switch m.EventID {
	case EventPowerOn, EventPowerOff:
		power := m.EventID == EventPowerOn
		if ctrl == AllControllers {
			return &SetAllPowerPacket{Power: power}
		}
		return &SetPowerPacket{ControllerID: ctrl, ZoneID: zone, Power: power}
	case EventVolume:
		return &SetVolumePacket{ControllerID: ctrl, ZoneID: zone, Volume: int(m.EventTimestamp) * 2}
	case EventSourceSelect:
		return &SetSourcePacket{ControllerID: ctrl, ZoneID: zone, SourceID: byte(m.EventTimestamp)}
	}
	return nil
}

func dataByte(data []byte, i int) byte {
	if i < len(data) {
		return data[i]
	}
	return 0
}

// signedDataByte reads a +10 offset value, defaulting to 0 when absent.
func signedDataByte(data []byte, i int) int {
	if i < len(data) {
		return int(data[i]) - signedOffset
	}
	return 0
}

// cString returns data up to the first NUL.
func cString(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return string(data[:i])
	}
	return string(data)
}
