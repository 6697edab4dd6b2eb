// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rnet

import (
	"fmt"
	"strings"
	"time"
)

// FormatPacket formats a classified packet into a human-readable string
func FormatPacket(ts time.Time, p Packet) string {
	h := p.Message().MessageHeader()
	result := fmt.Sprintf("[%s] %s (0x%02X) %02X.%02X.%02X -> %02X.%02X.%02X\n",
		ts.Format("15:04:05.000"), FormatPacketName(p), h.MessageType,
		h.SourceControllerID, h.SourceZoneID, h.SourceKeypadID,
		h.TargetControllerID, h.TargetZoneID, h.TargetKeypadID)
	return result + FormatPacketFields(p)
}

// FormatFrame formats a frame that did not classify to a known packet
func FormatFrame(f *Frame) string {
	result := fmt.Sprintf("[%s] %s (0x%02X) %02X.%02X.%02X -> %02X.%02X.%02X len=%d\n",
		f.Timestamp().Format("15:04:05.000"), FormatMessageType(f.MessageType), f.MessageType,
		f.SourceControllerID, f.SourceZoneID, f.SourceKeypadID,
		f.TargetControllerID, f.TargetZoneID, f.TargetKeypadID, len(f.Body))
	if !f.ChecksumValid() {
		result += fmt.Sprintf("  Checksum: 0x%02X (mismatch)\n", f.Checksum)
	}
	return result + FormatHex(f.Body)
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType byte) string {
	switch msgType {
	case MsgData:
		return "DATA"
	case MsgRequestData:
		return "REQUEST_DATA"
	case MsgHandshake:
		return "HANDSHAKE"
	case MsgDisplayMessage:
		return "DISPLAY_MESSAGE"
	case MsgEvent:
		return "EVENT"
	case MsgRenderedDisplayMessage:
		return "RENDERED_DISPLAY_MESSAGE"
	default:
		return "UNKNOWN"
	}
}

// FormatPacketName returns the human-readable name for a packet variant
func FormatPacketName(p Packet) string {
	switch p.(type) {
	case *ZoneInfoPacket:
		return "ZONE_INFO"
	case *ZonePowerPacket:
		return "ZONE_POWER"
	case *ZoneVolumePacket:
		return "ZONE_VOLUME"
	case *ZoneSourcePacket:
		return "ZONE_SOURCE"
	case *ZoneParameterPacket:
		return "ZONE_PARAMETER"
	case *SourceDescriptiveTextPacket:
		return "SOURCE_TEXT"
	case *KeypadEventPacket:
		return "KEYPAD_EVENT"
	case *DisplayMessagePacket:
		return "DISPLAY_MESSAGE"
	case *RenderedDisplayMessagePacket:
		return "RENDERED_DISPLAY"
	case *RequestDataPacket:
		return "REQUEST_DATA"
	case *RequestParameterPacket:
		return "REQUEST_PARAMETER"
	case *SetPowerPacket:
		return "SET_POWER"
	case *SetAllPowerPacket:
		return "SET_ALL_POWER"
	case *SetVolumePacket:
		return "SET_VOLUME"
	case *SetSourcePacket:
		return "SET_SOURCE"
	case *SetParameterPacket:
		return "SET_PARAMETER"
	case *HandshakePacket:
		return "HANDSHAKE"
	default:
		return "UNKNOWN"
	}
}

// FormatPacketFields formats the semantic fields of a packet
func FormatPacketFields(p Packet) string {
	switch v := p.(type) {
	case *ZoneInfoPacket:
		return fmt.Sprintf("  Zone %d.%d: Power=%s, Source=%d, Volume=%d, Bass=%+d, Treble=%+d, Loudness=%s, Balance=%+d, Party=%d, DND=%d\n",
			v.ControllerID, v.ZoneID, formatOnOff(v.Power), v.SourceID, v.Volume, v.Bass, v.Treble,
			formatOnOff(v.Loudness), v.Balance, v.PartyMode, v.DoNotDisturb)

	case *ZonePowerPacket:
		return fmt.Sprintf("  Zone %d.%d: Power=%s\n", v.ControllerID, v.ZoneID, formatOnOff(v.Power))

	case *ZoneVolumePacket:
		return fmt.Sprintf("  Zone %d.%d: Volume=%d\n", v.ControllerID, v.ZoneID, v.Volume)

	case *ZoneSourcePacket:
		return fmt.Sprintf("  Zone %d.%d: Source=%d\n", v.ControllerID, v.ZoneID, v.SourceID)

	case *ZoneParameterPacket:
		return fmt.Sprintf("  Zone %d.%d: %s=%s\n", v.ControllerID, v.ZoneID, v.Parameter, v.Value)

	case *SourceDescriptiveTextPacket:
		return fmt.Sprintf("  Source %d: %q\n", v.SourceID, v.Text)

	case *KeypadEventPacket:
		return fmt.Sprintf("  Zone %d.%d: Key=%s (0x%02X)\n", v.ControllerID, v.ZoneID, FormatKeypadKey(v.Key), uint16(v.Key))

	case *DisplayMessagePacket:
		return fmt.Sprintf("  Zone %d.%d: %q, Flash=%d ms\n", v.ControllerID, v.ZoneID, v.Text, v.FlashTime)

	case *RenderedDisplayMessagePacket:
		return FormatHex(v.Body)

	case *RequestDataPacket:
		return fmt.Sprintf("  Zone %d.%d: Leaf=%s (0x%02X)\n", v.ControllerID, v.ZoneID, formatLeaf(v.Leaf), v.Leaf)

	case *RequestParameterPacket:
		return fmt.Sprintf("  Zone %d.%d: Parameter=%s\n", v.ControllerID, v.ZoneID, v.Parameter)

	case *SetPowerPacket:
		return fmt.Sprintf("  Zone %d.%d: Power=%s\n", v.ControllerID, v.ZoneID, formatOnOff(v.Power))

	case *SetAllPowerPacket:
		return fmt.Sprintf("  All zones: Power=%s\n", formatOnOff(v.Power))

	case *SetVolumePacket:
		return fmt.Sprintf("  Zone %d.%d: Volume=%d\n", v.ControllerID, v.ZoneID, v.Volume)

	case *SetSourcePacket:
		return fmt.Sprintf("  Zone %d.%d: Source=%d\n", v.ControllerID, v.ZoneID, v.SourceID)

	case *SetParameterPacket:
		return fmt.Sprintf("  Zone %d.%d: %s=%s\n", v.ControllerID, v.ZoneID, v.Parameter, v.Value)

	case *HandshakePacket:
		return fmt.Sprintf("  Controller %d: Type=%d\n", v.ControllerID, v.Type)
	}
	return ""
}

// FormatKeypadKey returns the human-readable name for a keypad key
func FormatKeypadKey(k KeypadKey) string {
	switch k {
	case KeySetup:
		return "SETUP"
	case KeyPrevious:
		return "PREVIOUS"
	case KeyNext:
		return "NEXT"
	case KeyPlus:
		return "PLUS"
	case KeyMinus:
		return "MINUS"
	case KeySource:
		return "SOURCE"
	case KeyPower:
		return "POWER"
	case KeyStop:
		return "STOP"
	case KeyPause:
		return "PAUSE"
	case KeyFavorite1:
		return "FAVORITE_1"
	case KeyFavorite2:
		return "FAVORITE_2"
	case KeyPlay:
		return "PLAY"
	default:
		return "UNKNOWN"
	}
}

func formatLeaf(leaf byte) string {
	switch leaf {
	case LeafVolume:
		return "VOLUME"
	case LeafSource:
		return "SOURCE"
	case LeafPower:
		return "POWER"
	case LeafInfo:
		return "INFO"
	default:
		return "UNKNOWN"
	}
}

func formatOnOff(v bool) string {
	if v {
		return "On"
	}
	return "Off"
}

// FormatHex returns an indented hex dump, 16 bytes per line
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return "  (no payload)\n"
	}
	var sb strings.Builder
	sb.WriteString("  Payload: ")
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			sb.WriteString("\n           ")
		}
		fmt.Fprintf(&sb, "%02X ", b)
	}
	sb.WriteString("\n")
	return sb.String()
}
