// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rnet provides a Go implementation of the RNet serial control bus
// used by multi-zone whole-house audio controllers.
//
// The package covers frame encoding and streaming decoding, the Data and
// Event message bodies, classification of messages into semantic packets,
// and the per-parameter value codec. It does not perform I/O; see
// internal/session for the transaction sequencer that drives a serial link.
package rnet

// Protocol framing bytes
const (
	StartByte  = 0xF0
	EndByte    = 0xF7
	EscapeByte = 0xF1
)

// Frame size limits
const (
	HeaderSize   = 7  // target ctrl/zone/keypad, source ctrl/zone/keypad, type
	MinFrameSize = 10 // start + header + checksum + end
	MaxFrameSize = 512
)

// Message types
const (
	MsgData                   = 0x00
	MsgRequestData            = 0x01
	MsgHandshake              = 0x02
	MsgDisplayMessage         = 0x04
	MsgEvent                  = 0x05
	MsgRenderedDisplayMessage = 0x06
)

// Well-known device addresses
const (
	// ExternalKeypadID is the keypad address rnetstat uses as its own source.
	ExternalKeypadID = 0x70
	// ControllerKeypadID addresses the controller itself rather than a keypad.
	ControllerKeypadID = 0x7F
	// AllControllers is the broadcast controller ID.
	AllControllers = 0x7E
)

// Path bytes
const (
	PathRootMenu = 0x02
	PathRunMode  = 0x00
	PathSource   = 0x01
)

// Data leaf codes under [0x02, 0x00, zone, leaf]
const (
	LeafParameter = 0x00
	LeafVolume    = 0x01
	LeafSource    = 0x02
	LeafPower     = 0x06
	LeafInfo      = 0x07
)

// Event IDs
const (
	EventPowerOff     = 0xDC
	EventPowerOn      = 0xDD
	EventVolume       = 0xDE
	EventSourceSelect = 0xDF
)

// DefaultEventPriority is the priority carried by every event rnetstat sends.
const DefaultEventPriority = 0x01

// HandshakeType values
const (
	HandshakeTypeRequest     = 0x01
	HandshakeTypeAcknowledge = 0x02
)

// Zone limits
const (
	MaxZones     = 6
	MaxSources   = 6
	MaxVolume    = 100
	ZoneInfoSize = 10
)

// KeypadKey identifies a keypad button event.
type KeypadKey uint16

// Keypad key codes (0x64-0x73)
const (
	KeySetup     KeypadKey = 0x64
	KeyPrevious  KeypadKey = 0x67
	KeyNext      KeypadKey = 0x68
	KeyPlus      KeypadKey = 0x69
	KeyMinus     KeypadKey = 0x6A
	KeySource    KeypadKey = 0x6B
	KeyPower     KeypadKey = 0x6C
	KeyStop      KeypadKey = 0x6D
	KeyPause     KeypadKey = 0x6E
	KeyFavorite1 KeypadKey = 0x6F
	KeyFavorite2 KeypadKey = 0x70
	KeyPlay      KeypadKey = 0x73

	keypadKeyMin = 0x64
	keypadKeyMax = 0x73
)

// IsKeypadKey reports whether an event ID falls in the keypad key range.
func IsKeypadKey(eventID uint16) bool {
	return eventID >= keypadKeyMin && eventID <= keypadKeyMax
}

// Decoder states (internal)
const (
	stateIdle = iota
	stateFrame
)
