// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rnet

import "fmt"

// FramingError reports a byte-stream framing problem. The decoder has already
// resynchronized when this is returned; it is never fatal.
type FramingError struct {
	Reason string
	Byte   byte
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error: %s (byte 0x%02X)", e.Reason, e.Byte)
}

// TruncatedMessageError reports a message body that ended before all fields
// were read. Decoding still yields a message with defaulted trailing fields.
type TruncatedMessageError struct {
	MessageType byte
	Field       string
	Offset      int
}

func (e *TruncatedMessageError) Error() string {
	return fmt.Sprintf("truncated message type 0x%02X: %s missing at offset %d", e.MessageType, e.Field, e.Offset)
}

// InvalidParameterError is returned for parameter IDs outside 0-8 or values
// outside the parameter's range.
type InvalidParameterError struct {
	ID     ParameterID
	Reason string
}

func (e *InvalidParameterError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid parameter ID %d", uint8(e.ID))
	}
	return fmt.Sprintf("invalid parameter %s (%d): %s", e.ID, uint8(e.ID), e.Reason)
}
