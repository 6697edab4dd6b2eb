// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// ErrSessionClosed is returned by Send after Close or Reset on disconnect.
var ErrSessionClosed = errors.New("session closed")

// SerialIOError wraps a transport write failure. The sequencer does not retry.
type SerialIOError struct {
	Op  string
	Err error
}

func (e *SerialIOError) Error() string {
	return fmt.Sprintf("serial %s: %v", e.Op, e.Err)
}

func (e *SerialIOError) Unwrap() error {
	return e.Err
}

// HandshakeTimeoutError records a handshake that never arrived. It is logged
// and recovered from, never returned to callers of Send.
type HandshakeTimeoutError struct {
	ControllerID byte
	Timeout      time.Duration
}

func (e *HandshakeTimeoutError) Error() string {
	return fmt.Sprintf("no handshake from controller %d within %s", e.ControllerID, e.Timeout)
}
