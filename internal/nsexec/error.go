// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package nsexec

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolDesync is returned if a handshake peer sent an unexpected
	// marker. It is not recoverable.
	ErrProtocolDesync = errors.New("handshake protocol desync")

	// ErrPIDMismatch is returned if the pid announced by the helper is not
	// the pid of the started process.
	ErrPIDMismatch = errors.New("announced pid does not match started process")

	// ErrNoGuest is returned if no guest command is given.
	ErrNoGuest = errors.New("no guest command given")
)

// HandshakeError wraps any error occurring in a step of the launch handshake.
type HandshakeError struct {
	Step string
	Err  error
}

// Error implements the [error] interface.
func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake %s: %v", e.Step, e.Err)
}

// Is implements the [errors.Is] interface.
func (*HandshakeError) Is(other error) bool {
	_, ok := other.(*HandshakeError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *HandshakeError) Unwrap() error {
	return e.Err
}
