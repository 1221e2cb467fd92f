// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qmp

import (
	"errors"
)

var (
	// ErrProtocolDesync is returned if the stream of replies does not match
	// the commands sent. The session is unusable afterwards.
	ErrProtocolDesync = errors.New("qmp protocol desync")

	// ErrSessionClosed is returned if a command is executed on a session that
	// is shut down or failed.
	ErrSessionClosed = errors.New("qmp session closed")
)

// CommandError is an error reply sent by the server.
type CommandError struct {
	Class       string `json:"class"`
	Description string `json:"desc"`
}

// Error implements the [error] interface.
func (e *CommandError) Error() string {
	return "qmp " + e.Class + ": " + e.Description
}

// Is implements the [errors.Is] interface.
func (*CommandError) Is(other error) bool {
	_, ok := other.(*CommandError)
	return ok
}
