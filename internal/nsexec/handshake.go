// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package nsexec

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// ReadyMarker is sent by the helper once it runs in the new namespace.
	ReadyMarker byte = 'R'

	// SuccessMarker is sent by the launcher once the namespace is set up.
	SuccessMarker byte = 'S'

	readyMessageLen = 5
)

// WriteReady writes the ready marker followed by the pid as 4 byte little
// endian integer.
func WriteReady(w io.Writer, pid int) error {
	msg := make([]byte, readyMessageLen)
	msg[0] = ReadyMarker
	binary.LittleEndian.PutUint32(msg[1:], uint32(pid)) //nolint:gosec

	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write ready: %w", err)
	}

	return nil
}

// ReadReady reads the ready message and returns the announced pid.
func ReadReady(r io.Reader) (int, error) {
	msg := make([]byte, readyMessageLen)

	if _, err := io.ReadFull(r, msg); err != nil {
		return 0, fmt.Errorf("read ready: %w", err)
	}

	if msg[0] != ReadyMarker {
		return 0, fmt.Errorf("%w: ready marker is %#x", ErrProtocolDesync, msg[0])
	}

	return int(binary.LittleEndian.Uint32(msg[1:])), nil
}

// WriteSuccess writes the single success marker byte.
func WriteSuccess(w io.Writer) error {
	if _, err := w.Write([]byte{SuccessMarker}); err != nil {
		return fmt.Errorf("write success: %w", err)
	}

	return nil
}

// ReadSuccess reads exactly one byte and fails if it is not the success
// marker.
func ReadSuccess(r io.Reader) error {
	msg := make([]byte, 1)

	if _, err := io.ReadFull(r, msg); err != nil {
		return fmt.Errorf("read success: %w", err)
	}

	if msg[0] != SuccessMarker {
		return fmt.Errorf("%w: success marker is %#x", ErrProtocolDesync, msg[0])
	}

	return nil
}
