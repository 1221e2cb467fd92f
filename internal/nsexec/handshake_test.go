// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package nsexec_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/qguard/internal/nsexec"
)

func TestWriteReady(t *testing.T) {
	var buf bytes.Buffer

	err := nsexec.WriteReady(&buf, 0x01020304)
	require.NoError(t, err)

	assert.Equal(t, []byte{'R', 0x04, 0x03, 0x02, 0x01}, buf.Bytes())
}

func TestReadReady(t *testing.T) {
	tests := []struct {
		name        string
		input       []byte
		expectedPID int
		expectedErr error
	}{
		{
			name:        "valid",
			input:       []byte{'R', 0x39, 0x30, 0x00, 0x00},
			expectedPID: 12345,
		},
		{
			name:        "wrong marker",
			input:       []byte{'X', 0x39, 0x30, 0x00, 0x00},
			expectedErr: nsexec.ErrProtocolDesync,
		},
		{
			name:        "short",
			input:       []byte{'R', 0x39},
			expectedErr: io.ErrUnexpectedEOF,
		},
		{
			name:        "empty",
			input:       nil,
			expectedErr: io.EOF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pid, err := nsexec.ReadReady(bytes.NewReader(tt.input))
			require.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, tt.expectedPID, pid)
		})
	}
}

func TestReadyRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, nsexec.WriteReady(&buf, 4194304))

	pid, err := nsexec.ReadReady(&buf)
	require.NoError(t, err)
	assert.Equal(t, 4194304, pid)
}

func TestReadSuccess(t *testing.T) {
	tests := []struct {
		name        string
		input       []byte
		expectedErr error
	}{
		{
			name:  "success",
			input: []byte{nsexec.SuccessMarker},
		},
		{
			name:  "only first byte is read",
			input: []byte{nsexec.SuccessMarker, 'X'},
		},
		{
			name:        "anything else is fatal",
			input:       []byte{0},
			expectedErr: nsexec.ErrProtocolDesync,
		},
		{
			name:        "closed",
			expectedErr: io.EOF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := nsexec.ReadSuccess(bytes.NewReader(tt.input))
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestWriteSuccess(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, nsexec.WriteSuccess(&buf))
	assert.Equal(t, []byte{nsexec.SuccessMarker}, buf.Bytes())
}
