// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/qguard/internal/qemu"
)

func TestBuildArgumentStrings(t *testing.T) {
	tests := []struct {
		name      string
		args      []qemu.Argument
		expected  []string
		assertErr require.ErrorAssertionFunc
	}{
		{
			name: "builds",
			args: []qemu.Argument{
				qemu.UniqueArg("kernel", "vmlinuz"),
				qemu.UniqueArg("qmp", "unix:/run/q.sock", "server=on"),
				qemu.UniqueArg("S"),
			},
			expected: []string{
				"-kernel", "vmlinuz",
				"-qmp", "unix:/run/q.sock,server=on",
				"-S",
			},
			assertErr: require.NoError,
		},
		{
			name: "repeatable",
			args: []qemu.Argument{
				qemu.RepeatableArg("device", "virtio-rng-pci"),
				qemu.RepeatableArg("device", "virtio-balloon"),
			},
			expected: []string{
				"-device", "virtio-rng-pci",
				"-device", "virtio-balloon",
			},
			assertErr: require.NoError,
		},
		{
			name: "unique collision",
			args: []qemu.Argument{
				qemu.UniqueArg("kernel", "vmlinuz"),
				qemu.UniqueArg("kernel", "bsd"),
			},
			assertErr: func(t require.TestingT, err error, _ ...any) {
				require.ErrorIs(t, err, qemu.ErrArgumentCollision)
			},
		},
		{
			name: "repeatable colliding with unique",
			args: []qemu.Argument{
				qemu.UniqueArg("monitor", "none"),
				qemu.RepeatableArg("monitor", "stdio"),
			},
			assertErr: func(t require.TestingT, err error, _ ...any) {
				require.ErrorIs(t, err, qemu.ErrArgumentCollision)
			},
		},
		{
			name: "repeatable same value",
			args: []qemu.Argument{
				qemu.RepeatableArg("device", "virtio-rng-pci"),
				qemu.RepeatableArg("device", "virtio-rng-pci"),
			},
			assertErr: func(t require.TestingT, err error, _ ...any) {
				require.ErrorIs(t, err, qemu.ErrArgumentCollision)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := qemu.BuildArgumentStrings(tt.args)
			tt.assertErr(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name      string
		fields    []string
		expected  []qemu.Argument
		assertErr require.ErrorAssertionFunc
	}{
		{
			name:      "empty",
			assertErr: require.NoError,
		},
		{
			name:   "mixed",
			fields: []string{"-device", "virtio-rng-pci", "--no-reboot", "-rtc", "base=utc"},
			expected: []qemu.Argument{
				qemu.RepeatableArg("device", "virtio-rng-pci"),
				qemu.UniqueArg("no-reboot"),
				qemu.UniqueArg("rtc", "base=utc"),
			},
			assertErr: require.NoError,
		},
		{
			name:   "value without name",
			fields: []string{"virtio-rng-pci"},
			assertErr: func(t require.TestingT, err error, _ ...any) {
				require.ErrorIs(t, err, &qemu.ArgumentError{})
			},
		},
		{
			name:   "bare dash",
			fields: []string{"-"},
			assertErr: func(t require.TestingT, err error, _ ...any) {
				require.ErrorIs(t, err, &qemu.ArgumentError{})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := qemu.ParseArgs(tt.fields)
			tt.assertErr(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestArch_Set(t *testing.T) {
	var arch qemu.Arch

	require.NoError(t, arch.Set("arm64"))
	assert.Equal(t, qemu.ARM64, arch)

	require.ErrorIs(t, arch.Set("mips"), qemu.ErrArchNotSupported)
	assert.Equal(t, qemu.ARM64, arch, "unchanged on error")
}
