// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"os"
	"runtime"
)

// Arch is a guest architecture.
type Arch string

// Supported guest architectures.
const (
	AMD64   Arch = "amd64"
	ARM64   Arch = "arm64"
	RISCV64 Arch = "riscv64"
)

// Native is the architecture of the host. Using the same architecture for the
// guest allows using KVM, if available.
const Native = Arch(runtime.GOARCH)

// String implements [fmt.Stringer].
func (a Arch) String() string {
	return string(a)
}

// Set implements [flag.Value].
func (a *Arch) Set(s string) error {
	switch Arch(s) {
	case AMD64, ARM64, RISCV64:
		*a = Arch(s)
	default:
		return ErrArchNotSupported
	}

	return nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (a *Arch) UnmarshalText(text []byte) error {
	return a.Set(string(text))
}

// KVMAvailable checks if KVM can be used for the architecture.
func (a Arch) KVMAvailable() bool {
	if a != Native {
		return false
	}

	f, err := os.OpenFile("/dev/kvm", os.O_WRONLY, 0)
	if err != nil {
		return false
	}

	_ = f.Close()

	return true
}

// defaults returns the QEMU binary and machine type for the architecture.
func (a Arch) defaults() (string, string, error) {
	switch a {
	case AMD64:
		return "qemu-system-x86_64", "q35", nil
	case ARM64:
		return "qemu-system-aarch64", "virt", nil
	case RISCV64:
		return "qemu-system-riscv64", "virt", nil
	default:
		return "", "", ErrArchNotSupported
	}
}
