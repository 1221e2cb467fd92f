// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package qemu composes the QEMU system emulator command line for a
// supervised guest. It expects the required QEMU binary to be present on the
// system.
//
// The guest is started paused ("-S") with a QMP server socket and without any
// default devices, display or human monitor. It is resumed over QMP once the
// supervisor attached.
package qemu
