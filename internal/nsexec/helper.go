// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package nsexec

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// HelperName is the argv[0] the helper is started with.
const HelperName = "qguard-nsinit"

// NetworkHelperName is the argv[0] of the second helper stage that sets up an
// isolated network namespace.
const NetworkHelperName = "qguard-nsnet"

// File descriptors of the handshake pipes in the helper.
const (
	readyFD   = 3
	successFD = 4
)

// IsHelper returns true if the running process was started as helper by a
// [Launcher].
func IsHelper() bool {
	switch filepath.Base(os.Args[0]) {
	case HelperName, NetworkHelperName:
		return true
	default:
		return false
	}
}

// RunHelper runs the helper's part of the handshake and replaces the process
// image with the guest command given as arguments.
//
// With an isolated network namespace, the helper executes itself once more
// as [NetworkHelperName] after becoming root. The first stage was executed
// before its uid was mapped and so lost all capabilities, which only an exec
// as mapped root regains.
//
// It only returns in case of an error. The caller must exit non-zero then.
func RunHelper() error {
	guest := os.Args[1:]
	if len(guest) == 0 {
		return ErrNoGuest
	}

	if filepath.Base(os.Args[0]) == NetworkHelperName {
		if err := setupLoopback(); err != nil {
			return err
		}

		return execGuest(guest, os.Environ())
	}

	// The pipes are inherited as blocking descriptors.
	ready := os.NewFile(readyFD, "ready")
	success := os.NewFile(successFD, "success")

	err := helperHandshake(ready, success, os.Getpid())

	// Do not leak the pipes into the guest.
	_ = ready.Close()
	_ = success.Close()

	if err != nil {
		return err
	}

	if err := becomeRoot(); err != nil {
		return err
	}

	env, isolated := takeIsolateNetwork(os.Environ())
	if isolated {
		argv := append([]string{NetworkHelperName}, guest...)

		if err := unix.Exec(selfExecutable, argv, env); err != nil {
			return fmt.Errorf("exec network helper: %w", err)
		}

		return nil
	}

	return execGuest(guest, env)
}

func helperHandshake(ready io.Writer, success io.Reader, pid int) error {
	if err := WriteReady(ready, pid); err != nil {
		return &HandshakeError{Step: "ready", Err: err}
	}

	if err := ReadSuccess(success); err != nil {
		return &HandshakeError{Step: "success", Err: err}
	}

	return nil
}

// becomeRoot switches to uid and gid 0, which maps to the launcher's
// identity.
func becomeRoot() error {
	if err := unix.Setresgid(0, 0, 0); err != nil {
		return fmt.Errorf("setresgid: %w", err)
	}

	if err := unix.Setresuid(0, 0, 0); err != nil {
		return fmt.Errorf("setresuid: %w", err)
	}

	return nil
}

// execGuest replaces the process image with the guest binary.
func execGuest(guest, env []string) error {
	path, err := exec.LookPath(guest[0])
	if err != nil {
		return fmt.Errorf("guest binary: %w", err)
	}

	if err := unix.Exec(path, guest, env); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}

	return nil
}
