// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package nsexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const selfExecutable = "/proc/self/exe"

// Launcher is the outer, still privileged party of the launch handshake.
type Launcher struct {
	// CgroupRoot is the mount point of the cgroup2 hierarchy.
	CgroupRoot string

	// ProcRoot is the mount point of procfs. Defaults to "/proc".
	ProcRoot string

	// UID is the host uid root inside the namespace is mapped to.
	UID int

	// GID is the host gid root inside the namespace is mapped to.
	GID int

	// Executable is the binary started as helper. It must call [RunHelper].
	// Defaults to the running executable.
	Executable string

	// Output receives stdout and stderr of the guest. If it is an [os.File],
	// the guest writes to it directly and so may outlive the launcher.
	Output io.Writer

	// IsolateNetwork starts the guest in a new network namespace with only
	// the loopback interface up.
	IsolateNetwork bool
}

// Process is a launched guest process.
type Process struct {
	cmd *exec.Cmd
}

// PID returns the host pid of the guest.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Signal sends the given signal to the guest.
func (p *Process) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig) //nolint:wrapcheck
}

// Wait waits for the guest to exit and releases its resources.
func (p *Process) Wait() error {
	return p.cmd.Wait() //nolint:wrapcheck
}

// Launch starts the guest command in a new user namespace and moves it into
// the named cgroup.
//
// It returns once the handshake completed and the helper is about to replace
// itself with the guest binary. The context only bounds the handshake. The
// guest process is not bound to it.
func (l *Launcher) Launch(
	ctx context.Context,
	cgroup string,
	guest []string,
) (*Process, error) {
	if len(guest) == 0 {
		return nil, ErrNoGuest
	}

	// readyR/readyW carry the ready message from helper to launcher,
	// successR/successW the success marker from launcher to helper.
	readyR, readyW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("ready pipe: %w", err)
	}
	defer readyR.Close()

	successR, successW, err := os.Pipe()
	if err != nil {
		_ = readyW.Close()
		return nil, fmt.Errorf("success pipe: %w", err)
	}
	defer successW.Close()

	cmd := l.command(guest, readyW, successR)

	err = cmd.Start()

	// The helper owns its ends now.
	_ = readyW.Close()
	_ = successR.Close()

	if err != nil {
		return nil, fmt.Errorf("start helper: %w", err)
	}

	proc := &Process{cmd: cmd}

	slog.DebugContext(ctx, "Helper started", slog.Int("pid", proc.PID()))

	stop := context.AfterFunc(ctx, func() {
		_ = readyR.SetReadDeadline(time.Now())
	})
	defer stop()

	err = l.handshake(proc.PID(), cgroup, readyR, successW)
	if err != nil {
		_ = proc.Signal(unix.SIGKILL)
		_ = proc.Wait()

		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(err, ctxErr)
		}

		return nil, err
	}

	return proc, nil
}

func (l *Launcher) command(guest []string, ready, success *os.File) *exec.Cmd {
	executable := l.Executable
	if executable == "" {
		executable = selfExecutable
	}

	cmd := &exec.Cmd{
		Path: executable,
		Args: append([]string{HelperName}, guest...),
		// FDs 0, 1, 2 are standard in, out, err, so ready is 3 and success
		// is 4.
		ExtraFiles: []*os.File{ready, success},
		SysProcAttr: &syscall.SysProcAttr{
			Cloneflags: unix.CLONE_NEWUSER,
			Setsid:     true,
		},
		Stdout: l.Output,
		Stderr: l.Output,
	}

	if l.IsolateNetwork {
		cmd.SysProcAttr.Cloneflags |= unix.CLONE_NEWNET
		cmd.Env = append(os.Environ(), isolateNetworkEnv+"=1")
	}

	return cmd
}

// handshake runs the launcher's part of the handshake for the helper with the
// given pid.
func (l *Launcher) handshake(
	pid int,
	cgroup string,
	ready io.Reader,
	success io.Writer,
) error {
	announced, err := ReadReady(ready)
	if err != nil {
		return &HandshakeError{Step: "ready", Err: err}
	}

	if announced != pid {
		return &HandshakeError{
			Step: "ready",
			Err:  fmt.Errorf("%w: %d != %d", ErrPIDMismatch, announced, pid),
		}
	}

	procRoot := l.ProcRoot
	if procRoot == "" {
		procRoot = "/proc"
	}

	if err := WriteIDMaps(procRoot, pid, l.UID, l.GID); err != nil {
		return &HandshakeError{Step: "id maps", Err: err}
	}

	if err := AttachCgroup(l.CgroupRoot, cgroup, pid); err != nil {
		return &HandshakeError{Step: "cgroup", Err: err}
	}

	if err := WriteSuccess(success); err != nil {
		return &HandshakeError{Step: "success", Err: err}
	}

	return nil
}
