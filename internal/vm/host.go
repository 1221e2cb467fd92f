// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package vm

import (
	"context"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/aibor/qguard/internal/nsexec"
	"github.com/aibor/qguard/internal/proctree"
	"github.com/aibor/qguard/internal/qmp"
)

// TreeSource derives the process forest of a cgroup.
type TreeSource interface {
	Build(cgroup string) ([]*proctree.Tree, error)
}

// Process is a launched guest process.
type Process interface {
	PID() int
	Signal(sig os.Signal) error
	Wait() error
}

// Launcher starts the guest command in a new user namespace inside the given
// cgroup.
type Launcher interface {
	Launch(ctx context.Context, cgroup string, argv []string) (Process, error)
}

// Session is an attached QMP session.
type Session interface {
	Execute(ctx context.Context, cmd qmp.Command) (qmp.Reply, error)
	Events() <-chan qmp.Event
	Shutdown() error
}

// Dialer attaches a [Session] to the QMP socket at path.
type Dialer interface {
	Dial(ctx context.Context, path string) (Session, error)
}

// Signaler sends signals to processes by pid.
type Signaler interface {
	Signal(pid int, sig unix.Signal) error
}

// Sleeper waits for the given duration or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// nsLauncher launches guests with [nsexec.Launcher].
type nsLauncher struct {
	launcher *nsexec.Launcher
}

func (l nsLauncher) Launch(ctx context.Context, cgroup string, argv []string) (Process, error) {
	process, err := l.launcher.Launch(ctx, cgroup, argv)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return process, nil
}

// qmpDialer attaches sessions with [qmp.Dial].
type qmpDialer struct{}

func (qmpDialer) Dial(ctx context.Context, path string) (Session, error) {
	session, err := qmp.Dial(ctx, path)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return session, nil
}

// killSignaler sends signals with kill(2).
type killSignaler struct{}

func (killSignaler) Signal(pid int, sig unix.Signal) error {
	return unix.Kill(pid, sig) //nolint:wrapcheck
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
