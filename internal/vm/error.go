// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package vm

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by [Controller.Start] if the guest is
	// already marked running by this controller.
	ErrAlreadyRunning = errors.New("guest already running")

	// ErrNotRunning is returned by [Controller.Attach] if no guest process
	// exists.
	ErrNotRunning = errors.New("guest not running")

	// ErrNoSession is returned if a QMP command is sent while no session is
	// attached.
	ErrNoSession = errors.New("no session attached")

	// ErrMultipleRoots is returned if the guest's cgroup contains more than
	// one process tree.
	ErrMultipleRoots = errors.New("multiple process tree roots")

	// ErrPIDMismatch is returned if the launched process is not the root of
	// the guest's process tree.
	ErrPIDMismatch = errors.New("launched pid is not the tree root")

	// ErrSessionAttached is returned if a session is about to be attached
	// while another one still is.
	ErrSessionAttached = errors.New("session already attached")
)

// InvariantViolationError is returned if the observed state of the guest
// contradicts the controller's invariants. The state must be inspected and
// fixed manually before retrying.
type InvariantViolationError struct {
	Err  error
	PIDs []int
}

// Error implements the [error] interface.
func (e *InvariantViolationError) Error() string {
	msg := "invariant violation: " + e.Err.Error()
	if len(e.PIDs) > 0 {
		msg += fmt.Sprintf(" (pids %v)", e.PIDs)
	}

	return msg
}

// Is implements the [errors.Is] interface.
func (*InvariantViolationError) Is(other error) bool {
	_, ok := other.(*InvariantViolationError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *InvariantViolationError) Unwrap() error {
	return e.Err
}

// RaceConditionError is returned by [Controller.Restart] if processes are
// still present in the guest's cgroup after stopping.
type RaceConditionError struct {
	PIDs []int
}

// Error implements the [error] interface.
func (e *RaceConditionError) Error() string {
	return fmt.Sprintf("race condition: processes still present after stop: %v", e.PIDs)
}

// Is implements the [errors.Is] interface.
func (*RaceConditionError) Is(other error) bool {
	_, ok := other.(*RaceConditionError)
	return ok
}
