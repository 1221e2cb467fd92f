// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proctree

import "fmt"

// ConfigurationError is returned if the stat record of a single member
// process can not be read or parsed.
//
// [Builder.Build] tolerates it and drops the affected pid.
type ConfigurationError struct {
	PID int
	Err error
}

// Error implements the [error] interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("pid %d: %v", e.PID, e.Err)
}

// Is implements the [errors.Is] interface.
func (*ConfigurationError) Is(other error) bool {
	_, ok := other.(*ConfigurationError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
