// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import "errors"

var (
	// ErrInvalidID is returned if a guest id contains characters not usable
	// in file and cgroup names.
	ErrInvalidID = errors.New("invalid guest id")

	// ErrUnknownVariable is returned if a template references an unknown
	// variable.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrInvalidValue is returned if a configuration value is invalid.
	ErrInvalidValue = errors.New("invalid value")
)
