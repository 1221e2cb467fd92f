// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"fmt"
	"slices"
	"strings"
)

// repeatableNames are the names of arguments that may be given multiple times
// with different values.
var repeatableNames = []string{
	"append",
	"chardev",
	"device",
	"drive",
	"fw_cfg",
	"global",
	"netdev",
	"object",
	"serial",
}

// Argument is a QEMU argument with or without value.
//
// Its name might be marked to be unique in an argument list.
type Argument struct {
	name       string
	value      string
	repeatable bool
}

// String implements [fmt.Stringer].
func (a Argument) String() string {
	s := "-" + a.name
	if a.value != "" {
		s += " " + a.value
	}

	return s
}

// Name returns the name of the [Argument].
func (a Argument) Name() string {
	return a.name
}

// Value returns the value of the [Argument].
func (a Argument) Value() string {
	return a.value
}

// Collides reports if both [Argument]s must not be in the same list.
//
// Arguments with the same name collide if either of them is unique. Repeatable
// arguments collide only if their values are equal as well.
func (a Argument) Collides(other Argument) bool {
	if a.name != other.name {
		return false
	}

	if a.repeatable && other.repeatable {
		return a.value == other.value
	}

	return true
}

// UniqueArg returns a new [Argument] with the given name that is marked as
// unique and so can be used in an argument list only once.
func UniqueArg(name string, value ...string) Argument {
	return Argument{
		name:  name,
		value: strings.Join(value, ","),
	}
}

// RepeatableArg returns a new [Argument] with the given name that is not
// unique and so can be used in an argument list multiple times.
func RepeatableArg(name string, value ...string) Argument {
	return Argument{
		name:       name,
		value:      strings.Join(value, ","),
		repeatable: true,
	}
}

// ParseArgs parses a command line fragment like "-device virtio-rng-pci" into
// [Argument]s. Each name must be prefixed with a dash and may be followed by
// a single value. Well known repeatable names, like "device", are marked
// repeatable, all others unique.
func ParseArgs(fields []string) ([]Argument, error) {
	var args []Argument

	for idx := 0; idx < len(fields); idx++ {
		name, found := strings.CutPrefix(fields[idx], "-")
		if !found || name == "" {
			return nil, &ArgumentError{"expected argument name: " + fields[idx]}
		}

		// Both "-name" and "--name" are accepted by QEMU.
		name = strings.TrimPrefix(name, "-")

		var value string
		if next := idx + 1; next < len(fields) && !strings.HasPrefix(fields[next], "-") {
			value = fields[next]
			idx = next
		}

		if slices.Contains(repeatableNames, name) {
			args = append(args, RepeatableArg(name, value))
		} else {
			args = append(args, UniqueArg(name, value))
		}
	}

	return args, nil
}

// BuildArgumentStrings compiles the [Argument]s to into a slice of strings
// which can be used with [exec.Command].
//
// It returns an error if any two [Argument]s collide.
func BuildArgumentStrings(args []Argument) ([]string, error) {
	argStrings := make([]string, 0, 2*len(args))

	for idx, arg := range args {
		if i := slices.IndexFunc(args[:idx], arg.Collides); i != -1 {
			return nil, fmt.Errorf(
				"%w: %s, %s",
				ErrArgumentCollision,
				arg.String(),
				args[i].String(),
			)
		}

		argStrings = append(argStrings, "-"+arg.name)

		if arg.value != "" {
			argStrings = append(argStrings, arg.value)
		}
	}

	return argStrings, nil
}
