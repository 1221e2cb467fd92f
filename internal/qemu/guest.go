// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"strconv"
	"strings"
)

// Guest defines the parameters for the QEMU command of a supervised guest.
type Guest struct {
	// Name of the guest. Used for QEMU's "-name".
	Name string

	// Path to the qemu-system binary.
	Executable string

	// Path of the QMP unix socket QEMU listens on.
	QMPSocket string

	// QEMU machine type to use. Depends on the QEMU binary used.
	Machine string

	// CPU type to use. Depends on machine type and QEMU binary used.
	CPU string

	// Number of CPUs for the guest.
	SMP uint64

	// Memory for the machine in MB.
	Memory uint64

	// Disable KVM support.
	NoKVM bool

	// Path to the kernel to boot directly.
	Kernel string

	// Path to the initramfs to boot with. Requires Kernel.
	Initramfs string

	// Kernel command line arguments. Requires Kernel.
	Append []string

	// File the guest's serial console output is written to.
	ConsoleLog string

	// Extra arguments passed to QEMU. They must not collide with the
	// arguments set by the guest definition itself.
	ExtraArgs []Argument
}

// AddDefaultsFor adds architecture specific default values to the guest if
// the fields are not set yet.
func (g *Guest) AddDefaultsFor(arch Arch) error {
	executable, machine, err := arch.defaults()
	if err != nil {
		return err
	}

	if g.Executable == "" {
		g.Executable = executable
	}

	if g.Machine == "" {
		g.Machine = machine
	}

	if !g.NoKVM {
		g.NoKVM = !arch.KVMAvailable()
	}

	return nil
}

// Validate checks for missing required values and known incompatibilities.
func (g *Guest) Validate() error {
	switch {
	case g.Name == "":
		return &ArgumentError{"name must not be empty"}
	case g.Executable == "":
		return &ArgumentError{"executable must not be empty"}
	case g.QMPSocket == "":
		return &ArgumentError{"qmp socket must not be empty"}
	case strings.Contains(g.QMPSocket, ","):
		return &ArgumentError{"qmp socket path must not contain commas"}
	case g.Kernel == "" && g.Initramfs != "":
		return &ArgumentError{"initramfs requires kernel"}
	case g.Kernel == "" && len(g.Append) > 0:
		return &ArgumentError{"kernel command line requires kernel"}
	}

	return nil
}

// Arguments compiles the argument list for the QEMU command.
func (g *Guest) Arguments() []Argument {
	args := []Argument{
		// Disable all default devices.
		UniqueArg("nodefaults"),
		// Do not load any user config files.
		UniqueArg("no-user-config"),
		// Disable video output.
		UniqueArg("display", "none"),
		// Disable the human monitor. QMP is used instead.
		UniqueArg("monitor", "none"),
		// Do not start the CPU before "cont" is sent over QMP.
		UniqueArg("S"),
		UniqueArg("name", g.Name),
		UniqueArg("qmp", "unix:"+g.QMPSocket, "server=on", "wait=off"),
	}

	if g.Machine != "" {
		args = append(args, UniqueArg("machine", g.Machine))
	}

	if g.CPU != "" {
		args = append(args, UniqueArg("cpu", g.CPU))
	}

	if g.SMP != 0 {
		args = append(args, UniqueArg("smp", strconv.FormatUint(g.SMP, 10)))
	}

	if g.Memory != 0 {
		args = append(args, UniqueArg("m", strconv.FormatUint(g.Memory, 10)))
	}

	if !g.NoKVM {
		args = append(args, UniqueArg("enable-kvm"))
	}

	if g.Kernel != "" {
		args = append(args, UniqueArg("kernel", g.Kernel))
	}

	if g.Initramfs != "" {
		args = append(args, UniqueArg("initrd", g.Initramfs))
	}

	if len(g.Append) > 0 {
		args = append(args, RepeatableArg("append", strings.Join(g.Append, " ")))
	}

	if g.ConsoleLog != "" {
		args = append(args,
			RepeatableArg("chardev", "file", "id=console", "path="+g.ConsoleLog),
			RepeatableArg("serial", "chardev:console"),
		)
	}

	return append(args, g.ExtraArgs...)
}

// Command returns the full command line, the executable followed by its
// arguments.
//
// It returns an error if the guest is invalid or any arguments collide.
func (g *Guest) Command() ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	args, err := BuildArgumentStrings(g.Arguments())
	if err != nil {
		return nil, err
	}

	return append([]string{g.Executable}, args...), nil
}
