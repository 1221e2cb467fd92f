// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"runtime/debug"
	"slices"

	"github.com/aibor/qguard/internal/config"
	"github.com/aibor/qguard/internal/qemu"
)

const (
	name = "qguard"

	cmdStart   = "start"
	cmdStop    = "stop"
	cmdRestart = "restart"
	cmdStatus  = "status"
	cmdQMP     = "qmp"

	usageMessage = `Usage of 'qguard':
    qguard [flags...] command [args...]

Commands:
    start                 start or reattach the guest and print its events
    stop                  stop the guest
    restart               stop the guest and start it again
    status                print the guest's process tree
    qmp name [arguments]  send a QMP command with optional JSON arguments

The guest's cgroup must exist and be delegated to the user.

All qguard flags can also be provided via environment variable QGUARD_ARGS:
    QGUARD_ARGS="-config=/etc/qguard.yaml -debug" qguard -id vm1 start

All qguard flags can also be provided via file ./.qguard-args, with one
argument per line.

Flags:
`
)

// Set on build.
var version = "dev"

var commands = []string{cmdStart, cmdStop, cmdRestart, cmdStatus, cmdQMP}

type flags struct {
	flagSet *flag.FlagSet

	id          string
	configPath  string
	arch        qemu.Arch
	stateDir    string
	cgroupRoot  string
	cgroup      string
	qemuBin     string
	kernel      string
	memory      uint64
	smp         uint64
	noKVM       bool
	consoleLog  bool
	isolateNet  bool
	stopOnExit  bool
	debug       bool
	versionFlag bool

	command     string
	commandArgs []string
}

func newFlags(output io.Writer) *flags {
	flags := &flags{
		arch: qemu.Native,
	}

	flags.initFlagset(output)

	return flags
}

func (f *flags) initFlagset(output io.Writer) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)

	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usageMessage)
		fs.PrintDefaults()
	}

	fs.StringVar(
		&f.id,
		"id",
		f.id,
		"id of the guest (required)",
	)

	fs.StringVar(
		&f.configPath,
		"config",
		f.configPath,
		"YAML configuration file",
	)

	fs.Var(
		&f.arch,
		"arch",
		"guest architecture: amd64, arm64, riscv64",
	)

	fs.StringVar(
		&f.stateDir,
		"stateDir",
		f.stateDir,
		"directory for sockets, logs and generated files",
	)

	fs.StringVar(
		&f.cgroupRoot,
		"cgroupRoot",
		f.cgroupRoot,
		"mount point of the cgroup2 hierarchy",
	)

	fs.StringVar(
		&f.cgroup,
		"cgroup",
		f.cgroup,
		"cgroup of the guest relative to cgroupRoot. ${uid} and ${id} are expanded",
	)

	fs.StringVar(
		&f.qemuBin,
		"qemu-bin",
		f.qemuBin,
		"QEMU binary to use",
	)

	fs.StringVar(
		&f.kernel,
		"kernel",
		f.kernel,
		"path to kernel to boot directly",
	)

	fs.Uint64Var(
		&f.memory,
		"memory",
		f.memory,
		"memory (in MB) for the QEMU VM",
	)

	fs.Uint64Var(
		&f.smp,
		"smp",
		f.smp,
		"number of CPUs for the QEMU VM",
	)

	fs.BoolVar(
		&f.noKVM,
		"nokvm",
		f.noKVM,
		"disable hardware support",
	)

	fs.BoolVar(
		&f.consoleLog,
		"consoleLog",
		f.consoleLog,
		"write the guest's serial console into the state directory",
	)

	fs.BoolVar(
		&f.isolateNet,
		"isolateNetwork",
		f.isolateNet,
		"run the guest in its own network namespace with only loopback",
	)

	fs.BoolVar(
		&f.stopOnExit,
		"stopOnExit",
		f.stopOnExit,
		"stop the guest when interrupted instead of detaching",
	)

	fs.BoolVar(
		&f.debug,
		"debug",
		f.debug,
		"enable debug output",
	)

	fs.BoolVar(
		&f.versionFlag,
		"version",
		f.versionFlag,
		"show version and exit",
	)

	f.flagSet = fs
}

// fail fails like flag does. It prints the error first and then usage.
func (f *flags) fail(msg string, err error) error {
	err = &ParseArgsError{msg: msg, err: err}
	fmt.Fprintln(f.flagSet.Output(), err.Error())

	f.flagSet.Usage()

	return err
}

func (f *flags) printVersionInformation() {
	fmt.Fprintf(f.flagSet.Output(), "%s: %s\n", name, version)

	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		fmt.Fprintln(f.flagSet.Output(), buildInfo.String())
	}
}

func (f *flags) ParseArgs(args []string) error {
	// Parses arguments up to the first one that is not prefixed with a "-" or
	// is "--".
	if err := f.flagSet.Parse(args); err != nil {
		return &ParseArgsError{msg: "flag parse", err: err}
	}

	// With version flag, just print the version and exit. Using [ErrHelp] the
	// main binary is supposed to return with a non error exit code.
	if f.versionFlag {
		f.printVersionInformation()
		return &ParseArgsError{msg: "version requested", err: ErrHelp}
	}

	if err := config.ValidateID(f.id); err != nil {
		return f.fail("no valid id given (use -id)", err)
	}

	positionalArgs := f.flagSet.Args()
	if len(positionalArgs) < 1 {
		return f.fail("no command given", nil)
	}

	f.command = positionalArgs[0]
	f.commandArgs = positionalArgs[1:]

	if !slices.Contains(commands, f.command) {
		return f.fail("unknown command "+f.command, nil)
	}

	switch f.command {
	case cmdQMP:
		if len(f.commandArgs) < 1 || len(f.commandArgs) > 2 {
			return f.fail("qmp requires a command name and optional JSON arguments", nil)
		}

		if len(f.commandArgs) == 2 && !json.Valid([]byte(f.commandArgs[1])) {
			return f.fail("invalid JSON arguments: "+f.commandArgs[1], nil)
		}
	default:
		if len(f.commandArgs) > 0 {
			return f.fail(f.command+" takes no arguments", nil)
		}
	}

	return nil
}

// Config returns the default configuration, overlaid by the configuration
// file, if given, and finally by the flags explicitly set.
func (f *flags) Config() (config.Config, error) {
	cfg := config.Default()

	if f.configPath != "" {
		if err := config.Load(f.configPath, &cfg); err != nil {
			return config.Config{}, err
		}
	}

	f.flagSet.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "arch":
			cfg.Arch = f.arch
		case "stateDir":
			cfg.StateDir = f.stateDir
		case "cgroupRoot":
			cfg.CgroupRoot = f.cgroupRoot
		case "cgroup":
			cfg.Cgroup = f.cgroup
		case "qemu-bin":
			cfg.QEMU.Executable = f.qemuBin
		case "kernel":
			cfg.QEMU.Kernel = f.kernel
		case "memory":
			cfg.QEMU.Memory = f.memory
		case "smp":
			cfg.QEMU.SMP = f.smp
		case "nokvm":
			cfg.QEMU.NoKVM = f.noKVM
		case "consoleLog":
			cfg.QEMU.ConsoleLog = f.consoleLog
		case "isolateNetwork":
			cfg.IsolateNetwork = f.isolateNet
		}
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}
