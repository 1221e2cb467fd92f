// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aibor/qguard/internal/config"
	"github.com/aibor/qguard/internal/vm"
)

const localConfigFile = ".qguard-args"

// Exit codes.
const (
	exitOK         = 0
	exitFailure    = 1
	exitUsageError = 2
)

// IO provides input and output details for the command.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// newControllerFunc creates the [vm.Controller] for the given id and
// configuration. Replaced in tests.
type newControllerFunc func(id string, cfg config.Config, output io.Writer) (*vm.Controller, error)

func parseFlags(args []string, cfg IO) (*flags, error) {
	args, err := MergedArgs(args, os.DirFS("."), localConfigFile)
	if err != nil {
		return nil, err
	}

	flags := newFlags(cfg.Stderr)

	if err := flags.ParseArgs(args); err != nil {
		return nil, err
	}

	return flags, nil
}

func newController(id string, cfg config.Config, output io.Writer) (*vm.Controller, error) {
	cgroup, err := cfg.CgroupName(id, os.Getuid())
	if err != nil {
		return nil, err
	}

	guest, err := cfg.Guest(id)
	if err != nil {
		return nil, fmt.Errorf("guest: %w", err)
	}

	archive, err := cfg.Archive(os.DirFS("/"))
	if err != nil {
		return nil, err
	}

	return vm.New(id, vm.Config{
		CgroupRoot:     cfg.CgroupRoot,
		Cgroup:         cgroup,
		Guest:          guest,
		Archive:        archive,
		Output:         output,
		IsolateNetwork: cfg.IsolateNetwork,
		Delays:         cfg.Delays,
	}), nil
}

// openOutput opens the file receiving QEMU's output. The guest writes to it
// directly, so it stays usable after qguard exited.
func openOutput(cfg config.Config, id string) (*os.File, error) {
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	file, err := os.OpenFile(
		cfg.OutputPath(id),
		os.O_WRONLY|os.O_CREATE|os.O_APPEND,
		0o600,
	)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}

	return file, nil
}

func run(ctx context.Context, flags *flags, cfg IO, newCtrl newControllerFunc) error {
	instanceCfg, err := flags.Config()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var output io.Writer = io.Discard

	if flags.command == cmdStart || flags.command == cmdRestart {
		file, err := openOutput(instanceCfg, flags.id)
		if err != nil {
			return err
		}
		defer file.Close()

		output = file
	}

	controller, err := newCtrl(flags.id, instanceCfg, output)
	if err != nil {
		return err
	}

	switch flags.command {
	case cmdStart:
		return start(ctx, controller, cfg.Stdout, flags.stopOnExit)
	case cmdRestart:
		return restart(ctx, controller, cfg.Stdout, flags.stopOnExit)
	case cmdStop:
		return controller.Stop(ctx)
	case cmdStatus:
		return status(ctx, controller, cfg.Stdout)
	case cmdQMP:
		return sendQMP(ctx, controller, cfg.Stdout, flags.commandArgs)
	default:
		return fmt.Errorf("unknown command %s", flags.command)
	}
}

func handleParseArgsError(err error) int {
	// [ErrHelp] is returned when help is requested. So exit without error
	// in this case.
	if errors.Is(err, ErrHelp) {
		return exitOK
	}

	// ParseArgs already prints errors, so we just exit without an error.
	if !errors.Is(err, &ParseArgsError{}) {
		slog.Error(err.Error())
	}

	return exitUsageError
}

func handleRunError(err error) int {
	var invariantErr *vm.InvariantViolationError
	if errors.As(err, &invariantErr) {
		slog.Warn("Inspect the guest's cgroup before retrying")
	}

	slog.Error(err.Error())

	return exitFailure
}

// Run is the main entry point for the CLI command.
func Run(ctx context.Context, args []string, cfg IO) int {
	return runWith(ctx, args, cfg, newController)
}

func runWith(ctx context.Context, args []string, cfg IO, newCtrl newControllerFunc) int {
	flags, err := parseFlags(args, cfg)
	if err != nil {
		return handleParseArgsError(err)
	}

	setupLogging(cfg.Stderr, flags.debug)

	if err := run(ctx, flags, cfg, newCtrl); err != nil {
		return handleRunError(err)
	}

	return exitOK
}
