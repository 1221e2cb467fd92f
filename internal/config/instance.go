// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aibor/qguard/internal/initramfs"
	"github.com/aibor/qguard/internal/qemu"
)

// CgroupName expands the cgroup template for the guest id and user id.
func (c *Config) CgroupName(id string, uid int) (string, error) {
	var unknown []string

	name := os.Expand(c.Cgroup, func(key string) string {
		switch key {
		case "id":
			return id
		case "uid":
			return strconv.Itoa(uid)
		default:
			unknown = append(unknown, key)
			return ""
		}
	})

	if len(unknown) > 0 {
		return "", fmt.Errorf("%w in cgroup template: %v", ErrUnknownVariable, unknown)
	}

	return filepath.Clean(name), nil
}

// SocketPath returns the path of the guest's QMP socket.
func (c *Config) SocketPath(id string) string {
	return filepath.Join(c.StateDir, id+".qmp")
}

// ConsoleLogPath returns the path the guest's serial console is written to.
func (c *Config) ConsoleLogPath(id string) string {
	return filepath.Join(c.StateDir, id+".console")
}

// OutputPath returns the path the QEMU process' output is written to.
func (c *Config) OutputPath(id string) string {
	return filepath.Join(c.StateDir, id+".log")
}

// InitramfsPath returns the path of the generated initramfs.
func (c *Config) InitramfsPath(id string) string {
	return filepath.Join(c.StateDir, id+".initramfs")
}

// Guest composes the QEMU guest definition for the given id.
func (c *Config) Guest(id string) (qemu.Guest, error) {
	extraArgs, err := qemu.ParseArgs(c.QEMU.ExtraArgs)
	if err != nil {
		return qemu.Guest{}, fmt.Errorf("extra args: %w", err)
	}

	guest := qemu.Guest{
		Name:       id,
		Executable: c.QEMU.Executable,
		QMPSocket:  c.SocketPath(id),
		Machine:    c.QEMU.Machine,
		CPU:        c.QEMU.CPU,
		SMP:        c.QEMU.SMP,
		Memory:     c.QEMU.Memory,
		NoKVM:      c.QEMU.NoKVM,
		Kernel:     c.QEMU.Kernel,
		Initramfs:  c.QEMU.Initrd,
		Append:     c.QEMU.Append,
		ExtraArgs:  extraArgs,
	}

	if c.Initramfs.Init != "" {
		guest.Initramfs = c.InitramfsPath(id)
	}

	if c.QEMU.ConsoleLog {
		guest.ConsoleLog = c.ConsoleLogPath(id)
	}

	if err := guest.AddDefaultsFor(c.Arch); err != nil {
		return qemu.Guest{}, err
	}

	if err := guest.Validate(); err != nil {
		return qemu.Guest{}, err
	}

	return guest, nil
}

// Archive returns the initramfs to generate with its files read from source.
// It returns nil if no initramfs is configured.
func (c *Config) Archive(source fs.FS) (*initramfs.Archive, error) {
	if c.Initramfs.Init == "" {
		return nil, nil //nolint:nilnil
	}

	archive := initramfs.New(source)

	if err := archive.AddInit(c.Initramfs.Init); err != nil {
		return nil, fmt.Errorf("initramfs: %w", err)
	}

	for guestPath, hostPath := range c.Initramfs.Files {
		if err := archive.AddFile(guestPath, hostPath); err != nil {
			return nil, fmt.Errorf("initramfs: %w", err)
		}
	}

	return archive, nil
}
