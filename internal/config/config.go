// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aibor/qguard/internal/qemu"
)

// Default values.
const (
	DefaultCgroupRoot   = "/sys/fs/cgroup"
	DefaultCgroup       = "user.slice/user-${uid}.slice/user@${uid}.service/app.slice/qguard-${id}.scope"
	DefaultSocketDelay  = 2 * time.Second
	DefaultDrainDelay   = 100 * time.Millisecond
	DefaultKillDelay    = time.Second
	DefaultMemory       = 256
	DefaultSMP          = 1
	defaultStateDirName = "qguard"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Config is the instance configuration.
type Config struct {
	// Root of the cgroup v2 hierarchy.
	CgroupRoot string `yaml:"cgroupRoot"`

	// Path of the guest's cgroup relative to CgroupRoot. The cgroup must
	// exist and be delegated to the user. "${uid}" and "${id}" are expanded.
	Cgroup string `yaml:"cgroup"`

	// Directory for sockets, logs and generated files.
	StateDir string `yaml:"stateDir"`

	// Guest architecture.
	Arch qemu.Arch `yaml:"arch"`

	// Run the guest in its own network namespace with only loopback.
	IsolateNetwork bool `yaml:"isolateNetwork"`

	QEMU      QEMU      `yaml:"qemu"`
	Initramfs Initramfs `yaml:"initramfs"`
	Delays    Delays    `yaml:"delays"`
}

// QEMU is the guest machine configuration.
type QEMU struct {
	Executable string   `yaml:"executable"`
	Machine    string   `yaml:"machine"`
	CPU        string   `yaml:"cpu"`
	SMP        uint64   `yaml:"smp"`
	Memory     uint64   `yaml:"memory"`
	NoKVM      bool     `yaml:"noKVM"`
	Kernel     string   `yaml:"kernel"`
	Initrd     string   `yaml:"initrd"`
	Append     []string `yaml:"append"`
	ExtraArgs  []string `yaml:"extraArgs"`

	// Write the guest's serial console into the state directory.
	ConsoleLog bool `yaml:"consoleLog"`
}

// Initramfs lists host files packed into a generated initramfs. It is used
// instead of QEMU.Initrd if Init is set.
type Initramfs struct {
	// Host path of the file used as "/init".
	Init string `yaml:"init"`

	// Additional files, guest path mapped to host path.
	Files map[string]string `yaml:"files"`
}

// Delays are the fixed waits of the guest lifecycle.
type Delays struct {
	// Wait after launching until the QMP socket is expected to be present.
	Socket time.Duration `yaml:"socket"`

	// Wait before stopping to let in-flight work settle.
	Drain time.Duration `yaml:"drain"`

	// Wait after sending SIGTERM before the guest is expected gone.
	Kill time.Duration `yaml:"kill"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		CgroupRoot: DefaultCgroupRoot,
		Cgroup:     DefaultCgroup,
		StateDir:   defaultStateDir(),
		Arch:       qemu.Native,
		QEMU: QEMU{
			SMP:    DefaultSMP,
			Memory: DefaultMemory,
		},
		Delays: Delays{
			Socket: DefaultSocketDelay,
			Drain:  DefaultDrainDelay,
			Kill:   DefaultKillDelay,
		},
	}
}

func defaultStateDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, defaultStateDirName)
	}

	return filepath.Join(os.TempDir(), defaultStateDirName+"-"+strconv.Itoa(os.Getuid()))
}

// Load reads the YAML configuration file at path on top of the values
// already present in cfg. Unknown keys are rejected.
func Load(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	return Decode(file, cfg)
}

// Decode reads YAML configuration from r on top of the values already
// present in cfg. Unknown keys are rejected. An empty document leaves cfg
// unchanged.
func Decode(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}

	return cfg.Validate()
}

// Validate checks for invalid values.
func (c *Config) Validate() error {
	switch {
	case c.CgroupRoot == "":
		return fmt.Errorf("%w: cgroupRoot must not be empty", ErrInvalidValue)
	case c.Cgroup == "":
		return fmt.Errorf("%w: cgroup must not be empty", ErrInvalidValue)
	case filepath.IsAbs(c.Cgroup):
		return fmt.Errorf("%w: cgroup must be relative to cgroupRoot", ErrInvalidValue)
	case c.StateDir == "":
		return fmt.Errorf("%w: stateDir must not be empty", ErrInvalidValue)
	case c.Delays.Socket < 0, c.Delays.Drain < 0, c.Delays.Kill < 0:
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidValue)
	case c.Initramfs.Init == "" && len(c.Initramfs.Files) > 0:
		return fmt.Errorf("%w: initramfs files require init", ErrInvalidValue)
	case c.Initramfs.Init != "" && c.QEMU.Initrd != "":
		return fmt.Errorf("%w: initramfs and initrd are exclusive", ErrInvalidValue)
	}

	return nil
}

// ValidateID checks that id is usable in file and cgroup names.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	return nil
}
