// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package nsexec

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/containerd/cgroups/v3/cgroup2"
)

// IDMap returns a single entry id map line mapping id 0 inside the namespace
// to the given host id.
func IDMap(hostID int) string {
	return fmt.Sprintf("0 %d 1\n", hostID)
}

// WriteIDMaps sets up the uid and gid maps of the process with the given pid.
//
// setgroups is denied before the gid map is written, as required for
// unprivileged writers.
func WriteIDMaps(procRoot string, pid, uid, gid int) error {
	dir := filepath.Join(procRoot, strconv.Itoa(pid))

	steps := []struct {
		file    string
		content string
	}{
		{"uid_map", IDMap(uid)},
		{"setgroups", "deny"},
		{"gid_map", IDMap(gid)},
	}

	for _, step := range steps {
		err := writeProcFile(filepath.Join(dir, step.file), step.content)
		if err != nil {
			return err
		}
	}

	return nil
}

// AttachCgroup moves the process with the given pid into the named cgroup of
// the cgroup2 hierarchy mounted at cgroupRoot.
func AttachCgroup(cgroupRoot, name string, pid int) error {
	manager, err := cgroup2.Load(path.Join("/", name), cgroup2.WithMountpoint(cgroupRoot))
	if err != nil {
		return fmt.Errorf("load cgroup %s: %w", name, err)
	}

	if err := manager.AddProc(uint64(pid)); err != nil {
		return fmt.Errorf("add pid %d to cgroup %s: %w", pid, name, err)
	}

	return nil
}

// writeProcFile writes the content in a single write call. The kernel
// requires the maps to be written at once.
func writeProcFile(path, content string) error {
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	_, err = file.WriteString(content)
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	return nil
}
