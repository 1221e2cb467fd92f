// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package proctree

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/containerd/cgroups/v3/cgroup2"
	"github.com/prometheus/procfs"
)

// ProcsFile is the name of the cgroup membership file.
const ProcsFile = "cgroup.procs"

// Tree is a process and its descendants within the same cgroup.
type Tree struct {
	PID      int
	Children []*Tree
}

// Len returns the number of processes in the tree.
func (t *Tree) Len() int {
	n := 1
	for _, child := range t.Children {
		n += child.Len()
	}

	return n
}

// PIDs returns all pids of the tree in depth-first order.
func (t *Tree) PIDs() []int {
	pids := []int{t.PID}
	for _, child := range t.Children {
		pids = append(pids, child.PIDs()...)
	}

	return pids
}

// Builder builds process trees from a cgroup2 hierarchy and a proc
// filesystem.
type Builder struct {
	// CgroupRoot is the mount point of the cgroup2 hierarchy.
	CgroupRoot string

	// ProcRoot is the mount point of procfs.
	ProcRoot string
}

// NewHostBuilder returns a [Builder] reading the given cgroup root and the
// host's procfs.
func NewHostBuilder(cgroupRoot string) *Builder {
	return &Builder{
		CgroupRoot: cgroupRoot,
		ProcRoot:   procfs.DefaultMountPoint,
	}
}

// Build returns one [Tree] per root process of the named cgroup.
//
// A root is a process whose parent is not a member of the cgroup. The result
// is empty for an empty cgroup. Callers managing a single guest must treat
// more than one root as fatal.
func (b *Builder) Build(name string) ([]*Tree, error) {
	pids, err := b.members(name)
	if err != nil {
		return nil, err
	}

	proc, err := procfs.NewFS(b.ProcRoot)
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}

	parents := make(map[int]int, len(pids))

	for _, pid := range pids {
		ppid, err := parent(proc, pid)
		if err != nil {
			// The process may have exited since the listing.
			slog.Debug("Skip cgroup member", slog.Any("error", err))
			continue
		}

		parents[pid] = ppid
	}

	children := make(map[int][]int, len(parents))
	roots := []int{}

	for pid, ppid := range parents {
		if _, member := parents[ppid]; !member {
			roots = append(roots, pid)
			continue
		}

		children[ppid] = append(children[ppid], pid)
	}

	slices.Sort(roots)

	trees := make([]*Tree, 0, len(roots))
	for _, root := range roots {
		trees = append(trees, materialize(root, children))
	}

	return trees, nil
}

func materialize(pid int, children map[int][]int) *Tree {
	tree := &Tree{PID: pid}

	childPIDs := children[pid]
	slices.Sort(childPIDs)

	for _, child := range childPIDs {
		tree.Children = append(tree.Children, materialize(child, children))
	}

	return tree
}

// members returns the pids listed in the cgroup's own membership file.
// Members of child cgroups are not included.
func (b *Builder) members(name string) ([]int, error) {
	// The manager treats a missing membership file as empty cgroup, but the
	// cgroup must exist.
	procsFile := filepath.Join(b.CgroupRoot, name, ProcsFile)
	if _, err := os.Stat(procsFile); err != nil {
		return nil, fmt.Errorf("read %s: %w", ProcsFile, err)
	}

	manager, err := cgroup2.Load(path.Join("/", name), cgroup2.WithMountpoint(b.CgroupRoot))
	if err != nil {
		return nil, fmt.Errorf("load cgroup %s: %w", name, err)
	}

	procs, err := manager.Procs(false)
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", name, err)
	}

	pids := make([]int, 0, len(procs))
	for _, pid := range procs {
		pids = append(pids, int(pid))
	}

	return pids, nil
}

// parent returns the parent pid of the process with the given pid.
func parent(proc procfs.FS, pid int) (int, error) {
	p, err := proc.Proc(pid)
	if err != nil {
		return 0, &ConfigurationError{PID: pid, Err: err}
	}

	stat, err := p.Stat()
	if err != nil {
		return 0, &ConfigurationError{PID: pid, Err: err}
	}

	return stat.PPID, nil
}
