// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package proctree reconstructs the parent/child forest of the processes that
// are members of a cgroup.
//
// The forest is built from the cgroup's "cgroup.procs" file and the
// "/proc/<pid>/stat" record of each member. It is rebuilt on every call and
// never cached, so it always reflects the live system. A process that exits
// between listing and reading is silently dropped.
package proctree
