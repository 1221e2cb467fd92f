// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package vm supervises the lifecycle of a single QEMU guest placed in a
// cgroup.
//
// The [Controller] never trusts its own believed state alone. Whether a guest
// is running is re-derived from the process tree of the guest's cgroup on
// every transition: a single tree root is a live guest, no tree means no
// guest, and more than one root is an invariant violation that is never
// resolved automatically.
package vm
