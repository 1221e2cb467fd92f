// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package nsexec launches a guest process inside a new user namespace without
// ever holding ambient root privileges.
//
// The launch is a handshake between two parties connected by two pipes:
//
//   - the inner helper is the re-executed own binary started in a new user
//     namespace. It announces itself by writing a ready marker and its pid,
//     waits for the success marker, becomes uid/gid 0 inside the namespace and
//     replaces its image with the guest binary.
//   - the outer [Launcher] still runs in the parent namespace. After reading
//     the ready marker it writes the single entry uid and gid maps of the
//     helper, denies setgroups, moves the helper into the target cgroup and
//     writes the success marker.
//
// Root inside the new namespace maps to the launcher's unprivileged identity
// only. Any unexpected byte on either pipe aborts the launch.
//
// With an isolated network namespace, the helper re-executes itself once as
// mapped root before executing the guest and brings the loopback interface
// up.
//
// The binary using this package must call [RunHelper] early in its main
// function if [IsHelper] reports true.
package nsexec
