// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package initramfs builds a newc CPIO archive that can be passed to a guest
// kernel as initial ram disk.
package initramfs
