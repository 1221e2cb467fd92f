// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import "errors"

var (
	// ErrNotRegularFile is returned if a source file is not a regular file.
	ErrNotRegularFile = errors.New("not a regular file")

	// ErrPathNotAbsolute is returned if an archive path is not absolute.
	ErrPathNotAbsolute = errors.New("path not absolute")

	// ErrEntryExists is returned if an archive path is added twice.
	ErrEntryExists = errors.New("entry exists")
)
