// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

const fileMode = 0o755

// InitPath is the path the kernel executes after unpacking the archive.
const InitPath = "/init"

// Archive is a set of host files placed at absolute paths in the guest.
//
// Create a new instance using [New]. Parent directories are created
// implicitly. Once ready, write it with [Archive.WriteInto] or
// [Archive.WriteFile].
type Archive struct {
	source fs.FS
	files  map[string]string
}

// New creates an [Archive] reading its files from source. Host paths are
// resolved relative to the root of source. Use [os.DirFS]("/") for the host
// file system.
func New(source fs.FS) *Archive {
	return &Archive{
		source: source,
		files:  make(map[string]string),
	}
}

// AddFile adds the host file at hostPath as guestPath to the archive. The
// guest path must be absolute.
func (a *Archive) AddFile(guestPath, hostPath string) error {
	if !path.IsAbs(guestPath) {
		return fmt.Errorf("%w: %s", ErrPathNotAbsolute, guestPath)
	}

	guestPath = path.Clean(guestPath)
	if guestPath == "/" {
		return fmt.Errorf("%w: %s", ErrEntryExists, guestPath)
	}

	if _, exists := a.files[guestPath]; exists {
		return fmt.Errorf("%w: %s", ErrEntryExists, guestPath)
	}

	for _, dir := range parents(guestPath) {
		if _, exists := a.files[dir]; exists {
			return fmt.Errorf("%w: %s is a file", ErrEntryExists, dir)
		}
	}

	for existing := range a.files {
		if strings.HasPrefix(existing, guestPath+"/") {
			return fmt.Errorf("%w: %s is a directory", ErrEntryExists, guestPath)
		}
	}

	a.files[guestPath] = hostPath

	return nil
}

// AddInit adds the host file at hostPath as [InitPath].
func (a *Archive) AddInit(hostPath string) error {
	return a.AddFile(InitPath, hostPath)
}

// Len returns the number of files in the archive.
func (a *Archive) Len() int {
	return len(a.files)
}

// WriteInto writes the archive to the given writer. Directories are written
// before their content, all entries in lexical order.
func (a *Archive) WriteInto(writer io.Writer) error {
	w := NewCPIOWriter(writer)

	if err := a.writeTo(w); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

// WriteFile writes the archive into a new file at name. The file is removed
// again on failure.
func (a *Archive) WriteFile(name string) error {
	file, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}

	err = a.WriteInto(file)
	if closeErr := file.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close archive file: %w", closeErr))
	}

	if err != nil {
		_ = os.Remove(name)
		return err
	}

	return nil
}

func (a *Archive) writeTo(w *CPIOWriter) error {
	dirs := make(map[string]bool)

	for _, guestPath := range slices.Sorted(maps.Keys(a.files)) {
		for _, dir := range parents(guestPath) {
			if dirs[dir] {
				continue
			}

			if err := w.WriteDirectory(archivePath(dir)); err != nil {
				return err
			}

			dirs[dir] = true
		}

		if err := a.writeRegular(w, guestPath); err != nil {
			return err
		}
	}

	return nil
}

func (a *Archive) writeRegular(w *CPIOWriter, guestPath string) error {
	// Cut leading / since fs.FS considers it invalid.
	hostPath := strings.TrimPrefix(filepath.ToSlash(a.files[guestPath]), "/")

	source, err := a.source.Open(hostPath)
	if err != nil {
		return fmt.Errorf("open source for %s: %w", guestPath, err)
	}
	defer source.Close()

	return w.WriteRegular(archivePath(guestPath), source, fileMode)
}

// parents returns the parent directories of the path, outermost first.
func parents(p string) []string {
	var dirs []string

	for dir := path.Dir(p); dir != "/"; dir = path.Dir(dir) {
		dirs = append(dirs, dir)
	}

	slices.Reverse(dirs)

	return dirs
}

// archivePath returns the path as stored in the archive, relative to the
// archive root.
func archivePath(p string) string {
	return strings.TrimPrefix(p, "/")
}
