// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import (
	"path"
	"strings"
)

// FileInfo is an immutable metadata record for a remote or local entry. It is
// a value type: copyable, no hidden references. Two flavours are
// distinguished by Local: remote entries use POSIX path algebra (always
// forward slash, leading "/"); local entries use the host-native separator.
type FileInfo struct {
	IsDir   bool
	Size    int64
	MTimeMS int64 // ms since epoch
	AbsPath string
	Local   bool
}

// NewRemoteFileInfo normalises abspath at construction so every FileInfo in
// the package carries a clean, leading-slash absolute path.
func NewRemoteFileInfo(isDir bool, size int64, mtimeMS int64, abspath string) FileInfo {
	return FileInfo{
		IsDir:   isDir,
		Size:    size,
		MTimeMS: mtimeMS,
		AbsPath: normalizeRemotePath(abspath),
	}
}

// NewLocalFileInfo converts a nanosecond mtime (as returned by os.FileInfo)
// to the millisecond convention used throughout this package.
func NewLocalFileInfo(isDir bool, size int64, mtimeNS int64, abspath string) FileInfo {
	return FileInfo{
		IsDir:   isDir,
		Size:    size,
		MTimeMS: mtimeNS / 1e6,
		AbsPath: abspath,
		Local:   true,
	}
}

func normalizeRemotePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = path.Clean(p)
	if p == "." {
		p = "/"
	}
	return p
}

// Basename returns the final path component.
func (fi FileInfo) Basename() string {
	if fi.Local {
		return localBase(fi.AbsPath)
	}
	return path.Base(fi.AbsPath)
}

// Type returns "dir" or "file".
func (fi FileInfo) Type() string {
	if fi.IsDir {
		return "dir"
	}
	return "file"
}

// Relpath returns the entry path relative to base. If requested was
// absolute, the absolute path is returned unchanged. Exact equality with
// base yields ".".
func (fi FileInfo) Relpath(base, requested string) string {
	if isAbs(requested, fi.Local) {
		return fi.AbsPath
	}
	if fi.AbsPath == base {
		return "."
	}
	sep := "/"
	if fi.Local {
		sep = localSep
	}
	b := strings.TrimSuffix(base, sep)
	if strings.HasPrefix(fi.AbsPath, b+sep) {
		return strings.TrimPrefix(fi.AbsPath, b+sep)
	}
	return fi.AbsPath
}

// relOf computes path relative to root using the separator appropriate to
// local. Used internally by Walker to compute relpaths for predicate
// evaluation and external-filter candidate maps.
func relOf(root, abspath string, local bool) string {
	if abspath == root {
		return "."
	}
	sep := "/"
	if local {
		sep = localSep
	}
	r := strings.TrimSuffix(root, sep)
	if strings.HasPrefix(abspath, r+sep) {
		return strings.TrimPrefix(abspath, r+sep)
	}
	return abspath
}

func isAbs(p string, local bool) bool {
	if local {
		return localIsAbs(p)
	}
	return strings.HasPrefix(p, "/")
}
