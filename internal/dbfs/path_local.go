// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import "path/filepath"

// localSep is the host-native path separator, used by FileInfo.Relpath when
// operating on local (non-remote) entries.
var localSep = string(filepath.Separator)

func localBase(p string) string {
	return filepath.Base(p)
}

func localIsAbs(p string) bool {
	return filepath.IsAbs(p)
}
