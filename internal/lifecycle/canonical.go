// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package lifecycle

import (
	"path/filepath"
	"runtime"
	"strings"
)

// caseInsensitiveFS reports whether path keys must be case-folded on this
// platform.
var caseInsensitiveFS = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// canonicalPath normalizes a path into the stable registry key: absolute,
// symlinks resolved when possible, case-folded where the filesystem demands
// it. A deleted file cannot resolve symlinks; the absolute path then serves
// as the key, which matches how it was stored for non-symlinked artifacts.
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	if caseInsensitiveFS {
		abs = strings.ToLower(abs)
	}
	return abs
}
