// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package extractor

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/elliotnunn/rangezip/internal/ziperr"
)

// resolveDestPath joins an entry's name onto destinationDir and
// verifies the result stays beneath it: any absolute
// path, drive letter, or `..` segment that escapes destinationDir
// yields UnsafePath. junkPaths strips every directory component
// before joining.
func resolveDestPath(destinationDir, entryName string, junkPaths bool) (string, error) {
	name := strings.TrimSuffix(entryName, "/")

	if junkPaths {
		name = path.Base(name)
	}

	if name == "" || strings.HasPrefix(name, "/") || strings.ContainsAny(name, ":\\") {
		return "", ziperr.NewEntry(ziperr.UnsafePath, entryName, fmt.Errorf("entry name escapes destination"))
	}

	// path.Clean does not resolve a ".." past the start of an unrooted
	// path, so a traversal attempt survives as a literal ".." element
	// for fs.ValidPath to catch; it would be silently absorbed if the
	// name were anchored to "/" before cleaning.
	clean := path.Clean(name)
	if !fs.ValidPath(clean) {
		return "", ziperr.NewEntry(ziperr.UnsafePath, entryName, fmt.Errorf("entry name escapes destination"))
	}

	return path.Join(destinationDir, clean), nil
}
