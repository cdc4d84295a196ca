// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package bytesource

import "os"

// pread falls back to os.File.ReadAt on non-Unix platforms (Windows),
// which the Go runtime documents as safe for concurrent use since it
// is implemented with ReadFile/OVERLAPPED rather than a shared cursor.
func pread(f *os.File, p []byte, off int64) (int, error) {
	return f.ReadAt(p, off)
}
