// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package bytesource

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// pread satisfies the requested read with the positioned-read syscall
// directly, looping until len(p) is satisfied or EOF,
// ("Short reads must be looped until the requested length is satisfied
// or end-of-file is hit").
func pread(f *os.File, p []byte, off int64) (int, error) {
	var total int
	raw, err := f.SyscallConn()
	if err != nil {
		return io.ReadFull(io.NewSectionReader(f, off, int64(len(p))), p)
	}

	var readErr error
	for total < len(p) {
		var n int
		ctrlErr := raw.Read(func(fd uintptr) bool {
			n, readErr = unix.Pread(int(fd), p[total:], off+int64(total))
			if readErr == unix.EAGAIN {
				return false // ask the runtime to wait for readability and retry
			}
			return true
		})
		if ctrlErr != nil {
			return total, ctrlErr
		}
		if readErr != nil {
			return total, readErr
		}
		if n == 0 {
			return total, io.EOF
		}
		total += n
	}
	return total, nil
}
