// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytesource

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/elliotnunn/rangezip/internal/ziperr"
)

// Local is a Source backed by a single local file, opened once. Reads
// are positioned (pread-style) so that concurrent callers never race
// over a shared seek cursor.
type Local struct {
	f    *os.File
	size int64
}

// OpenLocal opens path and stats its size. The returned Local should be
// closed with Close once extraction is complete.
func OpenLocal(path string) (*Local, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open local archive: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat local archive: %w", err)
	}
	return &Local{f: f, size: info.Size()}, nil
}

func (l *Local) Len() int64 { return l.size }

// Close releases the underlying file handle.
func (l *Local) Close() error { return l.f.Close() }

func (l *Local) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := pread(l.f, p, off)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("read local archive: %w", err)
	}
	if n < len(p) {
		return n, ziperr.New(ziperr.Truncated, fmt.Errorf("wanted %d bytes at offset %d, got %d", len(p), off, n))
	}
	return n, nil
}
