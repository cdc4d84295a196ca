// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bytesource implements the positioned, random-access byte
// source that the ZIP engine reads from: a local file backed by
// positioned pread(2) calls, or an HTTP(S) resource accessed with
// Range requests.
package bytesource

import (
	"context"
	"io"

	"github.com/elliotnunn/rangezip/internal/ziperr"
)

// Source is a read-only, random-access view over an archive. Len is
// constant for the lifetime of the Source. ReadAt must return exactly
// len(p) bytes or an error; implementations must be safe to call from
// multiple goroutines concurrently against the same Source without
// external locking.
type Source interface {
	// Len returns the total size of the archive in bytes.
	Len() int64

	// ReadAt reads exactly len(p) bytes starting at off, or returns a
	// non-nil error. A short read before satisfying len(p) is reported
	// as ziperr.Truncated.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
}

// Section is a Source restricted to [off, off+n), so that a
// consumer dealing with compressed payload bytes never has to reason
// about the rest of the archive. It is the bytesource analogue of
// io.NewSectionReader, built against the ctx-aware Source contract.
type Section struct {
	r      Source
	off, n int64
}

// NewSection carves out a read-only [off, off+n) view of r.
func NewSection(r Source, off, n int64) *Section {
	return &Section{r: r, off: off, n: n}
}

func (s *Section) Len() int64 { return s.n }

func (s *Section) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= s.n {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, ziperr.New(ziperr.Truncated, io.ErrUnexpectedEOF)
	}
	if max := s.n - off; int64(len(p)) > max {
		n, err := s.r.ReadAt(ctx, p[:max], s.off+off)
		if err == nil {
			err = ziperr.New(ziperr.Truncated, io.ErrUnexpectedEOF)
		}
		return n, err
	}
	return s.r.ReadAt(ctx, p, s.off+off)
}

// SequentialReader adapts a Source into an io.Reader that reads
// forward in chunks, so that streaming decompressors (which only ever
// read sequentially) never need to know about ReadAt or contexts.
// Feeding compressed payloads through this instead of a single ReadAt
// call is what keeps decompression memory at O(chunk) regardless of
// entry size.
type SequentialReader struct {
	ctx    context.Context
	r      Source
	pos    int64
	limit  int64
	closed bool
}

// NewSequentialReader wraps r, reading forward from offset 0 to Len().
func NewSequentialReader(ctx context.Context, r Source) *SequentialReader {
	return &SequentialReader{ctx: ctx, r: r, limit: r.Len()}
}

func (s *SequentialReader) Read(p []byte) (int, error) {
	if s.pos >= s.limit {
		return 0, io.EOF
	}
	if max := s.limit - s.pos; int64(len(p)) > max {
		p = p[:max]
	}
	n, err := s.r.ReadAt(s.ctx, p, s.pos)
	s.pos += int64(n)
	return n, err
}
