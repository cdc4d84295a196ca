// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package decompress turns an entry's compressed payload (a
// bytesource.Source windowed to exactly that entry's bytes) into a
// verified stream of decompressed data: STORED passes
// through untouched, DEFLATE is inflated with klauspost/compress/flate,
// and anything else is a fatal per-entry error. The returned reader
// checks CRC-32 and length against the Central Directory's declared
// values as the last bytes are read.
package decompress

import (
	"bufio"
	"context"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/elliotnunn/rangezip/internal/bytesource"
	"github.com/elliotnunn/rangezip/internal/ziperr"
)

const (
	MethodStored  uint16 = 0
	MethodDeflate uint16 = 8

	// chunkSize bounds how much of a compressed payload is buffered ahead
	// of the inflater at once, so memory stays O(chunk) regardless of
	// entry size.
	chunkSize = 256 * 1024
)

// NewReader returns a ReadCloser over payload's decompressed bytes.
// entryName is used only to attribute UnsupportedMethod, CRC32Mismatch
// and SizeMismatch errors to the offending entry.
func NewReader(ctx context.Context, payload bytesource.Source, method uint16, entryName string, uncompressedSize int64, expectedCRC32 uint32) (io.ReadCloser, error) {
	seq := bytesource.NewSequentialReader(ctx, payload)

	var raw io.Reader
	var closeRaw func() error

	switch method {
	case MethodStored:
		raw = seq
		closeRaw = func() error { return nil }
	case MethodDeflate:
		fr := flate.NewReader(bufio.NewReaderSize(seq, chunkSize))
		raw = fr
		closeRaw = fr.Close
	default:
		return nil, ziperr.NewEntry(ziperr.UnsupportedMethod, entryName, fmt.Errorf("compression method %d", method))
	}

	return &checksumReader{
		entryName: entryName,
		r:         raw,
		closeRaw:  closeRaw,
		remain:    uncompressedSize,
		want:      expectedCRC32,
		hash:      crc32.NewIEEE(),
	}, nil
}

// checksumReader verifies length and CRC-32 as the stream is read to
// completion. A caller that abandons the stream early (e.g. list-only
// or a cancelled extraction) never triggers a spurious mismatch, since
// the check only fires once remain reaches zero.
type checksumReader struct {
	entryName string
	r         io.Reader
	closeRaw  func() error
	remain    int64
	want      uint32
	hash      hash.Hash32
	failed    *ziperr.Error
}

func (c *checksumReader) Read(p []byte) (int, error) {
	if c.failed != nil {
		return 0, c.failed
	}

	// remain is already zero for a zero-length entry on the very
	// first call, with no prior Read to have reached the check below
	// — verify here too, or a corrupt declared CRC on an empty entry
	// would pass silently.
	if c.remain == 0 {
		return c.finish(0)
	}

	if int64(len(p)) > c.remain {
		p = p[:c.remain]
	}

	n, err := c.r.Read(p)
	c.hash.Write(p[:n])
	c.remain -= int64(n)

	if err == io.EOF && c.remain != 0 {
		c.failed = ziperr.NewEntry(ziperr.SizeMismatch, c.entryName, fmt.Errorf("stream ended %d bytes short", c.remain))
		return n, c.failed
	}
	if err != nil && err != io.EOF {
		return n, err
	}

	if c.remain == 0 {
		return c.finish(n)
	}
	return n, nil
}

func (c *checksumReader) finish(n int) (int, error) {
	if c.hash.Sum32() != c.want {
		c.failed = ziperr.NewEntry(ziperr.CRC32Mismatch, c.entryName, fmt.Errorf("got %08x, want %08x", c.hash.Sum32(), c.want))
		return n, c.failed
	}
	return n, io.EOF
}

func (c *checksumReader) Close() error { return c.closeRaw() }
