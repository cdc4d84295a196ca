// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decompress

import (
	"bytes"
	"context"
	"hash/crc32"
	"io"
	"testing"

	"github.com/klauspost/compress/flate"

	"github.com/elliotnunn/rangezip/internal/bytesource"
	"github.com/elliotnunn/rangezip/internal/ziperr"
)

func TestStoredRoundTrip(t *testing.T) {
	want := []byte("the quick brown fox jumps over the lazy dog")
	src := bytesource.NewMem(want)

	r, err := NewReader(context.Background(), src, MethodStored, "fox.txt", int64(len(want)), crc32.ChecksumIEEE(want))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDeflateRoundTrip(t *testing.T) {
	want := bytes.Repeat([]byte("compress me please "), 5000)

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(want); err != nil {
		t.Fatal(err)
	}
	if err := fw.Close(); err != nil {
		t.Fatal(err)
	}

	src := bytesource.NewMem(compressed.Bytes())
	r, err := NewReader(context.Background(), src, MethodDeflate, "big.bin", int64(len(want)), crc32.ChecksumIEEE(want))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("round-tripped %d bytes, want %d bytes, equal=false", len(got), len(want))
	}
}

func TestCRCMismatch(t *testing.T) {
	data := []byte("hello world")
	src := bytesource.NewMem(data)

	r, err := NewReader(context.Background(), src, MethodStored, "bad.txt", int64(len(data)), 0xdeadbeef)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	_, err = io.ReadAll(r)
	if !ziperr.Is(err, ziperr.CRC32Mismatch) {
		t.Fatalf("expected CRC32Mismatch, got %v", err)
	}
}

func TestSizeMismatch(t *testing.T) {
	data := []byte("short")
	src := bytesource.NewMem(data)

	r, err := NewReader(context.Background(), src, MethodStored, "short.txt", 100, crc32.ChecksumIEEE(data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	_, err = io.ReadAll(r)
	if !ziperr.Is(err, ziperr.SizeMismatch) {
		t.Fatalf("expected SizeMismatch, got %v", err)
	}
}

func TestZeroLengthCRCMismatch(t *testing.T) {
	src := bytesource.NewMem(nil)

	r, err := NewReader(context.Background(), src, MethodStored, "empty.txt", 0, 0xdeadbeef)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	_, err = io.ReadAll(r)
	if !ziperr.Is(err, ziperr.CRC32Mismatch) {
		t.Fatalf("expected CRC32Mismatch for a zero-length entry with a wrong declared CRC, got %v", err)
	}
}

func TestZeroLengthCRCMatch(t *testing.T) {
	src := bytesource.NewMem(nil)

	r, err := NewReader(context.Background(), src, MethodStored, "empty.txt", 0, crc32.ChecksumIEEE(nil))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no bytes, got %d", len(got))
	}
}

func TestUnsupportedMethod(t *testing.T) {
	src := bytesource.NewMem([]byte("irrelevant"))
	_, err := NewReader(context.Background(), src, 12, "x.bz2", 10, 0)
	if !ziperr.Is(err, ziperr.UnsupportedMethod) {
		t.Fatalf("expected UnsupportedMethod, got %v", err)
	}
}
