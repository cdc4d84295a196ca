// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytesource

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestLocalReadAt(t *testing.T) {
	want := []byte("the quick brown fox jumps over the lazy dog")
	path := filepath.Join(t.TempDir(), "archive.bin")
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := OpenLocal(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if src.Len() != int64(len(want)) {
		t.Fatalf("Len() = %d, want %d", src.Len(), len(want))
	}

	ctx := context.Background()
	buf := make([]byte, 5)
	if _, err := src.ReadAt(ctx, buf, 4); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, want[4:9]) {
		t.Fatalf("got %q, want %q", buf, want[4:9])
	}
}

func TestLocalReadAtTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.bin")
	if err := os.WriteFile(path, []byte("short"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := OpenLocal(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	buf := make([]byte, 100)
	_, err = src.ReadAt(context.Background(), buf, 0)
	if err == nil {
		t.Fatal("expected a truncation error")
	}
}

func TestLocalReadAtConcurrent(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 10000)
	path := filepath.Join(t.TempDir(), "archive.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := OpenLocal(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	var wg sync.WaitGroup
	ctx := context.Background()
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(off int64) {
			defer wg.Done()
			buf := make([]byte, 10)
			if _, err := src.ReadAt(ctx, buf, off); err != nil {
				t.Error(err)
				return
			}
			if !bytes.Equal(buf, data[off:off+10]) {
				t.Errorf("at %d: got %q want %q", off, buf, data[off:off+10])
			}
		}(int64(g * 100))
	}
	wg.Wait()
}
