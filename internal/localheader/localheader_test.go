// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package localheader

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/elliotnunn/rangezip/internal/bytesource"
)

func buildFixture(t *testing.T) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.CreateHeader(&zip.FileHeader{Name: "hello.txt", Method: zip.Store})
	if err != nil {
		t.Fatal(err)
	}
	body := "hello local header"
	if _, err := fw.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), body
}

func TestPayloadOffsetAndContent(t *testing.T) {
	data, body := buildFixture(t)
	src := bytesource.NewMem(data)

	loc := New(src, nil)
	section, err := loc.Payload(context.Background(), 0, int64(len(body)))
	if err != nil {
		t.Fatal(err)
	}

	got := make([]byte, len(body))
	if _, err := section.ReadAt(context.Background(), got, 0); err != nil {
		t.Fatal(err)
	}
	if string(got) != body {
		t.Errorf("got %q, want %q", got, body)
	}
}

func TestPayloadOffsetIsCached(t *testing.T) {
	data, body := buildFixture(t)
	src := bytesource.NewMem(data)

	loc := New(src, nil)
	off1, err := loc.PayloadOffset(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	// Break the local header signature in the shared buffer: the second
	// lookup only succeeds if it is answered from the cache.
	copy(data[0:4], "XXXX")
	off2, err := loc.PayloadOffset(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if off1 != off2 {
		t.Errorf("offsets differ across calls: %d vs %d", off1, off2)
	}
	_ = body
}

func TestMalformedLocalHeader(t *testing.T) {
	src := bytesource.NewMem(bytes.Repeat([]byte{0}, 64))
	loc := New(src, nil)
	_, err := loc.PayloadOffset(context.Background(), 0)
	if err == nil {
		t.Fatal("expected an error for a missing local file header signature")
	}
}
