// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clifilter

import (
	"testing"

	"github.com/elliotnunn/rangezip/internal/zipindex"
)

func TestEmptyIncludeMatchesAll(t *testing.T) {
	sel := New(nil, nil)
	e := &zipindex.IndexEntry{FileName: "a/b/c.txt"}
	if !sel(e) {
		t.Error("expected an empty include list to match everything")
	}
}

func TestIncludeGlob(t *testing.T) {
	sel := New([]string{"**/*.txt"}, nil)
	if !sel(&zipindex.IndexEntry{FileName: "a/b/c.txt"}) {
		t.Error("expected a/b/c.txt to match **/*.txt")
	}
	if sel(&zipindex.IndexEntry{FileName: "a/b/c.bin"}) {
		t.Error("expected a/b/c.bin not to match **/*.txt")
	}
}

func TestExcludeWinsOverInclude(t *testing.T) {
	sel := New([]string{"**"}, []string{"**/*.bin"})
	if !sel(&zipindex.IndexEntry{FileName: "x.txt"}) {
		t.Error("expected x.txt to be included")
	}
	if sel(&zipindex.IndexEntry{FileName: "x.bin"}) {
		t.Error("expected x.bin to be excluded")
	}
}
