// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package headercache bounds the cost of re-reading a local file
// header when the same entry's payload offset is needed more than
// once in a single run (the same entry extracted again through the
// same Extractor, e.g. a retried extraction). It is never persisted and holds no state beyond the
// lifetime of the process, so it carries no cross-invocation caching
// semantics.
package headercache

import (
	"hash/maphash"

	"github.com/dgryski/go-tinylfu"
)

const (
	defaultSize    = 4096
	defaultSamples = defaultSize * 10
)

var seed = maphash.MakeSeed()

func hashOffset(off int64) uint64 {
	return maphash.Comparable(seed, off)
}

// Cache maps a local header's byte offset within an archive to the
// absolute payload offset that follows its variable-length name and
// extra fields.
type Cache struct {
	t *tinylfu.T[int64, int64]
}

// New builds a Cache bounded to n entries (0 selects a sensible default).
func New(n int) *Cache {
	if n <= 0 {
		n = defaultSize
	}
	return &Cache{t: tinylfu.New[int64, int64](n, n*10, hashOffset)}
}

// Get returns the cached payload offset for a local header at
// localHeaderOffset, if known.
func (c *Cache) Get(localHeaderOffset int64) (int64, bool) {
	return c.t.Get(localHeaderOffset)
}

// Put records the payload offset computed for a local header.
func (c *Cache) Put(localHeaderOffset, payloadOffset int64) {
	c.t.Add(localHeaderOffset, payloadOffset)
}
