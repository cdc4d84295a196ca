// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zipindex locates the End of Central Directory record
// (handling ZIP64 where present) and walks the Central Directory to
// build a complete, read-only FileIndex, never touching payload bytes.
package zipindex

import (
	"time"

	"github.com/cespare/xxhash/v2"
)

// IndexEntry is an immutable record describing one Central Directory
// entry. Fields are sourced from the 32-bit slots unless those slots
// hold the ZIP64 sentinel 0xFFFFFFFF, in which case the 64-bit ZIP64
// extra field values are substituted.
type IndexEntry struct {
	FileName           string
	CompressionMethod  uint16
	CRC32Expected      uint32
	CompressedSize     uint64
	UncompressedSize   uint64
	LocalHeaderOffset  uint64
	ExternalAttributes uint32
	LastModifiedDOS    uint32
	ModTime            time.Time
	IsDirectory        bool
	GPFlags            uint16

	// MadeByHost is the upper byte of the Central Directory's
	// version-made-by field. The extractor needs it to know whether
	// ExternalAttributes' upper 16 bits are a Unix mode (host == 3 or 19)
	// or a DOS/NTFS/VFAT attribute byte.
	MadeByHost uint8
}

// Encrypted reports whether general-purpose flag bit 0 (encryption) is set.
func (e *IndexEntry) Encrypted() bool { return e.GPFlags&1 != 0 }

// FileIndex is an ordered sequence of IndexEntry records preserving
// Central Directory order. Built exactly once per archive and
// thereafter read-only, so it may be shared freely across concurrent
// extraction goroutines.
type FileIndex struct {
	Entries []IndexEntry

	// byHash groups entry indices by a fast hash of their name so that
	// Lookup doesn't need to hash or compare every name in the archive.
	// Collisions are resolved by comparing FileName within the bucket.
	byHash map[uint64][]int
}

func newFileIndex(entries []IndexEntry) *FileIndex {
	fi := &FileIndex{Entries: entries, byHash: make(map[uint64][]int, len(entries))}
	for i, e := range entries {
		h := xxhash.Sum64String(e.FileName)
		fi.byHash[h] = append(fi.byHash[h], i)
	}
	return fi
}

// Lookup returns the last Central Directory occurrence of name: the
// last occurrence wins when a name is looked up by exact match.
// Listing operations should iterate Entries directly instead, since
// duplicates are legal and all of them should be shown.
func (fi *FileIndex) Lookup(name string) (*IndexEntry, bool) {
	h := xxhash.Sum64String(name)
	bucket := fi.byHash[h]
	for i := len(bucket) - 1; i >= 0; i-- {
		if fi.Entries[bucket[i]].FileName == name {
			return &fi.Entries[bucket[i]], true
		}
	}
	return nil, false
}
