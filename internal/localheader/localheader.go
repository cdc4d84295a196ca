// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package localheader resolves a Central Directory entry's payload
// offset by reading its local file header: the local
// header's own name and extra field lengths govern the skip, which can
// differ from the Central Directory's copies of those fields.
package localheader

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/elliotnunn/rangezip/internal/bytesource"
	"github.com/elliotnunn/rangezip/internal/headercache"
	"github.com/elliotnunn/rangezip/internal/ziperr"
)

const (
	localHeaderFixedSize = 30
	sigLocalFile         = "PK\x03\x04"
)

// Locator resolves payload offsets against a single archive's byte
// source, caching each local header it reads.
type Locator struct {
	src   bytesource.Source
	cache *headercache.Cache
}

// New builds a Locator. cache may be nil, in which case a private
// per-Locator cache is created.
func New(src bytesource.Source, cache *headercache.Cache) *Locator {
	if cache == nil {
		cache = headercache.New(0)
	}
	return &Locator{src: src, cache: cache}
}

// PayloadOffset returns the absolute offset of entry data immediately
// following localHeaderOffset's local file header, name, and extra
// fields.
func (l *Locator) PayloadOffset(ctx context.Context, localHeaderOffset int64) (int64, error) {
	if off, ok := l.cache.Get(localHeaderOffset); ok {
		return off, nil
	}

	buf := make([]byte, localHeaderFixedSize)
	if _, err := l.src.ReadAt(ctx, buf, localHeaderOffset); err != nil {
		return 0, fmt.Errorf("read local file header: %w", err)
	}
	if string(buf[:4]) != sigLocalFile {
		return 0, ziperr.New(ziperr.MalformedLocalHeader, fmt.Errorf("missing local file header signature at offset %d", localHeaderOffset))
	}

	nameLen := int64(binary.LittleEndian.Uint16(buf[26:]))
	extraLen := int64(binary.LittleEndian.Uint16(buf[28:]))

	payloadOffset := localHeaderOffset + localHeaderFixedSize + nameLen + extraLen
	l.cache.Put(localHeaderOffset, payloadOffset)
	return payloadOffset, nil
}

// Payload returns a Source windowed onto an entry's compressed bytes,
// resolving the local header first.
func (l *Locator) Payload(ctx context.Context, localHeaderOffset, compressedSize int64) (*bytesource.Section, error) {
	payloadOffset, err := l.PayloadOffset(ctx, localHeaderOffset)
	if err != nil {
		return nil, err
	}
	return bytesource.NewSection(l.src, payloadOffset, compressedSize), nil
}
