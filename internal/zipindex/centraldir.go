// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/elliotnunn/rangezip/internal/bytesource"
	"github.com/elliotnunn/rangezip/internal/ziperr"
)

const centralDirFixedSize = 46

// unicodePathExtraTag is the Info-Zip Unicode Path extra field: a
// version byte, a CRC-32 of the non-unicode name, then the UTF-8 name.
const unicodePathExtraTag = 0x7075

// Build locates the EOCD and walks the Central Directory, producing a
// read-only FileIndex. It issues
// at most four range reads against src: the EOCD tail, the optional
// ZIP64 locator and ZIP64 record, and the Central Directory itself as one
// contiguous range, keeping the read count independent of entry count.
func Build(ctx context.Context, src bytesource.Source) (*FileIndex, error) {
	eocd, err := locateEOCD(ctx, src)
	if err != nil {
		return nil, err
	}

	dir := make([]byte, eocd.centralSize)
	if _, err := src.ReadAt(ctx, dir, eocd.baseCorrection+eocd.centralOffset); err != nil {
		return nil, fmt.Errorf("read central directory: %w", err)
	}

	entries := make([]IndexEntry, 0, eocd.totalEntries)
	for {
		if eocd.totalEntries != 0 && len(entries) == int(eocd.totalEntries) {
			break
		}
		if len(dir) == 0 {
			break
		}
		if len(dir) < centralDirFixedSize || string(dir[:4]) != sigCentralDir {
			return nil, ziperr.New(ziperr.MalformedCentralDirectory, fmt.Errorf("record %d: missing signature", len(entries)))
		}

		entry, consumed, err := parseCentralDirRecord(dir)
		if err != nil {
			return nil, ziperr.New(ziperr.MalformedCentralDirectory, fmt.Errorf("record %d: %w", len(entries), err))
		}
		entry.LocalHeaderOffset = uint64(eocd.baseCorrection) + entry.LocalHeaderOffset
		entries = append(entries, entry)
		dir = dir[consumed:]
	}

	if eocd.totalEntries != 0 && len(entries) != int(eocd.totalEntries) {
		return nil, ziperr.New(ziperr.MalformedCentralDirectory, fmt.Errorf("expected %d entries, parsed %d", eocd.totalEntries, len(entries)))
	}

	return newFileIndex(entries), nil
}

// parseCentralDirRecord decodes one fixed-size prelude plus its
// variable-length name/extra/comment, returning the entry and the
// number of bytes consumed from dir.
func parseCentralDirRecord(dir []byte) (IndexEntry, int, error) {
	madeByHost := dir[5]
	gpFlags := binary.LittleEndian.Uint16(dir[8:])
	method := binary.LittleEndian.Uint16(dir[10:])
	dosTime := binary.LittleEndian.Uint16(dir[12:])
	dosDate := binary.LittleEndian.Uint16(dir[14:])
	crc32 := binary.LittleEndian.Uint32(dir[16:])
	compressed := uint64(binary.LittleEndian.Uint32(dir[20:]))
	uncompressed := uint64(binary.LittleEndian.Uint32(dir[24:]))
	nameLen := int(binary.LittleEndian.Uint16(dir[28:]))
	extraLen := int(binary.LittleEndian.Uint16(dir[30:]))
	commentLen := int(binary.LittleEndian.Uint16(dir[32:]))
	externalAttrs := binary.LittleEndian.Uint32(dir[38:])
	localOffset := uint64(binary.LittleEndian.Uint32(dir[42:]))

	total := centralDirFixedSize + nameLen + extraLen + commentLen
	if len(dir) < total {
		return IndexEntry{}, 0, fmt.Errorf("truncated record (need %d bytes, have %d)", total, len(dir))
	}

	rawName := dir[centralDirFixedSize:][:nameLen]
	extraRaw := dir[centralDirFixedSize+nameLen:][:extraLen]
	extra := parseExtra(extraRaw)

	applyZIP64(extra, &uncompressed, &compressed, &localOffset)

	name := decodeName(rawName, gpFlags)
	if unicodeField, ok := extra[unicodePathExtraTag]; ok && len(unicodeField) >= 5 {
		name = string(unicodeField[5:])
	}
	name = strings.TrimPrefix(name, "/")

	mtime := msDosTimeToTime(dosDate, dosTime)
	for tag, field := range extra {
		if t := timeFromExtraField(tag, field); !t.IsZero() {
			mtime = t
		}
	}

	isDir := strings.HasSuffix(name, "/")

	entry := IndexEntry{
		FileName:           name,
		CompressionMethod:  method,
		CRC32Expected:      crc32,
		CompressedSize:     compressed,
		UncompressedSize:   uncompressed,
		LocalHeaderOffset:  localOffset,
		ExternalAttributes: externalAttrs,
		LastModifiedDOS:    uint32(dosDate)<<16 | uint32(dosTime),
		ModTime:            mtime,
		IsDirectory:        isDir,
		GPFlags:            gpFlags,
		MadeByHost:         madeByHost,
	}

	return entry, total, nil
}
