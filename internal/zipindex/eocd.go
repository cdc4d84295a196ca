// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/elliotnunn/rangezip/internal/bytesource"
	"github.com/elliotnunn/rangezip/internal/ziperr"
)

const (
	sigEOCD       = "PK\x05\x06"
	sigZIP64Loc   = "PK\x06\x07"
	sigZIP64EOCD  = "PK\x06\x06"
	sigCentralDir = "PK\x01\x02"
	sigLocalFile  = "PK\x03\x04"

	eocdFixedSize = 22
	maxComment    = 65535
)

// eocdInfo is the normalized result of locating the (possibly ZIP64)
// End of Central Directory record.
type eocdInfo struct {
	totalEntries   uint64
	centralSize    int64
	centralOffset  int64
	eocdOffset     int64
	baseCorrection int64 // accounts for archives preceded by non-zip data
}

// locateEOCD reads the tail of the archive, scans backward for the
// EOCD signature consistent with a comment length, then upgrades to
// ZIP64 fields if any 32-bit slot is the sentinel.
func locateEOCD(ctx context.Context, src bytesource.Source) (eocdInfo, error) {
	size := src.Len()
	if size < eocdFixedSize {
		return eocdInfo{}, ziperr.New(ziperr.NotAZipArchive, fmt.Errorf("archive too small (%d bytes)", size))
	}

	tailLen := min64(size, eocdFixedSize+maxComment)
	tail := make([]byte, tailLen)
	if _, err := src.ReadAt(ctx, tail, size-tailLen); err != nil {
		return eocdInfo{}, fmt.Errorf("read EOCD tail: %w", err)
	}

	// Scan backward for the latest signature occurrence whose declared
	// comment length is consistent with the remaining tail.
	eocdRelOffset := -1
	for i := len(tail) - eocdFixedSize; i >= 0; i-- {
		if string(tail[i:i+4]) != sigEOCD {
			continue
		}
		commentLen := int(binary.LittleEndian.Uint16(tail[i+20:]))
		// A genuine EOCD's declared comment must reach exactly to the end
		// of our read window, which always ends at the archive's last byte.
		if i+eocdFixedSize+commentLen == len(tail) {
			eocdRelOffset = i
			break
		}
	}
	if eocdRelOffset < 0 {
		return eocdInfo{}, ziperr.New(ziperr.NotAZipArchive, fmt.Errorf("no EOCD signature found"))
	}

	rec := tail[eocdRelOffset:]
	eocdOffset := size - tailLen + int64(eocdRelOffset)

	totalEntries := uint64(binary.LittleEndian.Uint16(rec[10:]))
	centralSize := int64(binary.LittleEndian.Uint32(rec[12:]))
	centralOffset := int64(binary.LittleEndian.Uint32(rec[16:]))

	// dirEnd is where the central directory ends: at the EOCD, or at the
	// ZIP64 EOCD record when one sits between them.
	dirEnd := eocdOffset
	needsZIP64 := totalEntries == 0xffff || uint32(centralSize) == 0xffffffff || uint32(centralOffset) == 0xffffffff
	if needsZIP64 {
		locOffset := eocdOffset - 20
		if locOffset < 0 {
			return eocdInfo{}, ziperr.New(ziperr.MalformedEOCD, fmt.Errorf("not enough room for a ZIP64 EOCD locator"))
		}
		loc := make([]byte, 20)
		if _, err := src.ReadAt(ctx, loc, locOffset); err != nil {
			return eocdInfo{}, fmt.Errorf("read ZIP64 EOCD locator: %w", err)
		}
		if string(loc[:4]) != sigZIP64Loc {
			return eocdInfo{}, ziperr.New(ziperr.MalformedEOCD, fmt.Errorf("missing ZIP64 EOCD locator signature"))
		}
		zip64Disk := binary.LittleEndian.Uint32(loc[4:])
		zip64EOCDOffset := int64(binary.LittleEndian.Uint64(loc[8:]))
		totalDisks := binary.LittleEndian.Uint32(loc[16:])
		if zip64Disk != 0 || totalDisks != 1 {
			return eocdInfo{}, ziperr.New(ziperr.MalformedEOCD, fmt.Errorf("spanned archives are not supported"))
		}

		rec64 := make([]byte, 56)
		if _, err := src.ReadAt(ctx, rec64, zip64EOCDOffset); err != nil {
			return eocdInfo{}, fmt.Errorf("read ZIP64 EOCD record: %w", err)
		}
		if string(rec64[:4]) != sigZIP64EOCD {
			return eocdInfo{}, ziperr.New(ziperr.MalformedEOCD, fmt.Errorf("missing ZIP64 EOCD record signature"))
		}
		totalEntries = binary.LittleEndian.Uint64(rec64[32:])
		centralSize = int64(binary.LittleEndian.Uint64(rec64[40:]))
		centralOffset = int64(binary.LittleEndian.Uint64(rec64[48:]))
		dirEnd = zip64EOCDOffset
	}

	if centralOffset > eocdOffset || centralOffset < 0 {
		return eocdInfo{}, ziperr.New(ziperr.MalformedEOCD, fmt.Errorf("central directory offset %d inconsistent with EOCD at %d", centralOffset, eocdOffset))
	}

	// Archives with leading junk (e.g. a self-extractor stub) shift every
	// absolute offset by a constant; derive and apply that correction by
	// trusting where the directory ends over its stated offset.
	baseCorrection := dirEnd - centralSize - centralOffset

	return eocdInfo{
		totalEntries:   totalEntries,
		centralSize:    centralSize,
		centralOffset:  centralOffset,
		eocdOffset:     eocdOffset,
		baseCorrection: baseCorrection,
	}, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
