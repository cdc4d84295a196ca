// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipindex

import (
	"encoding/binary"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// parseExtra splits a Central Directory or local header extra field
// into its (tag -> payload) entries.
func parseExtra(x []byte) map[uint16][]byte {
	ret := make(map[uint16][]byte)
	for len(x) >= 4 {
		tag := binary.LittleEndian.Uint16(x)
		size := int(binary.LittleEndian.Uint16(x[2:]))
		if len(x) < 4+size {
			break
		}
		ret[tag] = x[4:][:size]
		x = x[4+size:]
	}
	return ret
}

const zip64ExtraTag = 0x0001

// applyZIP64 reads 64-bit upgrades from the ZIP64 extra field in the
// order the format demands: uncompressed, compressed, local header
// offset, disk start — each only present when its 32-bit slot held the
// 0xFFFFFFFF sentinel.
func applyZIP64(extra map[uint16][]byte, uncompressed, compressed, localOffset *uint64) {
	field, ok := extra[zip64ExtraTag]
	if !ok {
		return
	}
	take := func(slot *uint64, sentinel bool) {
		if sentinel && len(field) >= 8 {
			*slot = binary.LittleEndian.Uint64(field)
			field = field[8:]
		}
	}
	take(uncompressed, *uncompressed == 0xffffffff)
	take(compressed, *compressed == 0xffffffff)
	take(localOffset, *localOffset == 0xffffffff)
	// A fourth 32-bit field (disk start number) may follow; this archive
	// format never supports multiple disks, so it is ignored.
}

// msDosTimeToTime converts an MS-DOS date and time into a time.Time.
// Resolution is 2s.
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	return time.Date(
		int(dosDate>>9)+1980,
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f)*2,
		0,
		time.UTC,
	)
}

// timeFromExtraField inspects NTFS (0x000a), Info-Zip UNIX (0x5855 or
// tag 13), and extended timestamp (0x5455) extra fields for a more
// precise modification time than the DOS-resolution fallback.
func timeFromExtraField(tag uint16, field []byte) time.Time {
	switch tag {
	case 0x000a: // NTFS Extra Field
		if len(field) < 4 {
			return time.Time{}
		}
		subfields := parseExtra(field[4:])
		if times, ok := subfields[1]; ok && len(times) >= 8 {
			const ticksPerSecond = 1e7
			ts := int64(binary.LittleEndian.Uint64(times))
			secs := ts / ticksPerSecond
			nsecs := (1e9 / ticksPerSecond) * (ts % ticksPerSecond)
			epoch := time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)
			return time.Unix(epoch.Unix()+secs, nsecs)
		}
	case 13, 0x5855: // Unix Extra Field, Info-Zip UNIX
		if len(field) < 8 {
			return time.Time{}
		}
		return time.Unix(int64(binary.LittleEndian.Uint32(field[4:])), 0)
	case 0x5455: // extended timestamp
		if len(field) < 5 || field[0]&1 == 0 {
			return time.Time{}
		}
		return time.Unix(int64(binary.LittleEndian.Uint32(field[1:])), 0)
	}
	return time.Time{}
}

// decodeName decodes a Central Directory entry's name: UTF-8 when
// general-purpose flag bit 11 is set, otherwise
// CP-437, the IBM PC code page that the original ZIP format assumed.
func decodeName(raw []byte, gpFlags uint16) string {
	if gpFlags&(1<<11) != 0 {
		return string(raw)
	}
	decoded, err := charmap.CodePage437.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}
