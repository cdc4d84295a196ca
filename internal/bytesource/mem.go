// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytesource

import (
	"context"
	"io"

	"github.com/elliotnunn/rangezip/internal/ziperr"
)

// Mem is a Source backed by an in-memory byte slice. It exists
// primarily to exercise the rest of the engine in tests without a
// filesystem or network round trip, but is equally usable by a caller
// that has already buffered a small archive (e.g. one piped over
// stdin).
type Mem struct {
	data []byte
}

// NewMem wraps data as a Source. data is not copied and must not be
// mutated afterward.
func NewMem(data []byte) *Mem { return &Mem{data: data} }

func (m *Mem) Len() int64 { return int64(len(m.data)) }

func (m *Mem) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if off < 0 || off >= int64(len(m.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, ziperr.New(ziperr.Truncated, io.ErrUnexpectedEOF)
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, ziperr.New(ziperr.Truncated, io.ErrUnexpectedEOF)
	}
	return n, nil
}
