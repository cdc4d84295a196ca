// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package clifilter turns the CLI's include/exclude glob patterns into
// an extractor.Selection predicate. The core extraction engine never
// parses glob syntax itself; this is the one concrete implementation
// of that capability, built for the command-line frontend.
package clifilter

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/elliotnunn/rangezip/internal/extractor"
	"github.com/elliotnunn/rangezip/internal/zipindex"
)

// New builds a Selection from include and exclude glob pattern lists.
// An empty include list matches every name. Exclude always wins over
// include when both match.
func New(include, exclude []string) extractor.Selection {
	return func(entry *zipindex.IndexEntry) bool {
		name := entry.FileName

		for _, pat := range exclude {
			if doublestar.MatchUnvalidated(pat, name) {
				return false
			}
		}

		if len(include) == 0 {
			return true
		}
		for _, pat := range include {
			if doublestar.MatchUnvalidated(pat, name) {
				return true
			}
		}
		return false
	}
}
