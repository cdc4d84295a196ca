// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package extractor orchestrates the EOCD/Central Directory parse once
// per archive, then the local header read and decompression per
// selected entry, writing each entry's decompressed bytes to a sink
// supplied by the caller. It resolves destination paths and runs
// entries concurrently; overwrite decisions are made by the caller's
// SinkFactory.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/elliotnunn/rangezip/internal/bytesource"
	"github.com/elliotnunn/rangezip/internal/decompress"
	"github.com/elliotnunn/rangezip/internal/headercache"
	"github.com/elliotnunn/rangezip/internal/localheader"
	"github.com/elliotnunn/rangezip/internal/ziperr"
	"github.com/elliotnunn/rangezip/internal/zipindex"
)

// Overwrite selects what happens when a destination path already
// exists.
type Overwrite int

const (
	// OverwriteNever skips an entry whose destination already exists.
	OverwriteNever Overwrite = iota
	// OverwriteAlways replaces an existing destination unconditionally.
	OverwriteAlways
	// OverwritePrompt defers the decision to Options.Prompt per entry.
	OverwritePrompt
)

// Selection decides whether an entry should be extracted. The core
// never parses glob syntax itself; a Selection is handed in as a
// capability.
type Selection func(entry *zipindex.IndexEntry) bool

// All selects every entry.
func All(*zipindex.IndexEntry) bool { return true }

// Options configures an Extract call.
type Options struct {
	// Overwrite and Prompt carry the caller's overwrite policy. Extract
	// does not act on them itself; the SinkFactory applies the policy
	// and skips an entry by returning (nil, nil).
	Overwrite Overwrite
	// Prompt is the callback for OverwritePrompt, asked once per
	// colliding path. A true return proceeds with overwriting.
	Prompt func(destPath string) bool
	// JunkPaths strips directory components from each entry's name
	// before joining it to DestinationDir.
	JunkPaths bool
	// DestinationDir is the root all extracted paths are joined
	// against and validated to stay beneath.
	DestinationDir string
	// Parallelism bounds concurrent entry extraction. 0 selects 1.
	Parallelism int
	// Symlink creates a filesystem symlink at destPath pointing at
	// target, for entries whose Unix mode bits mark them as a symlink.
	// If nil, symlink entries fall back to being written as a regular
	// file containing the target text, the same as any other sink.
	Symlink func(entry *zipindex.IndexEntry, destPath, target string) error
}

// SinkFactory opens a destination for entry, given its already
// path-safety-checked destination path. Returning (nil, nil)
// skips the entry without error (e.g. OverwriteNever finding an
// existing file).
type SinkFactory func(entry *zipindex.IndexEntry, destPath string) (io.WriteCloser, error)

// Aborter lets a sink discard whatever it has written so far instead
// of finalizing it. A sink that only finalizes on Close (applying a
// mode/mtime, or renaming a temp file into place) should implement
// this so extractOne can tell the difference between "done" and
// "failed partway through" instead of calling Close either way.
type Aborter interface {
	Abort() error
}

// abortSink discards a sink's partial output on a post-open failure.
// A plain io.WriteCloser has no way to distinguish a finished write
// from an abandoned one, so Close is the best it can do; a sink
// backed by a real file should implement Aborter to delete it instead.
func abortSink(sink io.WriteCloser) {
	if a, ok := sink.(Aborter); ok {
		a.Abort()
		return
	}
	sink.Close()
}

// Result reports the outcome of extracting a single entry. Err is nil
// on success or skip.
type Result struct {
	Entry   *zipindex.IndexEntry
	Skipped bool
	Err     error
}

// Extractor orchestrates list and extract against one archive.
type Extractor struct {
	src     bytesource.Source
	cache   *headercache.Cache
	once    sync.Once
	index   *zipindex.FileIndex
	indexMu sync.Mutex
	buildEr error
}

// New builds an Extractor over src. The Central Directory is not read
// until the first List or Extract call.
func New(src bytesource.Source) *Extractor {
	return &Extractor{src: src, cache: headercache.New(0)}
}

// Source returns the byte source the Extractor was built over, so a
// caller can size its own concurrency to whether reads are local or
// network-bound.
func (x *Extractor) Source() bytesource.Source { return x.src }

func (x *Extractor) ensureIndex(ctx context.Context) (*zipindex.FileIndex, error) {
	x.once.Do(func() {
		x.index, x.buildEr = zipindex.Build(ctx, x.src)
	})
	return x.index, x.buildEr
}

// List returns every entry in Central Directory order.
func (x *Extractor) List(ctx context.Context) ([]zipindex.IndexEntry, error) {
	idx, err := x.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Entries, nil
}

// Extract streams every entry satisfying sel through local header
// resolution and decompression into sinks built by makeSink.
// Directory-phase errors (a malformed archive) abort immediately;
// per-entry errors are reported in the returned Result slice.
func (x *Extractor) Extract(ctx context.Context, sel Selection, opts Options, makeSink SinkFactory) ([]Result, error) {
	idx, err := x.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}

	var selected []*zipindex.IndexEntry
	for i := range idx.Entries {
		e := &idx.Entries[i]
		if sel(e) {
			selected = append(selected, e)
		}
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}

	results := make([]Result, len(selected))
	loc := localheader.New(x.src, x.cache)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, e := range selected {
		i, e := i, e
		g.Go(func() error {
			results[i] = x.extractOne(gctx, loc, e, opts, makeSink)
			return nil
		})
	}
	// Errors from individual entries never abort the group; g.Go above
	// always returns nil, so Wait returns nil and a cancelled ctx shows
	// up only as per-entry errors in results.
	if err := g.Wait(); err != nil {
		return results, err
	}

	return results, nil
}

func (x *Extractor) extractOne(ctx context.Context, loc *localheader.Locator, e *zipindex.IndexEntry, opts Options, makeSink SinkFactory) Result {
	destPath, err := resolveDestPath(opts.DestinationDir, e.FileName, opts.JunkPaths)
	if err != nil {
		return Result{Entry: e, Err: err}
	}

	if e.IsDirectory {
		return Result{Entry: e, Err: makeSinkDirErr(makeSink, e, destPath)}
	}

	if e.Encrypted() {
		return Result{Entry: e, Err: ziperr.NewEntry(ziperr.EncryptedUnsupported, e.FileName, errors.New("entry is encrypted"))}
	}

	if opts.Symlink != nil && FileMode(e.MadeByHost, e.ExternalAttributes, false)&fs.ModeSymlink != 0 {
		return x.extractSymlink(ctx, loc, e, opts, destPath)
	}

	sink, err := makeSink(e, destPath)
	if err != nil {
		return Result{Entry: e, Err: err}
	}
	if sink == nil {
		return Result{Entry: e, Skipped: true}
	}

	payload, err := loc.Payload(ctx, int64(e.LocalHeaderOffset), int64(e.CompressedSize))
	if err != nil {
		abortSink(sink)
		return Result{Entry: e, Err: err}
	}

	r, err := decompress.NewReader(ctx, payload, e.CompressionMethod, e.FileName, int64(e.UncompressedSize), e.CRC32Expected)
	if err != nil {
		abortSink(sink)
		return Result{Entry: e, Err: err}
	}
	defer r.Close()

	if _, err := io.Copy(sink, r); err != nil {
		abortSink(sink)
		return Result{Entry: e, Err: fmt.Errorf("extract %s: %w", e.FileName, err)}
	}

	if err := sink.Close(); err != nil {
		return Result{Entry: e, Err: fmt.Errorf("close %s: %w", e.FileName, err)}
	}

	return Result{Entry: e}
}

// extractSymlink reads an entry's (small) decompressed payload as a
// link target, rejects it with UnsafePath if it would resolve outside
// destinationDir, and delegates the actual symlink creation to
// opts.Symlink.
func (x *Extractor) extractSymlink(ctx context.Context, loc *localheader.Locator, e *zipindex.IndexEntry, opts Options, destPath string) Result {
	payload, err := loc.Payload(ctx, int64(e.LocalHeaderOffset), int64(e.CompressedSize))
	if err != nil {
		return Result{Entry: e, Err: err}
	}

	r, err := decompress.NewReader(ctx, payload, e.CompressionMethod, e.FileName, int64(e.UncompressedSize), e.CRC32Expected)
	if err != nil {
		return Result{Entry: e, Err: err}
	}
	defer r.Close()

	targetBytes, err := io.ReadAll(r)
	if err != nil {
		return Result{Entry: e, Err: fmt.Errorf("read symlink target for %s: %w", e.FileName, err)}
	}
	target := string(targetBytes)

	if path.IsAbs(target) {
		return Result{Entry: e, Err: ziperr.NewEntry(ziperr.UnsafePath, e.FileName, fmt.Errorf("symlink target %q is absolute", target))}
	}
	// With junk paths the link lands directly in DestinationDir, so its
	// target is resolved from there rather than from the entry's own
	// directory.
	linkDir := path.Dir(e.FileName)
	if opts.JunkPaths {
		linkDir = "."
	}
	resolved := path.Join(linkDir, target)
	if _, err := resolveDestPath(opts.DestinationDir, resolved, false); err != nil {
		return Result{Entry: e, Err: err}
	}

	if err := opts.Symlink(e, destPath, target); err != nil {
		return Result{Entry: e, Err: fmt.Errorf("symlink %s: %w", e.FileName, err)}
	}
	return Result{Entry: e}
}

// makeSinkDirErr lets the sink factory observe directory entries (to
// create an empty directory) without the extractor assuming a
// filesystem; a non-filesystem sink (e.g. a pipe) can simply ignore
// directory entries by returning (nil, nil).
func makeSinkDirErr(makeSink SinkFactory, e *zipindex.IndexEntry, destPath string) error {
	w, err := makeSink(e, destPath)
	if err != nil {
		return err
	}
	if w != nil {
		return w.Close()
	}
	return nil
}
