// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/elliotnunn/rangezip/internal/bytesource"
	"github.com/elliotnunn/rangezip/internal/clifilter"
	"github.com/elliotnunn/rangezip/internal/extractor"
	"github.com/elliotnunn/rangezip/internal/zipindex"
)

const (
	exitOK             = 0
	exitGeneric        = 1
	exitArchiveMissing = 9
	exitNoMatch        = 11
	exitIOFailure      = 50
)

type cliOptions struct {
	ListShort     bool     `short:"l" long:"list" description:"list entries and exit"`
	ListVerbose   bool     `short:"v" long:"verbose" description:"list entries with size, method, and mtime, then exit"`
	Pipe          bool     `short:"p" long:"pipe" description:"stream the first matching entry to stdout instead of extracting"`
	Destination   string   `short:"d" long:"destination" description:"directory to extract into" default:"."`
	Exclude       []string `short:"x" long:"exclude" description:"glob pattern to exclude (may be repeated)"`
	NeverClobber  bool     `short:"n" long:"never-overwrite" description:"skip entries whose destination already exists"`
	AlwaysClobber bool     `short:"o" long:"overwrite" description:"overwrite existing destinations without asking"`
	JunkPaths     bool     `short:"j" long:"junk-paths" description:"discard directory components, extracting every entry flat"`
	Quiet         bool     `short:"q" long:"quiet" description:"suppress informational logging"`

	Positional struct {
		Archive  string   `positional-arg-name:"archive" description:"local path or http(s) URL of the zip archive" required:"yes"`
		Patterns []string `positional-arg-name:"pattern" description:"glob patterns selecting entries (default: everything)"`
	} `positional-args:"yes"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts cliOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[OPTIONS] archive [pattern...]"
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			return exitOK
		}
		return exitGeneric
	}

	if opts.Quiet {
		slog.SetLogLoggerLevel(slog.LevelError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	src, err := openSource(ctx, opts.Positional.Archive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", opts.Positional.Archive, err)
		return exitArchiveMissing
	}
	if closer, ok := src.(io.Closer); ok {
		defer closer.Close()
	}

	x := extractor.New(src)

	switch {
	case opts.ListShort, opts.ListVerbose:
		return doList(ctx, x, opts)
	case opts.Pipe:
		return doPipe(ctx, x, opts)
	default:
		return doExtract(ctx, x, opts)
	}
}

// openSource dispatches to the HTTP or local byte source depending on
// whether locator names a URL, so the rest of the program never
// distinguishes a remote archive from one already on disk.
func openSource(ctx context.Context, locator string) (bytesource.Source, error) {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return bytesource.OpenHTTP(ctx, nil, locator)
	}
	return bytesource.OpenLocal(locator)
}

func doList(ctx context.Context, x *extractor.Extractor, opts cliOptions) int {
	entries, err := x.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitIOFailure
	}

	sel := clifilter.New(opts.Positional.Patterns, opts.Exclude)
	matched := 0
	for i := range entries {
		e := &entries[i]
		if !sel(e) {
			continue
		}
		matched++
		if !opts.ListVerbose {
			fmt.Println(e.FileName)
			continue
		}
		fmt.Printf("%10s  %-7s  %s  %s\n",
			humanize.Bytes(e.UncompressedSize),
			methodName(e.CompressionMethod),
			e.ModTime.Format("2006-01-02 15:04"),
			e.FileName)
	}

	if matched == 0 && len(opts.Positional.Patterns) > 0 {
		return exitNoMatch
	}
	return exitOK
}

func methodName(m uint16) string {
	switch m {
	case 0:
		return "stored"
	case 8:
		return "deflate"
	default:
		return "method" + strconv.Itoa(int(m))
	}
}

func doPipe(ctx context.Context, x *extractor.Extractor, opts cliOptions) int {
	entries, err := x.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitIOFailure
	}

	sel := clifilter.New(opts.Positional.Patterns, opts.Exclude)
	for i := range entries {
		e := &entries[i]
		if !sel(e) || e.IsDirectory {
			continue
		}
		if err := streamOne(ctx, x, e); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", e.FileName, err)
			return exitIOFailure
		}
		return exitOK
	}
	return exitNoMatch
}

func streamOne(ctx context.Context, x *extractor.Extractor, target *zipindex.IndexEntry) error {
	only := func(e *zipindex.IndexEntry) bool { return e == target }
	results, err := x.Extract(ctx, only, extractor.Options{Parallelism: 1}, func(entry *zipindex.IndexEntry, destPath string) (io.WriteCloser, error) {
		return nopWriteCloser{os.Stdout}, nil
	})
	if err != nil {
		return err
	}
	return results[0].Err
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func doExtract(ctx context.Context, x *extractor.Extractor, opts cliOptions) int {
	overwrite := extractor.OverwritePrompt
	switch {
	case opts.AlwaysClobber:
		overwrite = extractor.OverwriteAlways
	case opts.NeverClobber:
		overwrite = extractor.OverwriteNever
	}

	extractOpts := extractor.Options{
		Overwrite:      overwrite,
		Prompt:         promptOverwrite,
		JunkPaths:      opts.JunkPaths,
		DestinationDir: opts.Destination,
		Parallelism:    parallelismFor(x.Source()),
		Symlink:        makeSymlink,
	}

	sel := clifilter.New(opts.Positional.Patterns, opts.Exclude)
	results, err := x.Extract(ctx, sel, extractOpts, func(entry *zipindex.IndexEntry, destPath string) (io.WriteCloser, error) {
		return filesystemSinkFactory(entry, destPath, overwrite, promptOverwrite)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitIOFailure
	}

	matched := 0
	failed := 0
	for _, r := range results {
		matched++
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.Entry.FileName, r.Err)
			continue
		}
		if !opts.Quiet && !r.Skipped {
			slog.Info("extracted", "path", r.Entry.FileName)
		}
	}

	if matched == 0 && len(opts.Positional.Patterns) > 0 {
		return exitNoMatch
	}
	if failed > 0 {
		return exitIOFailure
	}
	return exitOK
}

// parallelismFor runs several range requests concurrently against a
// remote archive, where latency rather than bandwidth is the
// bottleneck, but stays sequential against a local file where extra
// goroutines just add pread contention.
func parallelismFor(src bytesource.Source) int {
	if _, ok := src.(*bytesource.HTTP); ok {
		return 8
	}
	return 1
}

func filesystemSinkFactory(entry *zipindex.IndexEntry, destPath string, overwrite extractor.Overwrite, prompt func(string) bool) (io.WriteCloser, error) {
	if entry.IsDirectory {
		return nil, os.MkdirAll(destPath, 0o777)
	}

	if err := os.MkdirAll(path.Dir(destPath), 0o777); err != nil {
		return nil, err
	}

	if _, err := os.Lstat(destPath); err == nil {
		switch overwrite {
		case extractor.OverwriteNever:
			return nil, nil
		case extractor.OverwritePrompt:
			if !prompt(destPath) {
				return nil, nil
			}
		}
	}

	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if overwrite == extractor.OverwriteNever {
		// O_EXCL makes the existence check and the create one step, so of
		// several entries racing for the same path only the first writes it.
		flag |= os.O_EXCL
	}
	f, err := os.OpenFile(destPath, flag, 0o666)
	if err != nil {
		if overwrite == extractor.OverwriteNever && os.IsExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &modeRestoringFile{File: f, entry: entry}, nil
}

// modeRestoringFile applies the Central Directory's recorded
// permissions and modification time once the extracted content has
// been written and closed successfully, so a decompression failure
// never leaves a half-written file looking complete.
type modeRestoringFile struct {
	*os.File
	entry *zipindex.IndexEntry
}

func (m *modeRestoringFile) Close() error {
	if err := m.File.Close(); err != nil {
		return err
	}
	mode := extractor.FileMode(m.entry.MadeByHost, m.entry.ExternalAttributes, false)
	os.Chmod(m.File.Name(), mode.Perm())
	if !m.entry.ModTime.IsZero() {
		os.Chtimes(m.File.Name(), time.Now(), m.entry.ModTime)
	}
	return nil
}

// Abort discards whatever was written instead of finalizing its mode
// and mtime, so a CRC/size mismatch or read failure mid-extraction
// never leaves a corrupt file looking like a finished one.
func (m *modeRestoringFile) Abort() error {
	name := m.File.Name()
	m.File.Close()
	return os.Remove(name)
}

func makeSymlink(entry *zipindex.IndexEntry, destPath, target string) error {
	os.Remove(destPath)
	return os.Symlink(target, destPath)
}

// promptOverwrite asks once on stderr/stdin whether to replace an
// existing destination. Any answer other than y/yes is a no.
func promptOverwrite(destPath string) bool {
	fmt.Fprintf(os.Stderr, "replace %s? [y/N] ", destPath)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}
