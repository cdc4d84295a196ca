// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elliotnunn/rangezip/internal/ziperr"
)

// retryBackoff is the retry schedule for transient HTTP failures: 3 attempts
// at 100ms, 400ms, 1.6s. Index i is the delay before retry i+1.
var retryBackoff = []time.Duration{
	100 * time.Millisecond,
	400 * time.Millisecond,
	1600 * time.Millisecond,
}

// HTTP is a Source backed by an HTTP(S) URL, read with Range requests.
// One http.Client is shared across all ReadAt calls; it is not
// serialized, so many ReadAt calls may be outstanding concurrently.
type HTTP struct {
	client *http.Client
	url    string
	size   int64
}

// OpenHTTP issues a HEAD request against url and fails construction
// with ziperr.RangesUnsupported unless the server both reports a
// Content-Length and accepts byte ranges.
func OpenHTTP(ctx context.Context, client *http.Client, url string) (*HTTP, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build HEAD request: %w", err)
	}

	var resp *http.Response
	err = withRetry(ctx, func() error {
		resp, err = client.Do(req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("HEAD %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 4 {
		return nil, ziperr.New(ziperr.HTTPStatus, fmt.Errorf("HEAD %s: status %s", url, resp.Status))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ziperr.New(ziperr.HTTPStatus, fmt.Errorf("HEAD %s: unexpected status %s", url, resp.Status))
	}

	lengthHdr := resp.Header.Get("Content-Length")
	if lengthHdr == "" {
		return nil, ziperr.New(ziperr.RangesUnsupported, fmt.Errorf("HEAD %s: missing Content-Length", url))
	}
	size, err := strconv.ParseInt(lengthHdr, 10, 64)
	if err != nil {
		return nil, ziperr.New(ziperr.RangesUnsupported, fmt.Errorf("HEAD %s: bad Content-Length %q", url, lengthHdr))
	}

	if !strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes") {
		// Some servers omit Accept-Ranges but still honor Range; probe with a
		// tiny range request before giving up on the archive entirely.
		if size == 0 || !probeRangeSupport(ctx, client, url) {
			return nil, ziperr.New(ziperr.RangesUnsupported, fmt.Errorf("%s does not advertise or honor byte ranges", url))
		}
	}

	return &HTTP{client: client, url: url, size: size}, nil
}

func probeRangeSupport(ctx context.Context, client *http.Client, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusPartialContent
}

func (h *HTTP) Len() int64 { return h.size }

func (h *HTTP) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off >= h.size {
		return 0, ziperr.New(ziperr.Truncated, fmt.Errorf("wanted %d bytes at offset %d, archive is %d bytes", len(p), off, h.size))
	}

	last := off + int64(len(p)) - 1
	if last >= h.size {
		last = h.size - 1
	}

	var body []byte
	err := withRetry(ctx, func() error {
		b, err := h.getRange(ctx, off, last)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("GET %s bytes=%d-%d: %w", h.url, off, last, err)
	}

	n := copy(p, body)
	if n < len(p) {
		return n, ziperr.New(ziperr.Truncated, fmt.Errorf("wanted %d bytes at offset %d, got %d", len(p), off, n))
	}
	return n, nil
}

func (h *HTTP) getRange(ctx context.Context, first, last int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", first, last))

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		// Full body returned instead of the requested range: the server
		// stopped honoring Range requests mid-stream.
		return nil, ziperr.New(ziperr.RangesUnsupported, errors.New("server returned 200 instead of 206 for a ranged GET"))
	}
	if resp.StatusCode != http.StatusPartialContent {
		if resp.StatusCode/100 == 4 {
			return nil, ziperr.New(ziperr.HTTPStatus, fmt.Errorf("status %s", resp.Status))
		}
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	wantLen := last - first + 1
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if !contentRangeMatches(cr, first, last) {
			return nil, ziperr.New(ziperr.ContentRangeMismatch, fmt.Errorf("Content-Range %q does not match requested bytes=%d-%d", cr, first, last))
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) != wantLen {
		return nil, ziperr.New(ziperr.Truncated, fmt.Errorf("expected %d bytes, got %d", wantLen, len(body)))
	}
	return body, nil
}

// contentRangeMatches checks a "bytes a-b/total" header against the
// range we asked for. A mismatch is fatal.
func contentRangeMatches(headerVal string, first, last int64) bool {
	const prefix = "bytes "
	if !strings.HasPrefix(headerVal, prefix) {
		return false
	}
	spec := strings.TrimPrefix(headerVal, prefix)
	rangePart, _, ok := strings.Cut(spec, "/")
	if !ok {
		return false
	}
	a, b, ok := strings.Cut(rangePart, "-")
	if !ok {
		return false
	}
	gotFirst, err1 := strconv.ParseInt(a, 10, 64)
	gotLast, err2 := strconv.ParseInt(b, 10, 64)
	if err1 != nil || err2 != nil {
		return false
	}
	return gotFirst == first && gotLast == last
}

// withRetry retries transient failures (network errors, 5xx) with the
// backoff schedule above. 4xx and Content-Range mismatches
// are fatal and bubble up unretried.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) || attempt >= len(retryBackoff) {
			return err
		}
		select {
		case <-time.After(retryBackoff[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func isTransient(err error) bool {
	var zerr *ziperr.Error
	if errors.As(err, &zerr) {
		switch zerr.Kind {
		case ziperr.HTTPStatus, ziperr.ContentRangeMismatch, ziperr.RangesUnsupported:
			return false
		}
	}
	// A plain network error (timeout, connection reset) or a non-2xx,
	// non-ziperr-wrapped 5xx bubbled up from getRange's default branch.
	return true
}
