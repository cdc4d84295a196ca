// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytesource

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/elliotnunn/rangezip/internal/ziperr"
)

func rangeServer(data []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", fmt.Sprint(len(data)))
			w.Header().Set("Accept-Ranges", "bytes")
			return
		}
		if rng == "" {
			w.Write(data)
			return
		}
		var first, last int64
		fmt.Sscanf(rng, "bytes=%d-%d", &first, &last)
		if last >= int64(len(data)) {
			last = int64(len(data)) - 1
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", first, last, len(data)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[first : last+1])
	}))
}

func TestHTTPReadAt(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 1000)
	srv := rangeServer(data)
	defer srv.Close()

	ctx := context.Background()
	src, err := OpenHTTP(ctx, srv.Client(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if src.Len() != int64(len(data)) {
		t.Fatalf("Len() = %d, want %d", src.Len(), len(data))
	}

	buf := make([]byte, 16)
	if _, err := src.ReadAt(ctx, buf, 100); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, data[100:116]) {
		t.Fatalf("got %q want %q", buf, data[100:116])
	}
}

func TestHTTPRangesUnsupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10")
		w.Write(make([]byte, 10))
	}))
	defer srv.Close()

	_, err := OpenHTTP(context.Background(), srv.Client(), srv.URL)
	if !ziperr.Is(err, ziperr.RangesUnsupported) {
		t.Fatalf("got %v, want RangesUnsupported", err)
	}
}

func TestHTTPContentRangeMismatch(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "100")
			w.Header().Set("Accept-Ranges", "bytes")
			return
		}
		w.Header().Set("Content-Range", "bytes 0-9/100")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[50:60])
	}))
	defer srv.Close()

	ctx := context.Background()
	src, err := OpenHTTP(ctx, srv.Client(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 10)
	_, err = src.ReadAt(ctx, buf, 50)
	if !ziperr.Is(err, ziperr.ContentRangeMismatch) {
		t.Fatalf("got %v, want ContentRangeMismatch", err)
	}
}

func TestHTTPFourXXFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := OpenHTTP(context.Background(), srv.Client(), srv.URL)
	if !ziperr.Is(err, ziperr.HTTPStatus) {
		t.Fatalf("got %v, want HttpStatus", err)
	}
}
