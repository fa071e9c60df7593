// Package httpcache implements an on-disk cache for timetable page fetches.
package httpcache

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Transport caches successful GET responses on disk, keyed by the request URL
// and a category taken from the request context.
type Transport struct {
	// Path is the directory to store cached responses in. If empty, nothing is
	// cached.
	Path string

	// MaxAge is the maximum age of a cached response. If zero, cached
	// responses never expire.
	MaxAge time.Duration

	// RedactParams are URL query parameters to redact in stored requests.
	RedactParams []string

	// Next is the transport to use for making requests. If nil, only cached
	// responses are used.
	Next http.RoundTripper
}

type categoryKey struct{}

// WithCategory sets the cache category for requests made with ctx.
func WithCategory(ctx context.Context, category string) context.Context {
	return context.WithValue(ctx, categoryKey{}, category)
}

func category(ctx context.Context) string {
	if v, ok := ctx.Value(categoryKey{}).(string); ok && v != "" {
		return v
	}
	return "page"
}

// Name returns the cache file name for the request.
func Name(req *http.Request) string {
	s := sha1.Sum([]byte(req.URL.String()))
	return category(req.Context()) + "-" + hex.EncodeToString(s[:])
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return nil, fmt.Errorf("httpcache: unsupported method %s", req.Method)
	}

	var cacheName string
	if t.Path != "" {
		cacheName = filepath.Join(t.Path, Name(req))
		if resp, err := t.load(cacheName, req); err != nil {
			return nil, err
		} else if resp != nil {
			return resp, nil
		}
	}

	if t.Next == nil {
		if cacheName == "" {
			return nil, fmt.Errorf("httpcache: fetch disabled")
		}
		return nil, fmt.Errorf("httpcache: fetch disabled, response not in cache (%s)", cacheName)
	}

	resp, err := t.Next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if cacheName == "" || resp.StatusCode != http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()

	reqbuf, err := httputil.DumpRequest(redactParams(req, t.RedactParams), false)
	if err != nil {
		return nil, err
	}
	respbuf, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(cacheName, slices.Concat(reqbuf, respbuf), 0666); err != nil {
		return nil, fmt.Errorf("httpcache: write cached response: %w", err)
	}
	return readResponse(respbuf, req)
}

// load returns the cached response, or nil if there isn't a usable one.
func (t *Transport) load(name string, req *http.Request) (*http.Response, error) {
	if t.MaxAge > 0 {
		fi, err := os.Stat(name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, fmt.Errorf("httpcache: read cached response: %w", err)
		}
		if time.Since(fi.ModTime()) > t.MaxAge && t.Next != nil {
			return nil, nil
		}
	}
	buf, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("httpcache: read cached response: %w", err)
	}
	r := bufio.NewReader(bytes.NewReader(buf))
	if _, err := http.ReadRequest(r); err != nil {
		return nil, fmt.Errorf("httpcache: read cached request: %w", err)
	}
	resp, err := http.ReadResponse(r, req)
	if err != nil {
		return nil, fmt.Errorf("httpcache: read cached response: %w", err)
	}
	return resp, nil
}

func readResponse(buf []byte, req *http.Request) (*http.Response, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(buf)), req)
	if err != nil {
		return nil, fmt.Errorf("httpcache: read response: %w", err)
	}
	return resp, nil
}

// Purge removes the specified categories from the cache.
func Purge(path string, categories ...string) error {
	ds, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	for _, d := range ds {
		if d.IsDir() {
			continue
		}
		if !slices.ContainsFunc(categories, func(category string) bool {
			h, ok := strings.CutPrefix(d.Name(), category+"-")
			return ok && isHash(h)
		}) {
			continue
		}
		if err := os.Remove(filepath.Join(path, d.Name())); err != nil {
			return err
		}
	}
	return nil
}

func isHash(s string) bool {
	if len(s) != sha1.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// redactParams returns a copy of req with the values of the specified
// case-sensitive URL parameters replaced by a short hash.
func redactParams(req *http.Request, params []string) *http.Request {
	if len(params) == 0 || req.URL.RawQuery == "" {
		return req
	}
	var q strings.Builder
	for x := range strings.SplitSeq(req.URL.RawQuery, "&") {
		if q.Len() != 0 {
			q.WriteByte('&')
		}
		k, v, eq := strings.Cut(x, "=")
		if ku, err := url.QueryUnescape(k); err == nil && slices.Contains(params, ku) {
			if vu, err := url.QueryUnescape(v); err == nil {
				v = vu
			}
			h := sha1.Sum([]byte(v))
			v = "redacted-" + hex.EncodeToString(h[:4])
		}
		q.WriteString(k)
		if eq {
			q.WriteByte('=')
			q.WriteString(v)
		}
	}
	r := req.Clone(req.Context())
	r.URL.RawQuery = q.String()
	return r
}
