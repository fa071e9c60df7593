package httpcache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<h3>"+r.URL.Query().Get("month")+"</h3>")
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func get(t *testing.T, rt http.RoundTripper, ctx context.Context, u string) (int, string, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := rt.RoundTrip(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(buf), nil
}

func TestTransport(t *testing.T) {
	srv, hits := newServer(t)
	dir := t.TempDir()
	ctx := WithCategory(context.Background(), "masjid-bilal")
	u := srv.URL + "/view-prayer-timings/masjid-bilal?refkey=FQEhRGD3UvmSZPw&month=08"

	tr := &Transport{
		Path:         dir,
		RedactParams: []string{"refkey"},
		Next:         http.DefaultTransport,
	}
	for i := range 2 {
		code, body, err := get(t, tr, ctx, u)
		if err != nil {
			t.Fatalf("fetch %d: unexpected error: %v", i, err)
		}
		if code != http.StatusOK || body != "<h3>08</h3>" {
			t.Errorf("fetch %d: unexpected response %d %q", i, code, body)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("expected 1 request to reach the server, got %d", n)
	}

	ds, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read cache dir: %v", err)
	}
	if len(ds) != 1 || !strings.HasPrefix(ds[0].Name(), "masjid-bilal-") {
		t.Fatalf("expected a single masjid-bilal cache entry, got %v", ds)
	}
	buf, err := os.ReadFile(filepath.Join(dir, ds[0].Name()))
	if err != nil {
		t.Fatalf("read cache entry: %v", err)
	}
	if strings.Contains(string(buf), "FQEhRGD3UvmSZPw") {
		t.Errorf("cache entry contains unredacted refkey")
	}
	if !strings.Contains(string(buf), "refkey=redacted-") {
		t.Errorf("cache entry does not contain redacted refkey")
	}

	offline := &Transport{Path: dir}
	if _, body, err := get(t, offline, ctx, u); err != nil {
		t.Errorf("cached fetch: unexpected error: %v", err)
	} else if body != "<h3>08</h3>" {
		t.Errorf("cached fetch: unexpected body %q", body)
	}
	if _, _, err := get(t, offline, ctx, srv.URL+"/view-prayer-timings/masjid-bilal?month=09"); err == nil {
		t.Errorf("uncached fetch with fetch disabled: expected error")
	}
	if _, _, err := get(t, offline, context.Background(), u); err == nil {
		t.Errorf("fetch in another category: expected error")
	}
}

func TestTransportMaxAge(t *testing.T) {
	srv, hits := newServer(t)
	dir := t.TempDir()
	ctx := context.Background()
	u := srv.URL + "/view-prayer-timings/yusuf-hall?month=08"

	tr := &Transport{
		Path:   dir,
		MaxAge: time.Hour,
		Next:   http.DefaultTransport,
	}
	get(t, tr, ctx, u)
	get(t, tr, ctx, u)
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected 1 request, got %d", n)
	}

	old := time.Now().Add(-2 * time.Hour)
	ds, _ := os.ReadDir(dir)
	for _, d := range ds {
		if err := os.Chtimes(filepath.Join(dir, d.Name()), old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	get(t, tr, ctx, u)
	if n := hits.Load(); n != 2 {
		t.Errorf("expected expired entry to be refetched, got %d requests", n)
	}
}

func TestTransportErrorsNotCached(t *testing.T) {
	srv, hits := newServer(t)
	dir := t.TempDir()
	tr := &Transport{
		Path: dir,
		Next: http.DefaultTransport,
	}
	for range 2 {
		code, _, err := get(t, tr, context.Background(), srv.URL+"/missing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", code)
		}
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("expected 2 requests, got %d", n)
	}
}

func TestPurge(t *testing.T) {
	dir := t.TempDir()
	var (
		h1 = strings.Repeat("a", 40)
		h2 = strings.Repeat("b", 40)
	)
	for _, name := range []string{"page-" + h1, "page-" + h2, "masjid-e-ali-" + h1, "masjid-e-" + h1, "page-short", "other"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0666); err != nil {
			t.Fatal(err)
		}
	}
	if err := Purge(dir, "page", "masjid-e"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	ds, _ := os.ReadDir(dir)
	var names []string
	for _, d := range ds {
		names = append(names, d.Name())
	}
	if strings.Join(names, ",") != "masjid-e-ali-"+h1+",other,page-short" {
		t.Errorf("unexpected entries after purge: %v", names)
	}
}
