package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/repopulse/repopulse/pkg/cache"
)

func fileCache(t *testing.T) cache.Cache {
	t.Helper()
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return fc
}

func testClient(c cache.Cache) *Client {
	client := NewClient(c, nil, nil)
	client.delay = time.Millisecond
	return client
}

func TestGetCachesAndRevalidates(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch hits.Add(1) {
		case 1:
			w.Header().Set("ETag", `"v1"`)
			w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
			_, _ = w.Write([]byte("payload"))
		default:
			if r.Header.Get("If-None-Match") != `"v1"` {
				t.Errorf("If-None-Match = %q, want v1", r.Header.Get("If-None-Match"))
			}
			if r.Header.Get("If-Modified-Since") == "" {
				t.Error("missing If-Modified-Since on revalidation")
			}
			w.WriteHeader(http.StatusNotModified)
		}
	}))
	defer srv.Close()

	client := testClient(fileCache(t))

	first, err := client.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(first.Body) != "payload" || first.Stale {
		t.Fatalf("first fetch = %+v", first)
	}
	if first.LastModified.IsZero() {
		t.Error("LastModified not parsed")
	}

	// Second call revalidates and serves the cached body on 304.
	second, err := client.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(second.Body) != "payload" || second.Stale {
		t.Fatalf("revalidated fetch = %+v", second)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestGetStaleFallback(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("good body"))
	}))
	defer srv.Close()

	client := testClient(fileCache(t))

	if _, err := client.Get(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}

	failing.Store(true)
	res, err := client.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if !res.Stale || string(res.Body) != "good body" {
		t.Errorf("fallback = %+v, want stale cached body", res)
	}
}

func TestGetNoCacheNoFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := testClient(cache.NewNullCache())
	if _, err := client.Get(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error without a cached body")
	}
}

func TestGetNotFound(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := testClient(cache.NewNullCache())
	_, err := client.Get(context.Background(), srv.URL)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("404 was retried %d times", got)
	}
}

func TestGetNotFoundNotMasked(t *testing.T) {
	var gone atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gone.Load() {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("was here"))
	}))
	defer srv.Close()

	client := testClient(fileCache(t))
	if _, err := client.Get(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}

	// A 404 reports removal; the cached body must not hide it.
	gone.Store(true)
	if _, err := client.Get(context.Background(), srv.URL); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("third time lucky"))
	}))
	defer srv.Close()

	client := testClient(cache.NewNullCache())
	res, err := client.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Body) != "third time lucky" {
		t.Errorf("body = %q", res.Body)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}
}
