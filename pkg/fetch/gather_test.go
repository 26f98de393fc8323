package fetch

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/repopulse/repopulse/pkg/cache"
	"github.com/repopulse/repopulse/pkg/universe"
)

func dbArchive(t *testing.T, descs map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for dir, desc := range descs {
		if err := tw.WriteHeader(&tar.Header{
			Name: dir + "/desc",
			Mode: 0o644,
			Size: int64(len(desc)),
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(desc)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const fooDesc = "%NAME%\nfoo\n\n%BASE%\nfoo\n\n%VERSION%\n1.0-1\n\n%ARCH%\nx86_64\n"

func srcinfoDoc(t *testing.T) []byte {
	t.Helper()
	doc := map[string]any{
		"hash1": map[string]any{
			"repo": "https://example.invalid/recipes",
			"path": "foo",
			"date": "2024-06-01T00:00:00+00:00",
			"srcinfo": map[string]string{
				"CORE": "pkgbase = foo\n\tpkgver = 2.0\n\tpkgrel = 1\npkgname = foo\n",
			},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestGather(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/core.files", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(dbArchive(t, map[string]string{"foo-1.0-1": fooDesc}))
	})
	mux.HandleFunc("/srcinfo.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(srcinfoDoc(t))
	})
	mux.HandleFunc("/status.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"packages": []}`))
	})
	mux.HandleFunc("/versions.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"foo": {"version": "3.0", "url": "https://up.example.invalid"}}`))
	})
	mux.HandleFunc("/vulns.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"components": [], "vulnerabilities": []}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	plan := Plan{
		Repos: []RepoSource{{
			Repo: universe.Repository{Name: "core", Arch: "x86_64", Environment: "CORE"},
			URL:  srv.URL + "/core.files",
		}},
		SrcinfoURLs:     []string{srv.URL + "/srcinfo.json"},
		BuildStatusURLs: []string{srv.URL + "/status.json"},
		Trackers: []TrackerSource{{
			Name: "upstream", Priority: 1, URL: srv.URL + "/versions.json",
		}},
		VulnURLs: []string{srv.URL + "/vulns.json"},
	}

	in, err := Gather(context.Background(), testClient(cache.NewNullCache()), plan, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(in.Repos) != 1 || len(in.Repos[0].Records) != 1 || in.Repos[0].Records[0].Name != "foo" {
		t.Errorf("Repos = %+v", in.Repos)
	}
	if len(in.Recipes) != 1 || in.Recipes[0].Base != "foo" {
		t.Errorf("Recipes = %+v", in.Recipes)
	}
	if in.BuildStatus == nil {
		t.Error("BuildStatus missing")
	}
	if len(in.Trackers) != 1 || in.Trackers[0].Versions["foo"].Version != "3.0" {
		t.Errorf("Trackers = %+v", in.Trackers)
	}
	if in.Feed == nil {
		t.Error("Feed missing")
	}
	if len(in.Failed) != 0 || len(in.Stale) != 0 || len(in.Diags) != 0 {
		t.Errorf("Failed=%v Stale=%v Diags=%v", in.Failed, in.Stale, in.Diags)
	}
}

func TestGatherPartialFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/core.files", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(dbArchive(t, map[string]string{"foo-1.0-1": fooDesc}))
	})
	mux.HandleFunc("/srcinfo.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(srcinfoDoc(t))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	plan := Plan{
		Repos: []RepoSource{{
			Repo: universe.Repository{Name: "core", Arch: "x86_64", Environment: "CORE"},
			URL:  srv.URL + "/core.files",
		}},
		SrcinfoURLs: []string{srv.URL + "/srcinfo.json"},
		Trackers: []TrackerSource{{
			Name: "upstream", Priority: 1, URL: srv.URL + "/missing.json",
		}},
	}

	in, err := Gather(context.Background(), testClient(cache.NewNullCache()), plan, nil)
	if err != nil {
		t.Fatalf("tracker failure must not fail the gather: %v", err)
	}
	if len(in.Trackers) != 0 {
		t.Errorf("Trackers = %+v, want none", in.Trackers)
	}
	if _, failed := in.Failed["tracker:upstream"]; !failed {
		t.Errorf("Failed = %v, want tracker:upstream recorded", in.Failed)
	}
	if len(in.Repos) != 1 || len(in.Recipes) != 1 {
		t.Errorf("core inputs lost: %+v", in)
	}
}

func TestGatherCoreFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer srv.Close()

	plan := Plan{
		Repos: []RepoSource{{
			Repo: universe.Repository{Name: "core", Arch: "x86_64"},
			URL:  srv.URL + "/core.files",
		}},
		SrcinfoURLs: []string{srv.URL + "/srcinfo.json"},
	}
	if _, err := Gather(context.Background(), testClient(cache.NewNullCache()), plan, nil); err == nil {
		t.Fatal("expected error when every core input failed")
	}
}
