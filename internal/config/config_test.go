package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `
listen = ":9000"
refresh_interval = "2m"
refresh_timeout = "4m"

srcinfo_urls = ["https://example.invalid/srcinfo.json.gz"]
build_status_urls = ["https://example.invalid/status.json"]
vulnerability_urls = ["https://example.invalid/vulns.cdx.json"]
ignored_vulnerabilities = ["CVE-2024-0001"]

[cache]
backend = "redis"
[cache.redis]
addr = "localhost:6379"

[[repository]]
name = "ucrt64"
arch = "x86_64"
environment = "UCRT64"
build_types = ["ucrt64", "src"]
url = "https://example.invalid/ucrt64"
download_url = "https://mirror.example.invalid/ucrt64"
source_url = "https://example.invalid/recipes"
package_prefix = "mingw-w64-ucrt-x86_64-"
base_prefix = "mingw-w64-"

[[repository]]
name = "msys"
arch = "x86_64"
environment = "MSYS"
db_url = "https://example.invalid/msys/msys.files.zst"

[[tracker]]
name = "arch"
key = "archlinux"
priority = 1
url = "https://example.invalid/arch.json"
`

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repopulse.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(write(t, sample))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.RefreshInterval.Std() != 2*time.Minute {
		t.Errorf("RefreshInterval = %v", cfg.RefreshInterval.Std())
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.Redis.Addr != "localhost:6379" {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if len(cfg.Repositories) != 2 || cfg.Repositories[0].PackagePrefix != "mingw-w64-ucrt-x86_64-" {
		t.Errorf("Repositories = %+v", cfg.Repositories)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":8160" || cfg.Cache.Backend != "file" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.RefreshInterval.Std() != 5*time.Minute {
		t.Errorf("RefreshInterval = %v", cfg.RefreshInterval.Std())
	}
}

func TestPlan(t *testing.T) {
	cfg, err := Load(write(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	plan := cfg.Plan()

	if len(plan.Repos) != 2 {
		t.Fatalf("plan repos = %+v", plan.Repos)
	}
	if got := plan.Repos[0].URL; got != "https://example.invalid/ucrt64/ucrt64.files" {
		t.Errorf("derived db url = %q", got)
	}
	if got := plan.Repos[1].URL; got != "https://example.invalid/msys/msys.files.zst" {
		t.Errorf("db_url override = %q", got)
	}
	if len(plan.Trackers) != 1 || plan.Trackers[0].Key != "archlinux" {
		t.Errorf("plan trackers = %+v", plan.Trackers)
	}
	if !plan.IgnoredVulns["CVE-2024-0001"] {
		t.Errorf("IgnoredVulns = %v", plan.IgnoredVulns)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  string
		wantErr string
	}{
		{"bad backend", "[cache]\nbackend = \"memcache\"\n", "cache backend"},
		{"nameless repo", "[[repository]]\nurl = \"https://x\"\n", "without a name"},
		{"repo without url", "[[repository]]\nname = \"x\"\n", "url or db_url"},
		{"duplicate repo", "[[repository]]\nname = \"a\"\nurl = \"https://x\"\n\n[[repository]]\nname = \"a\"\nurl = \"https://y\"\n", "duplicate repository"},
		{"tracker without url", "[[tracker]]\nname = \"x\"\n", "name and url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(write(t, tt.mutate))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
