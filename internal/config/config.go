// Package config loads the repopulse configuration from a TOML file.
// Everything has a default; an absent file yields a configuration
// mirroring the reference deployment, so `repopulse serve` works out
// of the box.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/repopulse/repopulse/pkg/fetch"
	"github.com/repopulse/repopulse/pkg/universe"
)

// Duration wraps time.Duration for TOML strings like "5m".
type Duration time.Duration

// UnmarshalText implements toml decoding for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Repository configures one binary package repository.
type Repository struct {
	Name          string   `toml:"name"`
	Variant       string   `toml:"variant"`
	Arch          string   `toml:"arch"`
	Environment   string   `toml:"environment"`
	BuildTypes    []string `toml:"build_types"`
	URL           string   `toml:"url"`
	DownloadURL   string   `toml:"download_url"`
	SourceURL     string   `toml:"source_url"`
	PackagePrefix string   `toml:"package_prefix"`
	BasePrefix    string   `toml:"base_prefix"`

	// DBURL overrides the database file location; empty means
	// url + "/" + name + ".files".
	DBURL string `toml:"db_url"`
}

// Tracker configures one external version feed.
type Tracker struct {
	Name     string `toml:"name"`
	Key      string `toml:"key"`
	Priority int    `toml:"priority"`
	URL      string `toml:"url"`
}

// Cache configures the raw-input cache backend.
type Cache struct {
	// Backend is "file", "redis", or "none".
	Backend string `toml:"backend"`

	// Dir is the file backend's directory; empty means the XDG cache
	// directory.
	Dir string `toml:"dir"`

	Redis RedisCache `toml:"redis"`
}

// RedisCache configures the redis backend.
type RedisCache struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Config is the complete runtime configuration.
type Config struct {
	Listen string `toml:"listen"`

	RefreshInterval Duration `toml:"refresh_interval"`
	RefreshTimeout  Duration `toml:"refresh_timeout"`

	// RequestBurst requests per RequestPeriod are allowed towards
	// remote services, shared across all fetchers.
	RequestBurst  int      `toml:"request_burst"`
	RequestPeriod Duration `toml:"request_period"`

	SrcinfoURLs            []string `toml:"srcinfo_urls"`
	BuildStatusURLs        []string `toml:"build_status_urls"`
	VulnerabilityURLs      []string `toml:"vulnerability_urls"`
	IgnoredVulnerabilities []string `toml:"ignored_vulnerabilities"`

	Repositories []Repository `toml:"repository"`
	Trackers     []Tracker    `toml:"tracker"`

	Cache Cache `toml:"cache"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:          ":8160",
		RefreshInterval: Duration(5 * time.Minute),
		RefreshTimeout:  Duration(10 * time.Minute),
		RequestBurst:    10,
		RequestPeriod:   Duration(time.Minute),
		Cache:           Cache{Backend: "file"},
	}
}

// Load reads path on top of the defaults. An empty path loads the
// defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for configurations that cannot work.
func (c *Config) Validate() error {
	if c.RefreshInterval.Std() <= 0 {
		return fmt.Errorf("refresh_interval must be positive")
	}
	if c.RefreshTimeout.Std() <= 0 {
		return fmt.Errorf("refresh_timeout must be positive")
	}
	switch c.Cache.Backend {
	case "file", "redis", "none":
	default:
		return fmt.Errorf("unknown cache backend %q (want file, redis, or none)", c.Cache.Backend)
	}
	seen := map[string]bool{}
	for _, repo := range c.Repositories {
		if repo.Name == "" {
			return fmt.Errorf("repository without a name")
		}
		if repo.URL == "" && repo.DBURL == "" {
			return fmt.Errorf("repository %s: url or db_url required", repo.Name)
		}
		key := repo.Name + "/" + repo.Variant
		if seen[key] {
			return fmt.Errorf("duplicate repository %s", key)
		}
		seen[key] = true
	}
	for _, tr := range c.Trackers {
		if tr.Name == "" || tr.URL == "" {
			return fmt.Errorf("tracker entries need name and url")
		}
	}
	return nil
}

// Universe converts one repository entry to the model's form.
func (r Repository) Universe() universe.Repository {
	return universe.Repository{
		Name:          r.Name,
		Variant:       r.Variant,
		Arch:          r.Arch,
		Environment:   r.Environment,
		BuildTypes:    r.BuildTypes,
		URL:           r.URL,
		DownloadURL:   r.DownloadURL,
		SourceURL:     r.SourceURL,
		PackagePrefix: r.PackagePrefix,
		BasePrefix:    r.BasePrefix,
	}
}

// Plan assembles the fetch plan for one refresh.
func (c *Config) Plan() fetch.Plan {
	plan := fetch.Plan{
		SrcinfoURLs:     c.SrcinfoURLs,
		BuildStatusURLs: c.BuildStatusURLs,
		VulnURLs:        c.VulnerabilityURLs,
	}
	for _, repo := range c.Repositories {
		url := repo.DBURL
		if url == "" {
			url = repo.URL + "/" + repo.Name + ".files"
		}
		plan.Repos = append(plan.Repos, fetch.RepoSource{Repo: repo.Universe(), URL: url})
	}
	for _, tr := range c.Trackers {
		plan.Trackers = append(plan.Trackers, fetch.TrackerSource{
			Name:     tr.Name,
			Key:      tr.Key,
			Priority: tr.Priority,
			URL:      tr.URL,
		})
	}
	if len(c.IgnoredVulnerabilities) > 0 {
		plan.IgnoredVulns = map[string]bool{}
		for _, id := range c.IgnoredVulnerabilities {
			plan.IgnoredVulns[id] = true
		}
	}
	return plan
}
