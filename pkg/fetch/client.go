// Package fetch retrieves the raw inputs of one refresh: repository
// databases, the recipe document, build status, external version
// feeds, and the vulnerability feed.
//
// One [Client] serves all fetchers. It paces requests through a shared
// limiter, retries transient failures with exponential backoff,
// revalidates conditionally against cached validators, and falls back
// to the last good cached body when all attempts fail, so one broken
// upstream degrades a single input to stale instead of failing the
// refresh.
//
// [Gather] runs every fetch of one refresh concurrently and bundles
// the parsed results into an [Inputs] value; the merge step reads only
// from that bundle, never from a second cycle's data.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/repopulse/repopulse/pkg/cache"
	apperrors "github.com/repopulse/repopulse/pkg/errors"
	"github.com/repopulse/repopulse/pkg/httputil"
)

const (
	httpTimeout     = 60 * time.Second
	defaultAttempts = 3
	defaultDelay    = time.Second
)

// ErrNotFound is returned when the remote resource does not exist.
// It is never retried and never masked by a stale cached body.
var ErrNotFound = errors.New("resource not found")

// Result is the outcome of one fetch.
type Result struct {
	Body []byte

	// Stale is true when the body comes from the cache after every
	// attempt to reach the remote failed.
	Stale bool

	// LastModified is the remote's Last-Modified value, zero when the
	// remote did not report one.
	LastModified time.Time
}

// envelope is the cached form of one response: the body plus the
// validators needed for conditional revalidation. Envelopes are stored
// without expiry; an old body is still the best available fallback.
type envelope struct {
	Body         []byte    `json:"body"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

func (e *envelope) lastModified() time.Time {
	if e.LastModified == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(e.LastModified)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Client fetches URLs with retry, rate limiting, and cached fallback.
type Client struct {
	http     *http.Client
	cache    cache.Cache
	limiter  *httputil.Limiter
	logger   *log.Logger
	attempts int
	delay    time.Duration
}

// NewClient creates a Client storing response bodies in c and pacing
// requests through limiter. A nil limiter disables pacing.
func NewClient(c cache.Cache, limiter *httputil.Limiter, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		http:     &http.Client{Timeout: httpTimeout},
		cache:    c,
		limiter:  limiter,
		logger:   logger,
		attempts: defaultAttempts,
		delay:    defaultDelay,
	}
}

// Get fetches url. A 304 against cached validators reuses the cached
// body; when all attempts fail and a cached body exists, that body is
// returned with Stale set instead of an error.
func (c *Client) Get(ctx context.Context, url string) (Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
	}

	cached := c.load(ctx, url)

	var res Result
	err := httputil.Retry(ctx, c.attempts, c.delay, func() error {
		r, err := c.fetchOnce(ctx, url, cached)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err == nil {
		return res, nil
	}
	if errors.Is(err, ErrNotFound) {
		return Result{}, err
	}
	if cached != nil {
		c.logger.Warn("reusing stale body after failed fetch", "url", url, "err", err)
		return Result{Body: cached.Body, Stale: true, LastModified: cached.lastModified()}, nil
	}
	return Result{}, apperrors.Wrap(apperrors.ErrCodeFetchFailed, err, "fetching %s", url)
}

func (c *Client) fetchOnce(ctx context.Context, url string, cached *envelope) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, err
	}
	if cached != nil {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, httputil.Retryable(fmt.Errorf("request %s: %w", url, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && cached != nil:
		return Result{Body: cached.Body, LastModified: cached.lastModified()}, nil
	case resp.StatusCode == http.StatusOK:
		// Handled below.
	case resp.StatusCode == http.StatusNotFound:
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode >= 500:
		return Result{}, httputil.Retryable(fmt.Errorf("%s: status %d", url, resp.StatusCode))
	default:
		return Result{}, fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, httputil.Retryable(fmt.Errorf("read %s: %w", url, err))
	}

	env := envelope{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FetchedAt:    time.Now().UTC(),
	}
	c.store(ctx, url, env)
	return Result{Body: body, LastModified: env.lastModified()}, nil
}

func (c *Client) load(ctx context.Context, url string) *envelope {
	if c.cache == nil {
		return nil
	}
	data, ok, err := c.cache.Get(ctx, cache.Hash([]byte(url)))
	if err != nil || !ok {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil
	}
	return &env
}

func (c *Client) store(ctx context.Context, url string, env envelope) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cache.Hash([]byte(url)), data, 0); err != nil {
		c.logger.Debug("cache store failed", "url", url, "err", err)
	}
}
