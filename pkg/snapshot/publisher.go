package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/repopulse/repopulse/pkg/errors"
	"github.com/repopulse/repopulse/pkg/fetch"
)

// State is the publisher's lifecycle position.
type State int

const (
	// StateEmpty means no generation has ever been published; readers
	// must treat this as "data not yet available", not as an empty
	// package set.
	StateEmpty State = iota

	// StateRefreshing means a pipeline is in flight. The previous
	// generation, if any, stays readable throughout.
	StateRefreshing

	// StatePublished is the steady state.
	StatePublished
)

func (s State) String() string {
	switch s {
	case StateRefreshing:
		return "refreshing"
	case StatePublished:
		return "published"
	default:
		return "empty"
	}
}

// Source produces the gathered input set for one refresh attempt.
type Source func(ctx context.Context) (*fetch.Inputs, error)

// Publisher owns the current generation and serializes refreshes.
// At most one pipeline runs at a time; triggers arriving mid-refresh
// coalesce into a single queued follow-up run.
type Publisher struct {
	source  Source
	timeout time.Duration
	logger  *log.Logger

	current atomic.Pointer[Generation]

	// trigger carries at most one queued refresh request; additional
	// triggers while one is pending are coalesced away.
	trigger chan struct{}

	mu         sync.Mutex
	refreshing bool
	queued     bool
	lastErr    error
}

// NewPublisher creates a Publisher fetching inputs through source.
// Every refresh runs under timeout; on expiry the previous generation
// is retained, like any other full failure.
func NewPublisher(source Source, timeout time.Duration, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{
		source:  source,
		timeout: timeout,
		logger:  logger,
		trigger: make(chan struct{}, 1),
	}
}

// Current returns the latest published generation. ok is false while
// no generation exists yet.
func (p *Publisher) Current() (*Generation, bool) {
	gen := p.current.Load()
	return gen, gen != nil
}

// State reports the publisher's lifecycle position.
func (p *Publisher) State() State {
	p.mu.Lock()
	refreshing := p.refreshing
	p.mu.Unlock()
	if refreshing {
		return StateRefreshing
	}
	if p.current.Load() == nil {
		return StateEmpty
	}
	return StatePublished
}

// LastError returns the error of the most recent refresh attempt, nil
// after a success.
func (p *Publisher) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Trigger requests a refresh and returns immediately. The request is
// served by [Publisher.Run]; while a refresh is in flight or already
// queued, the trigger coalesces into it and Trigger returns false.
func (p *Publisher) Trigger() bool {
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Refresh runs one full pipeline now and publishes the result. A call
// arriving while a refresh is in flight coalesces: it marks a single
// follow-up run and returns nil without starting a second pipeline.
// On failure the previous generation stays published and the error is
// returned.
func (p *Publisher) Refresh(ctx context.Context) error {
	p.mu.Lock()
	if p.refreshing {
		p.queued = true
		p.mu.Unlock()
		return nil
	}
	p.refreshing = true
	p.mu.Unlock()

	for {
		err := p.runOnce(ctx)

		p.mu.Lock()
		p.lastErr = err
		queued := p.queued
		p.queued = false
		if !queued || ctx.Err() != nil {
			p.refreshing = false
			p.mu.Unlock()
			return err
		}
		p.mu.Unlock()
	}
}

func (p *Publisher) runOnce(ctx context.Context) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	started := time.Now()
	in, err := p.source(ctx)
	if err != nil {
		if ctx.Err() != nil {
			err = errors.Wrap(errors.ErrCodeRefreshTimeout, err, "refresh deadline exceeded")
		}
		p.logger.Error("refresh failed, keeping previous generation", "err", err)
		return err
	}

	gen := Build(in)
	p.current.Store(gen)
	p.logger.Info("published generation",
		"etag", gen.Etag,
		"sources", len(gen.Universe.Sources),
		"packages", len(gen.Universe.Packages),
		"updates", len(gen.Updates),
		"removals", len(gen.Removals),
		"stale", len(gen.Stale),
		"diagnostics", len(gen.Diagnostics),
		"took", time.Since(started).Round(time.Millisecond))
	return nil
}

// Run refreshes immediately, then loops: every interval, or earlier on
// a trigger, one refresh pipeline runs. Returns when ctx is done.
func (p *Publisher) Run(ctx context.Context, interval time.Duration) error {
	if err := p.Refresh(ctx); err != nil {
		p.logger.Warn("initial refresh failed", "err", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-p.trigger:
		}
		if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("refresh failed", "err", err)
		}
	}
}
