// Package httputil provides HTTP utilities for the input fetchers.
//
// # Overview
//
// This package provides infrastructure used by all remote input fetchers:
//
//   - [Retry]: Automatic retry with exponential backoff
//   - [Limiter]: Shared outbound rate limiting
//
// # Retry
//
// [Retry] re-runs an operation on transient failures. Only errors wrapped
// in [RetryableError] (network errors, 5xx responses) are retried;
// anything else is returned immediately:
//
//	err := httputil.Retry(ctx, 3, time.Second, func() error {
//	    return fetchOnce()
//	})
//
// # Rate limiting
//
// [Limiter] spaces outbound requests so that refresh cycles cannot
// overwhelm third-party trackers. All fetchers of one refresh share one
// limiter:
//
//	lim := httputil.NewLimiter(10, time.Minute)
//	if err := lim.Wait(ctx); err != nil {
//	    return err
//	}
//	resp, err := client.Do(req)
package httputil
