package api

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// Rate limit response headers.
const (
	HeaderRateLimitRemaining = "x-ratelimit-remaining"
	HeaderRateLimitReset     = "x-ratelimit-reset"
)

// DefaultRateLimitWindow is assumed when the reset header is missing.
const DefaultRateLimitWindow = 60 * time.Second

// RateLimit is the quota state reported with one response. It is never
// mutated after construction.
type RateLimit struct {
	StatusCode int       // HTTP status, or a synthesized one for transport failures
	Remaining  int       // Requests left in the current window
	Reset      time.Time // When the window resets, on the local clock
	Degraded   bool      // A header was missing or unparsable; defaults were used
}

// ParseRateLimit builds a RateLimit from response headers.
//
// The reset header is an offset in seconds and is anchored to now, the
// local clock, never to the response Date header. A missing remaining
// header yields 0 and a missing reset header yields now+60s; either marks
// the result as degraded.
func ParseRateLimit(header http.Header, status int, now time.Time) RateLimit {
	rl := RateLimit{
		StatusCode: status,
		Reset:      now.Add(DefaultRateLimitWindow),
	}

	if v, ok := headerInt(header, HeaderRateLimitRemaining); ok {
		rl.Remaining = v
	} else {
		rl.Degraded = true
	}

	if v, ok := headerInt(header, HeaderRateLimitReset); ok {
		rl.Reset = now.Add(time.Duration(v) * time.Second)
	} else {
		rl.Degraded = true
	}

	return rl
}

// FailureRateLimit is the RateLimit reported when no response was received.
func FailureRateLimit(status int, now time.Time) RateLimit {
	return RateLimit{
		StatusCode: status,
		Reset:      now.Add(DefaultRateLimitWindow),
		Degraded:   true,
	}
}

// IsSuccess reports whether the status is 2xx.
func (r RateLimit) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Delay returns how long to wait at now before the next request.
func (r RateLimit) Delay(now time.Time) time.Duration {
	if r.Remaining > 0 {
		return 0
	}
	if d := r.Reset.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Wait blocks until the quota allows another request. It returns at once
// if requests remain or the window already reset. Otherwise observer, when
// non-nil, is called with the delay before sleeping. Wait returns ctx.Err()
// if ctx ends first.
func (r RateLimit) Wait(ctx context.Context, observer func(time.Duration)) error {
	d := r.Delay(time.Now())
	if d <= 0 {
		return nil
	}

	if observer != nil {
		observer(d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func headerInt(header http.Header, key string) (int, bool) {
	v := header.Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
