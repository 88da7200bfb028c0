// Copyright 2023 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package rate provides a rate limiter used to shape blob file I/O (spec.md
// §6, the RateLimiter::request(bytes, is_background) callback).
package rate

import (
	"sync"
	"time"

	"github.com/cockroachdb/tokenbucket"
)

// A Limiter controls how frequently bytes may be moved to or from disk. It
// implements a token bucket of size b, initially full and refilled at rate r
// tokens (bytes) per second.
//
// Limiter is safe for concurrent use. A nil *Limiter never blocks, so
// passing one into BlobStore.Write/Read is optional.
type Limiter struct {
	mu struct {
		sync.Mutex
		tb    tokenbucket.TokenBucket
		rate  float64
		burst float64
	}
	sleepFn func(d time.Duration)
}

// NewLimiter returns a new Limiter that allows up to rate bytes/sec, with
// bursts of at most burst bytes.
func NewLimiter(rate, burst float64) *Limiter {
	l := &Limiter{}
	l.mu.tb.Init(tokenbucket.TokensPerSecond(rate), tokenbucket.Tokens(burst))
	l.mu.rate = rate
	l.mu.burst = burst
	return l
}

// NewLimiterWithCustomTime is like NewLimiter but lets tests substitute the
// clock and the sleep function.
func NewLimiterWithCustomTime(
	rate, burst float64, nowFn func() time.Time, sleepFn func(d time.Duration),
) *Limiter {
	l := &Limiter{}
	l.mu.tb.InitWithNowFn(tokenbucket.TokensPerSecond(rate), tokenbucket.Tokens(burst), nowFn)
	l.mu.rate = rate
	l.mu.burst = burst
	l.sleepFn = sleepFn
	return l
}

// Request blocks until n bytes' worth of tokens are available, then
// consumes them. isBackground is a hint some limiter implementations use to
// deprioritize background callers (spec.md §4.1's BlobFile.read
// "background" parameter); the basic token-bucket limiter here treats all
// callers alike, but the parameter is part of the interface so that a
// priority-aware limiter can be substituted without touching call sites.
func (l *Limiter) Request(n int64, isBackground bool) {
	if l == nil || n <= 0 {
		return
	}
	tokens := float64(n)
	for {
		l.mu.Lock()
		ok, d := l.mu.tb.TryToFulfill(tokenbucket.Tokens(tokens))
		l.mu.Unlock()
		if ok {
			return
		}
		if l.sleepFn != nil {
			l.sleepFn(d)
		} else {
			time.Sleep(d)
		}
	}
}

// SetRate updates the rate limit.
func (l *Limiter) SetRate(rate float64) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mu.tb.UpdateConfig(tokenbucket.TokensPerSecond(rate), tokenbucket.Tokens(l.mu.burst))
	l.mu.rate = rate
}

// Rate returns the current rate limit.
func (l *Limiter) Rate() float64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mu.rate
}
