// Package ratelimit provides sliding-window abuse control for bounded
// actions such as one-time-code issuance.
package ratelimit

import (
	"sync"
	"time"
)

// Action names a rate-limited operation.
type Action string

const (
	ActionCodeIssue  Action = "otp_issue"
	ActionCodeVerify Action = "otp_verify"
)

// Decision is the outcome of a CheckAndRecord call. When Allowed is false,
// NextAttemptAt is the earliest time a retry can succeed: the oldest
// surviving attempt plus the window length.
type Decision struct {
	Allowed       bool
	Remaining     int
	NextAttemptAt time.Time
}

// Limiter counts attempts per (identifier, action) within a trailing window.
// The prune-check-record sequence runs under a single lock, so two concurrent
// requests cannot both observe "under limit" before either records.
type Limiter struct {
	window  time.Duration
	max     int
	mu      sync.Mutex
	windows map[string][]time.Time
	nowFunc func() time.Time
}

type Option func(*Limiter)

func WithNowFunc(now func() time.Time) Option {
	return func(l *Limiter) {
		l.nowFunc = now
	}
}

func New(window time.Duration, max int, options ...Option) *Limiter {
	l := &Limiter{
		window:  window,
		max:     max,
		windows: make(map[string][]time.Time),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func key(identifier string, action Action) string {
	return identifier + "/" + string(action)
}

// CheckAndRecord prunes attempts older than the window, then either records a
// new attempt (under the cap) or rejects with the next allowed time.
func (l *Limiter) CheckAndRecord(identifier string, action Action) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	cutoff := now.Add(-l.window)
	k := key(identifier, action)

	surviving := l.windows[k][:0:0]
	for _, t := range l.windows[k] {
		if t.After(cutoff) {
			surviving = append(surviving, t)
		}
	}

	if len(surviving) >= l.max {
		l.windows[k] = surviving
		return Decision{
			Allowed:       false,
			NextAttemptAt: surviving[0].Add(l.window),
		}
	}

	surviving = append(surviving, now)
	l.windows[k] = surviving
	return Decision{
		Allowed:   true,
		Remaining: l.max - len(surviving),
	}
}

// Purge drops windows whose attempts have all aged out. Runs from the
// maintenance worker, never from the request path. Idempotent and safe to run
// concurrently with request traffic.
func (l *Limiter) Purge() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.nowFunc().Add(-l.window)
	purged := 0
	for k, attempts := range l.windows {
		exhausted := true
		for _, t := range attempts {
			if t.After(cutoff) {
				exhausted = false
				break
			}
		}
		if exhausted {
			delete(l.windows, k)
			purged++
		}
	}
	return purged
}
