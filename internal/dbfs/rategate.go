// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dbfs

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// RateGate is the process-wide concurrency + rate-limit cooperative gate.
// Acquire blocks until the caller may issue one HTTP request; it is bounded
// by a semaphore of capacity `workers` and by a shared "do not send before"
// deadline set by ReportRateLimited.
//
// Real goroutines can race on waitUntil, so it is guarded by a mutex.
type RateGate struct {
	sem *semaphore.Weighted

	mu        sync.Mutex
	waitUntil time.Time
}

// NewRateGate creates a gate admitting at most workers requests in flight.
func NewRateGate(workers int) *RateGate {
	if workers <= 0 {
		workers = 1
	}
	return &RateGate{sem: semaphore.NewWeighted(int64(workers))}
}

// Acquire blocks until the caller may send one request. It returns a release
// function that must be called when the request (and, for I/O-error
// backoff, any associated sleep) is complete.
func (g *RateGate) Acquire(ctx context.Context) (func(), error) {
	for {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wait := g.cooldownRemaining()
		if wait <= 0 {
			return func() { g.sem.Release(1) }, nil
		}
		// Release the slot around the rate-limit sleep so other callers can proceed.
		g.sem.Release(1)
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (g *RateGate) cooldownRemaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.waitUntil.IsZero() {
		return 0
	}
	return time.Until(g.waitUntil)
}

// ReportRateLimited sets the process-wide cooldown to one second from now,
// unless a later cooldown is already in effect.
func (g *RateGate) ReportRateLimited() {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := time.Now().Add(time.Second)
	if next.After(g.waitUntil) {
		g.waitUntil = next
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
