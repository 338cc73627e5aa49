/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package ratelimit wraps golang.org/x/time/rate behind a small,
// swappable-at-runtime token bucket, shared by the Worker Pool (probe
// throughput) and the Alert Pipeline (dispatch throughput).
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter is a token-bucket rate limiter whose rate can be adjusted
// without replacing the instance held by callers.
type Limiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
}

// New creates a Limiter. perSecond <= 0 means unlimited. burst <= 0
// defaults the burst to perSecond.
func New(perSecond int, burst int) *Limiter {
	if perSecond <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst <= 0 {
		burst = perSecond
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until the limiter allows one operation or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.RLock()
	limiter := l.limiter
	l.mu.RUnlock()
	return limiter.Wait(ctx)
}

// Allow reports whether an operation may proceed immediately.
func (l *Limiter) Allow() bool {
	l.mu.RLock()
	limiter := l.limiter
	l.mu.RUnlock()
	return limiter.Allow()
}

// SetRate updates the limiter in place.
func (l *Limiter) SetRate(perSecond int, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if perSecond <= 0 {
		l.limiter.SetLimit(rate.Inf)
		l.limiter.SetBurst(0)
		return
	}
	if burst <= 0 {
		burst = perSecond
	}
	l.limiter.SetLimit(rate.Limit(perSecond))
	l.limiter.SetBurst(burst)
}
