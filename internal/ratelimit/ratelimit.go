// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit implements a fixed-window request limiter shared across
// instances through Redis. Each source address gets one counter key that
// expires at the end of its window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLimit is the number of requests allowed per window.
	DefaultLimit = 10

	// DefaultWindow is the length of one counting window.
	DefaultWindow = time.Minute

	keyPrefix = "powerletter:ratelimit:"
)

// Result describes the caller's standing after a request was counted.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is the time left until the window closes.
	Reset time.Duration
}

// Limiter counts requests per key in Redis.
type Limiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

// NewLimiter creates a limiter backed by Redis. Non-positive values fall
// back to the defaults.
func NewLimiter(rdb *redis.Client, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{rdb: rdb, limit: limit, window: window}
}

// Allow counts one request for key and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	k := keyPrefix + key

	var incr *redis.IntCmd
	var pttl *redis.DurationCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit INCR: %w", err)
	}

	count := int(incr.Val())
	reset := pttl.Val()

	// A fresh key, or one left without expiry by an interrupted caller,
	// starts a new window.
	if reset < 0 {
		if err := l.rdb.PExpire(ctx, k, l.window).Err(); err != nil {
			return Result{}, fmt.Errorf("ratelimit PEXPIRE: %w", err)
		}
		reset = l.window
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}
