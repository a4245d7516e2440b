// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package notify

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultThrottleInterval is the global minimum spacing between identical
// (source, severity) events, independent of upstream cooldowns.
const DefaultThrottleInterval = 60 * time.Second

// Throttle enforces a minimum interval per key. It exists to absorb bursts
// even when alert-level suppression is disabled.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	clock    clock.Clock
	lastSeen map[string]time.Time
}

// NewThrottle returns a throttle with the given minimum interval.
func NewThrottle(interval time.Duration, c clock.Clock) *Throttle {
	if c == nil {
		c = clock.New()
	}
	return &Throttle{
		interval: interval,
		clock:    c,
		lastSeen: make(map[string]time.Time),
	}
}

// Allow reports whether an event for key may pass, and records the pass.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if last, ok := t.lastSeen[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSeen[key] = now
	return true
}
