// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package plugin

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Stats holds performance counters for one plugin. They feed plugin-health
// reporting but never gate execution.
type Stats struct {
	PluginName string

	TotalRuns   atomic.Uint64
	TotalErrors atomic.Uint64

	m             sync.RWMutex
	lastDuration  time.Duration
	lastCheckTime time.Time
	lastError     string
}

// NewStats returns zeroed counters for the named plugin.
func NewStats(name string) *Stats {
	return &Stats{PluginName: name}
}

// Add records the outcome of one check run.
func (s *Stats) Add(duration time.Duration, when time.Time, err error) {
	s.TotalRuns.Inc()

	s.m.Lock()
	defer s.m.Unlock()
	s.lastDuration = duration
	s.lastCheckTime = when
	if err != nil {
		s.TotalErrors.Inc()
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
}

// Snapshot is a point-in-time copy of the counters for reporting.
type Snapshot struct {
	PluginName    string        `json:"plugin_name"`
	TotalRuns     uint64        `json:"total_runs"`
	TotalErrors   uint64        `json:"total_errors"`
	LastDuration  time.Duration `json:"last_duration"`
	LastCheckTime time.Time     `json:"last_check_time"`
	LastError     string        `json:"last_error,omitempty"`
}

// Snapshot returns a consistent copy of the counters.
func (s *Stats) Snapshot() Snapshot {
	s.m.RLock()
	defer s.m.RUnlock()
	return Snapshot{
		PluginName:    s.PluginName,
		TotalRuns:     s.TotalRuns.Load(),
		TotalErrors:   s.TotalErrors.Load(),
		LastDuration:  s.lastDuration,
		LastCheckTime: s.lastCheckTime,
		LastError:     s.lastError,
	}
}
