// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package history keeps a bounded per-series time series of readings and
// computes windowed statistics over it.
package history

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/serversentry/serversentry/pkg/util/log"
)

// DefaultBound is the maximum number of points a series retains.
const DefaultBound = 1000

// Series identifies one (plugin, metric) time series.
type Series struct {
	Plugin string
	Metric string
}

func (s Series) String() string {
	return fmt.Sprintf("%s_%s", s.Plugin, s.Metric)
}

// Point is one recorded value.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Store is a bounded, append-only store of points per series. Appends may be
// persisted to per-series CSV files so history survives restarts.
type Store struct {
	mu     sync.RWMutex
	bound  int
	dir    string // empty disables persistence
	series map[Series][]Point
	loaded map[Series]bool
}

// Option configures a Store.
type Option func(*Store)

// WithBound overrides the per-series retention bound.
func WithBound(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.bound = n
		}
	}
}

// WithPersistence enables CSV append persistence under dir.
func WithPersistence(dir string) Option {
	return func(s *Store) { s.dir = dir }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		bound:  DefaultBound,
		series: make(map[Series][]Point),
		loaded: make(map[Series]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends one point at the series tail. Timestamps within a series
// are kept non-decreasing: a point older than the current tail is clamped to
// the tail timestamp.
func (s *Store) Record(series Series, t time.Time, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked(series)

	points := s.series[series]
	if n := len(points); n > 0 && t.Before(points[n-1].Timestamp) {
		t = points[n-1].Timestamp
	}
	points = append(points, Point{Timestamp: t, Value: value})
	if len(points) > s.bound {
		points = points[len(points)-s.bound:]
	}
	s.series[series] = points

	s.persistLocked(series, t, value)
}

// Window returns the last n points of the series in insertion order. Fewer
// points are returned when the series is shorter than n.
func (s *Store) Window(series Series, n int) []Point {
	s.mu.Lock()
	s.loadLocked(series)
	points := s.series[series]
	s.mu.Unlock()

	if n > len(points) {
		n = len(points)
	}
	out := make([]Point, n)
	copy(out, points[len(points)-n:])
	return out
}

// Len returns the current number of points in the series.
func (s *Store) Len(series Series) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(series)
	return len(s.series[series])
}

// loadLocked restores a series from its CSV file on first access. An
// unreadable or corrupt file is treated as an empty history.
func (s *Store) loadLocked(series Series) {
	if s.dir == "" || s.loaded[series] {
		return
	}
	s.loaded[series] = true

	f, err := os.Open(s.fileFor(series))
	if err != nil {
		return
	}
	defer f.Close()

	var points []Point
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.SplitN(strings.TrimSpace(scanner.Text()), ",", 2)
		if len(fields) != 2 {
			continue
		}
		epoch, err1 := strconv.ParseInt(fields[0], 10, 64)
		value, err2 := strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		points = append(points, Point{Timestamp: time.Unix(epoch, 0).UTC(), Value: value})
	}
	if len(points) > s.bound {
		points = points[len(points)-s.bound:]
	}
	s.series[series] = points
}

func (s *Store) persistLocked(series Series, t time.Time, value float64) {
	if s.dir == "" {
		return
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		log.Warnf("history: cannot create %s: %s", s.dir, err) //nolint:errcheck
		return
	}
	f, err := os.OpenFile(s.fileFor(series), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Warnf("history: cannot persist %s: %s", series, err) //nolint:errcheck
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%d,%s\n", t.Unix(), strconv.FormatFloat(value, 'f', -1, 64))
}

func (s *Store) fileFor(series Series) string {
	return filepath.Join(s.dir, series.String()+".dat")
}
