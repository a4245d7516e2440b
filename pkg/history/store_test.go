// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cpuSeries = Series{Plugin: "cpu", Metric: "usage"}

func TestRecordAndWindow(t *testing.T) {
	s := NewStore()
	base := time.Unix(1700000000, 0)

	for i := 0; i < 5; i++ {
		s.Record(cpuSeries, base.Add(time.Duration(i)*time.Minute), float64(10*i))
	}

	window := s.Window(cpuSeries, 3)
	require.Len(t, window, 3)
	assert.Equal(t, 20.0, window[0].Value)
	assert.Equal(t, 40.0, window[2].Value)

	// Asking for more than exists returns what exists.
	assert.Len(t, s.Window(cpuSeries, 100), 5)
}

func TestBoundNeverExceeded(t *testing.T) {
	s := NewStore(WithBound(10))
	base := time.Unix(1700000000, 0)

	for i := 0; i < 50; i++ {
		s.Record(cpuSeries, base.Add(time.Duration(i)*time.Second), float64(i))
	}

	assert.Equal(t, 10, s.Len(cpuSeries))
	window := s.Window(cpuSeries, 10)
	assert.Equal(t, 40.0, window[0].Value)
	assert.Equal(t, 49.0, window[9].Value)
}

func TestTimestampsNonDecreasing(t *testing.T) {
	s := NewStore()
	base := time.Unix(1700000000, 0)

	s.Record(cpuSeries, base, 1)
	s.Record(cpuSeries, base.Add(-time.Hour), 2) // out of order, clamped

	window := s.Window(cpuSeries, 2)
	require.Len(t, window, 2)
	assert.False(t, window[1].Timestamp.Before(window[0].Timestamp))
}

func TestAppendOnlyKeepsDuplicates(t *testing.T) {
	s := NewStore()
	ts := time.Unix(1700000000, 0)

	s.Record(cpuSeries, ts, 42)
	s.Record(cpuSeries, ts, 42)

	assert.Equal(t, 2, s.Len(cpuSeries))
}

func TestStatistics(t *testing.T) {
	s := NewStore()
	base := time.Unix(1700000000, 0)
	for i, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		s.Record(cpuSeries, base.Add(time.Duration(i)*time.Second), v)
	}

	st := s.Statistics(cpuSeries, 8)
	assert.Equal(t, 8, st.Count)
	assert.InDelta(t, 5.0, st.Mean, 0.0001)
	assert.InDelta(t, 2.138, st.StdDev, 0.001)
	assert.InDelta(t, 4.5, st.Median, 0.0001)
}

func TestStatisticsSinglePoint(t *testing.T) {
	st := Compute([]float64{42})
	assert.Equal(t, 1, st.Count)
	assert.Equal(t, 42.0, st.Mean)
	assert.Equal(t, 0.0, st.StdDev)
	assert.Equal(t, 42.0, st.Median)
}

func TestStatisticsOddMedian(t *testing.T) {
	st := Compute([]float64{9, 1, 5})
	assert.Equal(t, 5.0, st.Median)
}

func TestStatisticsEmpty(t *testing.T) {
	st := Compute(nil)
	assert.Equal(t, 0, st.Count)
	assert.Equal(t, 0.0, st.Mean)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	base := time.Unix(1700000000, 0)

	s := NewStore(WithPersistence(dir))
	s.Record(cpuSeries, base, 41.5)
	s.Record(cpuSeries, base.Add(time.Minute), 43)

	// A new store reads the same file back.
	restored := NewStore(WithPersistence(dir))
	window := restored.Window(cpuSeries, 2)
	require.Len(t, window, 2)
	assert.Equal(t, 41.5, window[0].Value)
	assert.Equal(t, 43.0, window[1].Value)
	assert.Equal(t, base.Unix(), window[0].Timestamp.Unix())

	data, err := os.ReadFile(filepath.Join(dir, "cpu_usage.dat"))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d,41.5\n%d,43\n", base.Unix(), base.Add(time.Minute).Unix()), string(data))
}

func TestCorruptPersistenceFileIsEmptyHistory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cpu_usage.dat"), []byte("not,a\nnumber\n\x00garbage"), 0644))

	s := NewStore(WithPersistence(dir))
	assert.Equal(t, 0, s.Len(cpuSeries))
}
