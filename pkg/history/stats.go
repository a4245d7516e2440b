// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package history

import (
	"math"
	"sort"
)

// Stats summarizes the last n points of a series.
type Stats struct {
	Count  int
	Mean   float64
	StdDev float64
	Median float64
}

// Statistics computes count, arithmetic mean, corrected sample standard
// deviation and median over the last n points of the series.
func (s *Store) Statistics(series Series, n int) Stats {
	points := s.Window(series, n)
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return Compute(values)
}

// Compute summarizes a value slice. The standard deviation uses the
// corrected formula when count >= 2 and is 0 for a single point.
func Compute(values []float64) Stats {
	st := Stats{Count: len(values)}
	if st.Count == 0 {
		return st
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	st.Mean = sum / float64(st.Count)

	if st.Count >= 2 {
		var sq float64
		for _, v := range values {
			d := v - st.Mean
			sq += d * d
		}
		st.StdDev = math.Sqrt(sq / float64(st.Count-1))
	}

	sorted := make([]float64, st.Count)
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := st.Count / 2
	if st.Count%2 == 1 {
		st.Median = sorted[mid]
	} else {
		st.Median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return st
}
