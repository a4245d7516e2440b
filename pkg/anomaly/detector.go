// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package anomaly classifies readings as normal or anomalous against their
// series history: z-score outliers, least-squares trends and short spikes.
package anomaly

import (
	"fmt"
	"math"

	"github.com/serversentry/serversentry/pkg/history"
)

// Type is one kind of detected anomaly.
type Type string

// Anomaly types.
const (
	OutlierHigh Type = "outlier-high"
	OutlierLow  Type = "outlier-low"
	TrendUp     Type = "trend-up"
	TrendDown   Type = "trend-down"
	SpikeUp     Type = "spike-up"
	SpikeDown   Type = "spike-down"
)

// spikeWindow is the number of trailing values the spike test averages.
const spikeWindow = 5

// Config is the per-series detection configuration.
type Config struct {
	Enabled              bool    `mapstructure:"enabled"`
	Sensitivity          float64 `mapstructure:"sensitivity"`           // sigma multiplier
	Window               int     `mapstructure:"window"`                // W
	MinPoints            int     `mapstructure:"min_points"`            // P
	DetectTrends         bool    `mapstructure:"detect_trends"`
	DetectSpikes         bool    `mapstructure:"detect_spikes"`
	TrendSlope           float64 `mapstructure:"trend_slope"`           // units per sample
	ConsecutiveThreshold int     `mapstructure:"consecutive_threshold"` // K
	CooldownSeconds      int     `mapstructure:"cooldown_seconds"`      // C
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		Sensitivity:          2.0,
		Window:               20,
		MinPoints:            10,
		DetectTrends:         true,
		DetectSpikes:         true,
		TrendSlope:           2.0,
		ConsecutiveThreshold: 3,
		CooldownSeconds:      1800,
	}
}

// Validate enforces the configuration invariants.
func (c Config) Validate() error {
	if c.MinPoints < 2 {
		return fmt.Errorf("min_points must be >= 2, got %d", c.MinPoints)
	}
	if c.Window < c.MinPoints {
		return fmt.Errorf("window %d smaller than min_points %d", c.Window, c.MinPoints)
	}
	if c.Sensitivity <= 0 {
		return fmt.Errorf("sensitivity must be > 0, got %v", c.Sensitivity)
	}
	if c.ConsecutiveThreshold < 1 {
		return fmt.Errorf("consecutive_threshold must be >= 1, got %d", c.ConsecutiveThreshold)
	}
	return nil
}

// Result is one detection verdict.
type Result struct {
	IsAnomaly bool    `json:"is_anomaly"`
	Types     []Type  `json:"types,omitempty"`
	ZScore    float64 `json:"z_score"`
}

func (r Result) has(t Type) bool {
	for _, existing := range r.Types {
		if existing == t {
			return true
		}
	}
	return false
}

// Detector evaluates readings against their history.
type Detector struct {
	cfg Config
}

// NewDetector validates the config and returns a detector.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Detect classifies value against the series history. With fewer than
// MinPoints of history or a zero standard deviation the verdict is always
// normal and the z-score is 0.
func (d *Detector) Detect(values []float64, value float64) Result {
	if len(values) < d.cfg.MinPoints {
		return Result{}
	}

	window := values
	if len(window) > d.cfg.Window {
		window = window[len(window)-d.cfg.Window:]
	}

	st := history.Compute(window)
	if st.StdDev == 0 {
		return Result{}
	}

	res := Result{ZScore: (value - st.Mean) / st.StdDev}

	if math.Abs(res.ZScore) > d.cfg.Sensitivity {
		if res.ZScore > 0 {
			res.Types = append(res.Types, OutlierHigh)
		} else {
			res.Types = append(res.Types, OutlierLow)
		}
	}

	if d.cfg.DetectTrends {
		slope := slope(window)
		if slope > d.cfg.TrendSlope {
			res.Types = append(res.Types, TrendUp)
		} else if slope < -d.cfg.TrendSlope {
			res.Types = append(res.Types, TrendDown)
		}
	}

	if d.cfg.DetectSpikes && len(window) >= spikeWindow {
		recent := window[len(window)-spikeWindow:]
		var sum float64
		for _, v := range recent {
			sum += v
		}
		mean5 := sum / spikeWindow
		if math.Abs(value-mean5) > 3*st.StdDev {
			if value > mean5 {
				res.Types = append(res.Types, SpikeUp)
			} else {
				res.Types = append(res.Types, SpikeDown)
			}
		}
	}

	res.IsAnomaly = len(res.Types) > 0
	return res
}

// slope is the least-squares linear regression slope of values against their
// index.
func slope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / den
}
