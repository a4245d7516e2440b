// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package threshold maps readings to status levels using per-plugin warning
// and critical levels, a hysteresis band and a consecutive-sample guard.
package threshold

import (
	"fmt"
	"math"
	"time"

	"github.com/serversentry/serversentry/pkg/plugin"
)

// Direction selects which side of the thresholds is bad.
type Direction int

// Comparison directions.
const (
	GreaterIsBad Direction = iota
	LessIsBad
)

// Config is the per-plugin threshold tuple.
type Config struct {
	Warning        float64
	Critical       float64
	Direction      Direction
	Hysteresis     float64
	MinConsecutive int
}

// FromDefaults builds a Config from the defaults a plugin declares.
func FromDefaults(d plugin.Thresholds) Config {
	dir := GreaterIsBad
	if d.LessIsBad {
		dir = LessIsBad
	}
	return Config{
		Warning:        d.Warning,
		Critical:       d.Critical,
		Direction:      dir,
		MinConsecutive: 1,
	}
}

// Validate enforces that warning and critical are ordered consistently with
// the comparison direction.
func (c Config) Validate() error {
	switch c.Direction {
	case GreaterIsBad:
		if c.Critical < c.Warning {
			return fmt.Errorf("critical level %v below warning level %v with greater-is-bad semantics", c.Critical, c.Warning)
		}
	case LessIsBad:
		if c.Critical > c.Warning {
			return fmt.Errorf("critical level %v above warning level %v with less-is-bad semantics", c.Critical, c.Warning)
		}
	}
	if c.Hysteresis < 0 {
		return fmt.Errorf("hysteresis band must be >= 0, got %v", c.Hysteresis)
	}
	if c.MinConsecutive < 1 {
		return fmt.Errorf("min_consecutive must be >= 1, got %d", c.MinConsecutive)
	}
	return nil
}

// Classify is the pure mapping of a value to a status level. Comparisons are
// inclusive: a value exactly at the warning level yields WARNING.
func Classify(value float64, cfg Config) plugin.Status {
	if math.IsNaN(value) {
		return plugin.StatusUnknown
	}
	switch cfg.Direction {
	case LessIsBad:
		if value <= cfg.Critical {
			return plugin.StatusCritical
		}
		if value <= cfg.Warning {
			return plugin.StatusWarning
		}
	default:
		if value >= cfg.Critical {
			return plugin.StatusCritical
		}
		if value >= cfg.Warning {
			return plugin.StatusWarning
		}
	}
	return plugin.StatusOK
}

// Evaluator holds the per-plugin state machine: the current level, the last
// transition and the count of consecutive samples in the candidate band.
type Evaluator struct {
	cfg Config

	current        plugin.Status
	candidate      plugin.Status
	candidateCount int
	lastTransition time.Time
}

// NewEvaluator returns an evaluator starting at OK.
func NewEvaluator(cfg Config) (*Evaluator, error) {
	if cfg.MinConsecutive < 1 {
		cfg.MinConsecutive = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{cfg: cfg, current: plugin.StatusOK}, nil
}

// Current returns the held status level.
func (e *Evaluator) Current() plugin.Status {
	return e.current
}

// LastTransition returns the time of the last level change.
func (e *Evaluator) LastTransition() time.Time {
	return e.lastTransition
}

// Evaluate classifies one reading and returns the held level. Escalation
// requires MinConsecutive samples in the new band; de-escalation additionally
// requires the value to cross the threshold by the hysteresis band.
func (e *Evaluator) Evaluate(r *plugin.Reading) plugin.Status {
	raw := Classify(r.Value, e.cfg)
	if raw == plugin.StatusUnknown {
		// Unknown readings do not move the state machine.
		return plugin.StatusUnknown
	}

	if raw == e.current {
		e.candidate = raw
		e.candidateCount = 0
		return e.current
	}

	if raw == e.candidate {
		e.candidateCount++
	} else {
		e.candidate = raw
		e.candidateCount = 1
	}

	if e.candidateCount < e.cfg.MinConsecutive {
		return e.current
	}

	if !raw.Worse(e.current) && !e.crossedBand(r.Value, raw) {
		// Inside the hysteresis band: hold the previous level.
		return e.current
	}

	e.current = raw
	e.candidateCount = 0
	e.lastTransition = r.Timestamp
	return e.current
}

// crossedBand reports whether value cleared the de-escalation threshold for
// the target level by the hysteresis band.
func (e *Evaluator) crossedBand(value float64, target plugin.Status) bool {
	// The level being left determines which threshold must be crossed: the
	// warning level when dropping to OK, the critical level when dropping
	// to WARNING.
	var level float64
	switch target {
	case plugin.StatusOK:
		level = e.cfg.Warning
	case plugin.StatusWarning:
		level = e.cfg.Critical
	default:
		return true
	}

	if e.cfg.Direction == LessIsBad {
		return value > level+e.cfg.Hysteresis
	}
	return value < level-e.cfg.Hysteresis
}
