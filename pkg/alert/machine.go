// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package alert decides, per alert key and per tick, whether a classification
// becomes an emitted notification, a suppression, or a recovery. It is the
// only writer of the on-disk alert state.
package alert

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/serversentry/serversentry/pkg/errs"
	"github.com/serversentry/serversentry/pkg/plugin"
	"github.com/serversentry/serversentry/pkg/util/log"
)

// Source identifies which evaluator produced a verdict. Each source carries
// its own default cooldown.
type Source int

const (
	SourcePlugin Source = iota
	SourceAnomaly
	SourceComposite
)

const (
	// DefaultPluginCooldown applies to threshold alerts.
	DefaultPluginCooldown = 300 * time.Second
	// DefaultAnomalyCooldown applies to anomaly alerts.
	DefaultAnomalyCooldown = 1800 * time.Second

	stateFileName = "alert_state.json"
)

// Verdict is one evaluator result for one alert key on one tick.
type Verdict struct {
	Key            string
	Source         Source
	Status         plugin.Status
	Message        string
	Cooldown       time.Duration // 0 selects the source default
	MinConsecutive int           // 0 selects 1
	NotifyRecovery bool

	// Anomaly gating: the verdict only fires once ConsecutiveAnomalies
	// reaches RequiredConsecutive. Both zero for other sources.
	ConsecutiveAnomalies int
	RequiredConsecutive  int
}

// Decision is what the machine wants done for a verdict.
type Decision struct {
	Key      string
	State    State
	Emit     bool
	Recovery bool
	Severity plugin.Status
	Message  string
}

// Machine holds the per-key alert state and persists it atomically after
// every transition. Process is serialised; the scheduler is its only caller.
type Machine struct {
	mu       sync.Mutex
	path     string
	clock    clock.Clock
	states   map[string]*Record
	silences []Window
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock substitutes the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithSilenceWindows sets the daily windows during which no key emits.
func WithSilenceWindows(windows []Window) Option {
	return func(m *Machine) { m.silences = windows }
}

// NewMachine loads persisted state from stateDir (unreadable state starts
// every key at NORMAL) and returns a ready machine.
func NewMachine(stateDir string, opts ...Option) *Machine {
	m := &Machine{
		path:   filepath.Join(stateDir, stateFileName),
		clock:  clock.New(),
		states: make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.load()
	return m
}

func (m *Machine) load() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("alert: cannot read state file %s, starting fresh: %s", m.path, err) //nolint:errcheck
		}
		return
	}
	states := make(map[string]*Record)
	if err := json.Unmarshal(data, &states); err != nil {
		log.Warnf("alert: corrupt state file %s, starting fresh: %s", m.path, err) //nolint:errcheck
		return
	}
	m.states = states
}

// save writes the full state map with a temp-file-then-rename so a crash
// mid-write never leaves a torn file.
func (m *Machine) save() error {
	data, err := json.MarshalIndent(m.states, "", "  ")
	if err != nil {
		return errs.New(errs.Internal, m.path, err)
	}
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errs.New(errs.PermissionDenied, dir, err).
			WithRemedy("make the state directory writable by the agent user")
	}
	tmp, err := os.CreateTemp(dir, stateFileName+".tmp")
	if err != nil {
		return errs.New(errs.PermissionDenied, dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.New(errs.Internal, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.New(errs.Internal, tmpName, err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return errs.New(errs.Internal, m.path, err)
	}
	return nil
}

// Flush forces the current state map to disk.
func (m *Machine) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save()
}

// Record returns a copy of the persisted record for key, if present.
func (m *Machine) Record(key string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.states[key]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

func (v *Verdict) cooldown() time.Duration {
	if v.Cooldown > 0 {
		return v.Cooldown
	}
	if v.Source == SourceAnomaly {
		return DefaultAnomalyCooldown
	}
	return DefaultPluginCooldown
}

func (v *Verdict) minConsecutive() int {
	if v.MinConsecutive > 0 {
		return v.MinConsecutive
	}
	return 1
}

// firing reports whether the verdict counts as an active trigger. Anomaly
// verdicts only fire once the consecutive run is long enough.
func (v *Verdict) firing() bool {
	if v.Status == plugin.StatusOK || v.Status == plugin.StatusUnknown {
		return false
	}
	if v.Source == SourceAnomaly && v.RequiredConsecutive > 0 {
		return v.ConsecutiveAnomalies >= v.RequiredConsecutive
	}
	return true
}

func (m *Machine) inSilence(now time.Time) bool {
	for _, w := range m.silences {
		if w.Contains(now) {
			return true
		}
	}
	return false
}

// Process feeds one verdict through the state machine and persists the
// resulting record. UNKNOWN classifications hold the current state.
func (m *Machine) Process(v Verdict) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.states[v.Key]
	if !ok {
		rec = &Record{State: StateNormal}
		m.states[v.Key] = rec
	}

	if v.Status == plugin.StatusUnknown {
		return Decision{Key: v.Key, State: rec.State, Severity: plugin.StatusUnknown}
	}

	now := m.clock.Now()
	before := *rec
	decision := m.transition(rec, v, now)

	if *rec != before {
		if err := m.save(); err != nil {
			log.Errorf("alert: persisting state for %s: %s", v.Key, err) //nolint:errcheck
		}
	}
	return decision
}

func (m *Machine) transition(rec *Record, v Verdict, now time.Time) Decision {
	d := Decision{Key: v.Key, Severity: v.Status, Message: v.Message}

	// RECOVERED drains to NORMAL after one tick, then the tick is handled
	// from NORMAL like any other.
	if rec.State == StateRecovered {
		rec.State = StateNormal
	}

	switch rec.State {
	case StateNormal, StateSuppressed:
		if !v.firing() {
			rec.Consecutive = 0
			rec.State = StateNormal
			rec.InCooldown = false
			rec.InSilence = false
			break
		}
		rec.Consecutive++
		if rec.Consecutive < v.minConsecutive() {
			break
		}
		rec.InCooldown = rec.LastEmit > 0 && now.Sub(time.Unix(rec.LastEmit, 0)) < v.cooldown()
		rec.InSilence = m.inSilence(now)
		if rec.InCooldown || rec.InSilence {
			rec.State = StateSuppressed
			log.Debugf("alert: %s suppressed (cooldown=%v silence=%v)", v.Key, rec.InCooldown, rec.InSilence)
			break
		}
		rec.State = StateFiring
		rec.LastEmit = now.Unix()
		rec.Severity = int(v.Status)
		d.Emit = true

	case StateFiring:
		if v.firing() {
			rec.Consecutive = 0
			if int(v.Status) > rec.Severity {
				// Escalation restarts the cooldown clock.
				rec.LastEmit = now.Unix()
				rec.Severity = int(v.Status)
				d.Emit = true
			} else if int(v.Status) < rec.Severity {
				rec.Severity = int(v.Status)
			}
			break
		}
		rec.Consecutive++
		if rec.Consecutive < v.minConsecutive() {
			break
		}
		rec.State = StateRecovered
		rec.LastRecovery = now.Unix()
		rec.Consecutive = 0
		rec.InCooldown = false
		rec.InSilence = false
		if v.NotifyRecovery {
			d.Recovery = true
		}
	}

	d.State = rec.State
	return d
}
