// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package alert

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serversentry/serversentry/pkg/plugin"
)

func newTestMachine(t *testing.T, opts ...Option) (*Machine, *clock.Mock) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	opts = append([]Option{WithClock(mock)}, opts...)
	return NewMachine(t.TempDir(), opts...), mock
}

func cpuVerdict(status plugin.Status) Verdict {
	return Verdict{
		Key:            "cpu",
		Source:         SourcePlugin,
		Status:         status,
		Cooldown:       300 * time.Second,
		NotifyRecovery: true,
	}
}

func TestWarningThenCooldown(t *testing.T) {
	m, mock := newTestMachine(t)

	// 50, 65, 75, 78, 77 against warning=70: the evaluator classifies
	// OK, OK, WARNING, WARNING, WARNING.
	statuses := []plugin.Status{
		plugin.StatusOK, plugin.StatusOK,
		plugin.StatusWarning, plugin.StatusWarning, plugin.StatusWarning,
	}
	var emitted []int
	for i, st := range statuses {
		d := m.Process(cpuVerdict(st))
		if d.Emit {
			emitted = append(emitted, i+1)
			assert.Equal(t, plugin.StatusWarning, d.Severity)
		}
		mock.Add(60 * time.Second)
	}
	assert.Equal(t, []int{3}, emitted)
}

func TestEscalationEmitsNewEvent(t *testing.T) {
	m, mock := newTestMachine(t)

	// 75, 80, 88, 90: WARNING, WARNING, CRITICAL, CRITICAL.
	d := m.Process(cpuVerdict(plugin.StatusWarning))
	assert.True(t, d.Emit)
	assert.Equal(t, plugin.StatusWarning, d.Severity)
	mock.Add(60 * time.Second)

	d = m.Process(cpuVerdict(plugin.StatusWarning))
	assert.False(t, d.Emit)
	mock.Add(60 * time.Second)

	d = m.Process(cpuVerdict(plugin.StatusCritical))
	assert.True(t, d.Emit)
	assert.Equal(t, plugin.StatusCritical, d.Severity)
	mock.Add(60 * time.Second)

	d = m.Process(cpuVerdict(plugin.StatusCritical))
	assert.False(t, d.Emit)
}

func TestRecoveryThenNormal(t *testing.T) {
	m, mock := newTestMachine(t)

	m.Process(cpuVerdict(plugin.StatusWarning))
	mock.Add(60 * time.Second)

	d := m.Process(cpuVerdict(plugin.StatusOK))
	assert.True(t, d.Recovery)
	assert.False(t, d.Emit)
	assert.Equal(t, StateRecovered, d.State)
	mock.Add(60 * time.Second)

	d = m.Process(cpuVerdict(plugin.StatusOK))
	assert.Equal(t, StateNormal, d.State)
	assert.False(t, d.Recovery)
}

func TestRecoveryWithoutNotification(t *testing.T) {
	m, mock := newTestMachine(t)

	v := cpuVerdict(plugin.StatusWarning)
	v.NotifyRecovery = false
	m.Process(v)
	mock.Add(60 * time.Second)

	v.Status = plugin.StatusOK
	d := m.Process(v)
	assert.Equal(t, StateRecovered, d.State)
	assert.False(t, d.Recovery)
}

func TestCooldownSuppressesRefire(t *testing.T) {
	m, mock := newTestMachine(t)

	m.Process(cpuVerdict(plugin.StatusWarning))
	mock.Add(60 * time.Second)
	m.Process(cpuVerdict(plugin.StatusOK)) // RECOVERED
	mock.Add(60 * time.Second)
	m.Process(cpuVerdict(plugin.StatusOK)) // NORMAL

	// Refires 60s after the last emission, inside the 300s cooldown.
	mock.Add(60 * time.Second)
	d := m.Process(cpuVerdict(plugin.StatusWarning))
	assert.False(t, d.Emit)
	assert.Equal(t, StateSuppressed, d.State)

	rec, ok := m.Record("cpu")
	require.True(t, ok)
	assert.True(t, rec.InCooldown)

	// Once the cooldown expires and it is still non-OK, it fires.
	mock.Add(300 * time.Second)
	d = m.Process(cpuVerdict(plugin.StatusWarning))
	assert.True(t, d.Emit)
	assert.Equal(t, StateFiring, d.State)
}

func TestMinConsecutiveDebounce(t *testing.T) {
	m, mock := newTestMachine(t)

	v := cpuVerdict(plugin.StatusWarning)
	v.MinConsecutive = 2

	d := m.Process(v)
	assert.False(t, d.Emit)
	mock.Add(60 * time.Second)

	d = m.Process(v)
	assert.True(t, d.Emit)
}

func TestAnomalyConsecutiveGate(t *testing.T) {
	m, mock := newTestMachine(t)

	v := Verdict{
		Key:                 "cpu",
		Source:              SourceAnomaly,
		Status:              plugin.StatusWarning,
		RequiredConsecutive: 3,
	}

	v.ConsecutiveAnomalies = 1
	assert.False(t, m.Process(v).Emit)
	mock.Add(60 * time.Second)

	v.ConsecutiveAnomalies = 2
	assert.False(t, m.Process(v).Emit)
	mock.Add(60 * time.Second)

	v.ConsecutiveAnomalies = 3
	assert.True(t, m.Process(v).Emit)
}

func TestSilenceWindowSuppresses(t *testing.T) {
	w, err := ParseWindow("11:00-13:00")
	require.NoError(t, err)

	m, mock := newTestMachine(t, WithSilenceWindows([]Window{w}))

	// Mock clock starts at 12:00, inside the window.
	d := m.Process(cpuVerdict(plugin.StatusWarning))
	assert.False(t, d.Emit)
	assert.Equal(t, StateSuppressed, d.State)

	rec, ok := m.Record("cpu")
	require.True(t, ok)
	assert.True(t, rec.InSilence)

	// 14:00 is outside the window; the key fires.
	mock.Add(2 * time.Hour)
	d = m.Process(cpuVerdict(plugin.StatusWarning))
	assert.True(t, d.Emit)
}

func TestUnknownHoldsState(t *testing.T) {
	m, mock := newTestMachine(t)

	m.Process(cpuVerdict(plugin.StatusWarning))
	mock.Add(60 * time.Second)

	d := m.Process(cpuVerdict(plugin.StatusUnknown))
	assert.Equal(t, StateFiring, d.State)
	assert.False(t, d.Emit)
	assert.False(t, d.Recovery)
	mock.Add(60 * time.Second)

	d = m.Process(cpuVerdict(plugin.StatusOK))
	assert.True(t, d.Recovery)
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))

	m := NewMachine(dir, WithClock(mock))
	d := m.Process(cpuVerdict(plugin.StatusWarning))
	require.True(t, d.Emit)

	// A fresh machine over the same directory sees the FIRING record and
	// does not re-emit for the same condition.
	mock.Add(60 * time.Second)
	m2 := NewMachine(dir, WithClock(mock))
	rec, ok := m2.Record("cpu")
	require.True(t, ok)
	assert.Equal(t, StateFiring, rec.State)

	d = m2.Process(cpuVerdict(plugin.StatusWarning))
	assert.False(t, d.Emit)
}

func TestPersistedStateRoundTripsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))

	m := NewMachine(dir, WithClock(mock))
	m.Process(cpuVerdict(plugin.StatusWarning))
	v := cpuVerdict(plugin.StatusCritical)
	v.Key = "memory"
	mock.Add(60 * time.Second)
	m.Process(v)

	first, err := os.ReadFile(filepath.Join(dir, stateFileName))
	require.NoError(t, err)

	states := make(map[string]*Record)
	require.NoError(t, json.Unmarshal(first, &states))
	second, err := json.MarshalIndent(states, "", "  ")
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestCorruptStateStartsFresh(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFileName), []byte("{not json"), 0644))

	machine := NewMachine(dir)
	_, ok := machine.Record("cpu")
	assert.False(t, ok)

	d := machine.Process(cpuVerdict(plugin.StatusWarning))
	assert.True(t, d.Emit)
}

func TestSilenceWindowParsing(t *testing.T) {
	w, err := ParseWindow("22:00-06:00")
	require.NoError(t, err)
	assert.True(t, w.Contains(time.Date(2024, 6, 15, 23, 30, 0, 0, time.UTC)))
	assert.True(t, w.Contains(time.Date(2024, 6, 15, 2, 0, 0, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)))

	for _, bad := range []string{"22:00", "25:00-06:00", "22:61-06:00", "junk"} {
		_, err := ParseWindow(bad)
		assert.Error(t, err, "input %q", bad)
	}

	windows, err := ParseWindows([]string{"01:00-02:00", "22:00-06:00"})
	require.NoError(t, err)
	assert.Len(t, windows, 2)
}
