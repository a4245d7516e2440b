// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package alert

import (
	"encoding/json"
	"fmt"
)

// State is the lifecycle position of one alert key.
type State int

const (
	StateNormal State = iota
	StateFiring
	StateSuppressed
	StateRecovered
)

var stateNames = map[State]string{
	StateNormal:     "NORMAL",
	StateFiring:     "FIRING",
	StateSuppressed: "SUPPRESSED",
	StateRecovered:  "RECOVERED",
}

var stateValues = map[string]State{
	"NORMAL":     StateNormal,
	"FIRING":     StateFiring,
	"SUPPRESSED": StateSuppressed,
	"RECOVERED":  StateRecovered,
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalJSON writes the state as its name so the persisted file stays
// readable and stable across releases.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the state name; anything else is an error.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := stateValues[name]
	if !ok {
		return fmt.Errorf("unknown alert state %q", name)
	}
	*s = v
	return nil
}

// Record is the persisted per-key state. Consecutive counts non-OK ticks
// while the key is quiet and OK ticks while it is firing.
type Record struct {
	State        State  `json:"state"`
	LastEmit     int64  `json:"last_emit"`
	Consecutive  int    `json:"consecutive_triggers"`
	LastRecovery int64  `json:"last_recovery"`
	Severity     int    `json:"severity"`
	InCooldown   bool   `json:"in_cooldown"`
	InSilence    bool   `json:"in_silence_window"`
}
