// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package plugin defines the contract implemented by all metric samplers.
package plugin

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Status is the level a reading is classified at.
type Status int

// Status levels. The values double as one-shot exit codes.
const (
	StatusOK Status = iota
	StatusWarning
	StatusCritical
	StatusUnknown
)

var statusNames = map[Status]string{
	StatusOK:       "OK",
	StatusWarning:  "WARNING",
	StatusCritical: "CRITICAL",
	StatusUnknown:  "UNKNOWN",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Worse reports whether s is a higher severity than other. UNKNOWN never
// outranks a concrete level.
func (s Status) Worse(other Status) bool {
	if s == StatusUnknown || other == StatusUnknown {
		return s != StatusUnknown && other == StatusUnknown
	}
	return s > other
}

// Reading is the immutable record produced by one plugin invocation.
type Reading struct {
	PluginID   string                 `json:"plugin_id"`
	Timestamp  time.Time              `json:"timestamp"`
	Value      float64                `json:"value"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	Status     Status                 `json:"status"`
	Message    string                 `json:"message"`
}

// Attribute resolves a named attribute of the reading. The primary value is
// exposed under the name "value".
func (r *Reading) Attribute(name string) (interface{}, bool) {
	if name == "value" {
		return r.Value, true
	}
	v, ok := r.Attributes[name]
	return v, ok
}

// Thresholds carries the default alerting levels a plugin declares.
type Thresholds struct {
	Warning   float64
	Critical  float64
	LessIsBad bool
}

// Meta describes a plugin: its identity and the attribute set its readings
// are declared to produce.
type Meta struct {
	Name        string
	Version     string
	Description string
	Attributes  []string
	Defaults    Thresholds
}

// HasAttribute reports whether the plugin declares the named attribute.
func (m Meta) HasAttribute(name string) bool {
	if name == "value" {
		return true
	}
	for _, a := range m.Attributes {
		if a == name {
			return true
		}
	}
	return false
}

// Plugin is the interface implemented by all metric samplers.
type Plugin interface {
	Info() Meta                                    // plugin metadata
	Configure(cfg map[string]interface{}) error    // bind the loaded configuration
	Check(ctx context.Context) (*Reading, error)   // produce one reading
}

// Validate checks that a reading is well formed. Malformed output counts as
// a plugin error, not a reading.
func Validate(r *Reading) error {
	if r == nil {
		return fmt.Errorf("plugin returned a nil reading")
	}
	if r.PluginID == "" {
		return fmt.Errorf("reading is missing its plugin id")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("reading from %s is missing its timestamp", r.PluginID)
	}
	if math.IsNaN(r.Value) && r.Status != StatusUnknown {
		return fmt.Errorf("reading from %s has a NaN value but status %s", r.PluginID, r.Status)
	}
	return nil
}
