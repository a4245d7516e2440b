// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package notify renders alert events into channel payloads and delivers
// them with bounded retries. Channels are isolated from each other; one
// failing webhook never blocks the rest.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/serversentry/serversentry/pkg/plugin"
	"github.com/serversentry/serversentry/pkg/util/hostname"
)

// Kind classifies an event for template selection and payload status.
type Kind string

const (
	KindAlert    Kind = "alert"
	KindInfo     Kind = "info"
	KindTest     Kind = "test"
	KindRecovery Kind = "recovery"
)

// SourceKind says which subsystem raised the event.
type SourceKind string

const (
	SourcePlugin    SourceKind = "plugin"
	SourceAnomaly   SourceKind = "anomaly"
	SourceComposite SourceKind = "composite"
	SourceTest      SourceKind = "test"
	SourceInfo      SourceKind = "info"
)

// Event is one notification to deliver. It is immutable once built.
type Event struct {
	ID         string
	Kind       Kind
	Source     SourceKind
	SourceID   string
	Severity   plugin.Status
	StatusCode int
	Title      string
	Message    string
	Reading    *plugin.Reading
	Facts      hostname.Facts
	Timestamp  time.Time

	// Channels restricts delivery; empty means every enabled channel.
	Channels []string
}

// NewEvent builds an event with a fresh id and the current host facts
// stamped in.
func NewEvent(kind Kind, source SourceKind, sourceID string, severity plugin.Status, title, message string) *Event {
	var facts hostname.Facts
	if f, err := hostname.GetFacts(context.Background()); err == nil && f != nil {
		facts = *f
	}
	return &Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Source:     source,
		SourceID:   sourceID,
		Severity:   severity,
		StatusCode: int(severity),
		Title:      title,
		Message:    message,
		Facts:      facts,
		Timestamp:  time.Now().UTC(),
	}
}

// ThrottleKey identifies events that should share the global minimum
// interval: same source id, same severity.
func (e *Event) ThrottleKey() string {
	return fmt.Sprintf("%s|%d", e.SourceID, int(e.Severity))
}

// MetricsLine flattens the reading's attributes into "k=v, k=v" for
// factset-style payload sections. Keys are sorted for stable output.
func (e *Event) MetricsLine() string {
	if e.Reading == nil || len(e.Reading.Attributes) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Reading.Attributes))
	for k := range e.Reading.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Reading.Attributes[k]))
	}
	return strings.Join(parts, ", ")
}

// Color returns the hex colour used by card-style channels for this
// event's severity.
func (e *Event) Color() string {
	if e.Kind == KindRecovery {
		return "36a64f"
	}
	switch e.Severity {
	case plugin.StatusOK:
		return "36a64f"
	case plugin.StatusWarning:
		return "ffaa00"
	case plugin.StatusCritical:
		return "cc0000"
	default:
		return "999999"
	}
}
