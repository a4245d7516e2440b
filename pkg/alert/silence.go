// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/serversentry/serversentry/pkg/errs"
)

// Window is a daily silence window in local wall-clock time. A window whose
// end precedes its start wraps past midnight (22:00-06:00).
type Window struct {
	start int // minutes since midnight
	end   int
}

// ParseWindow parses "HH:MM-HH:MM".
func ParseWindow(s string) (Window, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return Window{}, errs.Newf(errs.InvalidInput, "silence window",
			"silence window %q is not of the form HH:MM-HH:MM", s)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return Window{}, errs.New(errs.InvalidInput, "silence window", err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return Window{}, errs.New(errs.InvalidInput, "silence window", err)
	}
	return Window{start: start, end: end}, nil
}

// ParseWindows parses a list of window strings, failing on the first bad one.
func ParseWindows(specs []string) ([]Window, error) {
	windows := make([]Window, 0, len(specs))
	for _, s := range specs {
		w, err := ParseWindow(s)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("bad clock time %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return h*60 + m, nil
}

// Contains reports whether t falls inside the window. Start is inclusive,
// end exclusive.
func (w Window) Contains(t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()
	if w.start <= w.end {
		return minute >= w.start && minute < w.end
	}
	// wraps midnight
	return minute >= w.start || minute < w.end
}
