// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package anomaly

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/serversentry/serversentry/pkg/util/log"
)

// Verdict is one logged detection outcome.
type Verdict struct {
	Timestamp time.Time `json:"timestamp"`
	Plugin    string    `json:"plugin"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	ZScore    float64   `json:"z_score"`
	IsAnomaly bool      `json:"is_anomaly"`
	Types     []Type    `json:"types,omitempty"`
}

// ResultLog appends detection verdicts to per-day files under
// <dir>/results/<plugin>_YYYYMMDD.log and answers consecutive-anomaly
// queries over them.
type ResultLog struct {
	dir   string
	clock clock.Clock
}

// NewResultLog returns a log rooted at dir (the anomaly log directory).
func NewResultLog(dir string, clk clock.Clock) *ResultLog {
	if clk == nil {
		clk = clock.New()
	}
	return &ResultLog{dir: dir, clock: clk}
}

func (l *ResultLog) resultsDir() string {
	return filepath.Join(l.dir, "results")
}

func (l *ResultLog) fileFor(pluginName string, day time.Time) string {
	return filepath.Join(l.resultsDir(), fmt.Sprintf("%s_%s.log", pluginName, day.UTC().Format("20060102")))
}

// Append writes one verdict as a JSON line to the plugin's per-day file.
func (l *ResultLog) Append(v Verdict) error {
	if err := os.MkdirAll(l.resultsDir(), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.fileFor(v.Plugin, v.Timestamp), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// ConsecutiveAnomalies counts contiguous anomalous verdicts from the most
// recent entry backwards, walking into earlier day files for as long as every
// entry in a day is anomalous. The walk stops at the first non-anomalous
// verdict or the first missing day file.
func (l *ResultLog) ConsecutiveAnomalies(pluginName string) int {
	count := 0
	for day := l.clock.Now(); ; day = day.AddDate(0, 0, -1) {
		verdicts, err := l.readDay(pluginName, day)
		if err != nil {
			return count
		}
		for i := len(verdicts) - 1; i >= 0; i-- {
			if !verdicts[i].IsAnomaly {
				return count
			}
			count++
		}
		if len(verdicts) == 0 {
			return count
		}
	}
}

func (l *ResultLog) readDay(pluginName string, day time.Time) ([]Verdict, error) {
	f, err := os.Open(l.fileFor(pluginName, day))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var verdicts []Verdict
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var v Verdict
		if err := json.Unmarshal(scanner.Bytes(), &v); err != nil {
			// A torn or corrupt line ends a write; skip it.
			continue
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, nil
}

// LastNotification returns the time of the plugin's last anomaly
// notification, or the zero time when none was recorded.
func (l *ResultLog) LastNotification(pluginName string) time.Time {
	path := filepath.Join(l.resultsDir(), pluginName+"_last_notification")
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}
	}
	epoch, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(epoch, 0).UTC()
}

// SetLastNotification records the time of an anomaly notification.
func (l *ResultLog) SetLastNotification(pluginName string, t time.Time) error {
	if err := os.MkdirAll(l.resultsDir(), 0755); err != nil {
		return err
	}
	path := filepath.Join(l.resultsDir(), pluginName+"_last_notification")
	return os.WriteFile(path, []byte(strconv.FormatInt(t.Unix(), 10)), 0644)
}

// Prune removes result logs older than retentionDays.
func (l *ResultLog) Prune(retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	cutoff := l.clock.Now().AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(l.resultsDir())
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".log") {
			continue
		}
		base := strings.TrimSuffix(name, ".log")
		idx := strings.LastIndex(base, "_")
		if idx < 0 {
			continue
		}
		day, err := time.Parse("20060102", base[idx+1:])
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			path := filepath.Join(l.resultsDir(), name)
			if err := os.Remove(path); err != nil {
				log.Warnf("anomaly: cannot prune %s: %s", path, err) //nolint:errcheck
			}
		}
	}
}
