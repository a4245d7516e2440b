// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package crashreport writes a JSON snapshot of process context when the
// agent dies on a fatal error, so the failure can be diagnosed after the
// process is gone.
package crashreport

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/serversentry/serversentry/pkg/errs"
	"github.com/serversentry/serversentry/pkg/version"
)

// Report is the persisted crash context.
type Report struct {
	Timestamp string   `json:"timestamp"`
	Version   string   `json:"version"`
	GoVersion string   `json:"go_version"`
	OS        string   `json:"os"`
	Arch      string   `json:"arch"`
	PID       int      `json:"pid"`
	Hostname  string   `json:"hostname"`
	Args      []string `json:"args"`
	Error     string   `json:"error"`
	ErrorKind string   `json:"error_kind"`
	Resource  string   `json:"resource,omitempty"`
	Remedy    string   `json:"remedy,omitempty"`
	Stack     string   `json:"stack"`
}

// Write persists a crash report for fatalErr under dir and returns the
// report path. It must not fail loudly: the process is already dying.
func Write(dir string, fatalErr error) (string, error) {
	host, _ := os.Hostname()

	stack := make([]byte, 16384)
	stack = stack[:runtime.Stack(stack, false)]

	report := Report{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version.Full(),
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		PID:       os.Getpid(),
		Hostname:  host,
		Args:      os.Args,
		Error:     fatalErr.Error(),
		ErrorKind: errs.KindOf(fatalErr).String(),
		Stack:     string(stack),
	}

	var serr *errs.Error
	if errors.As(fatalErr, &serr) {
		report.Resource = serr.Resource
		report.Remedy = serr.Remedy
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, time.Now().UTC().Format("crash_20060102_150405.json"))
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
