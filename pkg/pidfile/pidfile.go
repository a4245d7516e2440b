// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package pidfile manages the daemon pidfile.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// WritePID writes the current process id to pidfilePath, creating parent
// directories as needed. It refuses to overwrite a pidfile owned by a
// process that is still alive.
func WritePID(pidfilePath string) error {
	if pid, err := ReadPID(pidfilePath); err == nil && isProcess(pid) {
		return fmt.Errorf("pidfile %s already exists and process %d is running", pidfilePath, pid)
	}

	if err := os.MkdirAll(filepath.Dir(pidfilePath), os.FileMode(0755)); err != nil {
		return err
	}

	return os.WriteFile(pidfilePath, []byte(strconv.Itoa(os.Getpid())), 0644)
}

// ReadPID returns the pid stored in pidfilePath.
func ReadPID(pidfilePath string) (int, error) {
	data, err := os.ReadFile(pidfilePath)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("pidfile %s is corrupt: %v", pidfilePath, err)
	}
	return pid, nil
}

// Remove deletes the pidfile, ignoring a file that is already gone.
func Remove(pidfilePath string) {
	_ = os.Remove(pidfilePath)
}

// isProcess reports whether a process with the given pid exists.
func isProcess(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
