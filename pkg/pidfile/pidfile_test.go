// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWritePID(t *testing.T) {
	dir := t.TempDir()

	pidFilePath := filepath.Join(dir, "this_should_be_created", "serversentry.pid")
	err := WritePID(pidFilePath)
	assert.NoError(t, err)
	data, err := os.ReadFile(pidFilePath)
	assert.NoError(t, err)
	pid, err := strconv.Atoi(string(data))
	assert.NoError(t, err)
	assert.Equal(t, pid, os.Getpid())
}

func TestWritePIDRefusesLivePidfile(t *testing.T) {
	dir := t.TempDir()

	pidFilePath := filepath.Join(dir, "serversentry.pid")
	assert.NoError(t, os.WriteFile(pidFilePath, []byte(strconv.Itoa(os.Getpid())), 0644))

	err := WritePID(pidFilePath)
	assert.Error(t, err)
}

func TestReadPIDCorrupt(t *testing.T) {
	dir := t.TempDir()

	pidFilePath := filepath.Join(dir, "serversentry.pid")
	assert.NoError(t, os.WriteFile(pidFilePath, []byte("not-a-pid"), 0644))

	_, err := ReadPID(pidFilePath)
	assert.Error(t, err)
}

func TestIsProcess(t *testing.T) {
	assert.True(t, isProcess(os.Getpid()))
}
