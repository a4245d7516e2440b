// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package crashreport

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serversentry/serversentry/pkg/errs"
)

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	fatal := errs.New(errs.PermissionDenied, "/var/lib/serversentry", errors.New("read-only filesystem")).
		WithRemedy("make the state directory writable")

	path, err := Write(dir, fatal)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var report Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "permission_denied", report.ErrorKind)
	assert.Equal(t, "/var/lib/serversentry", report.Resource)
	assert.Equal(t, "make the state directory writable", report.Remedy)
	assert.Contains(t, report.Error, "read-only filesystem")
	assert.Equal(t, os.Getpid(), report.PID)
	assert.NotEmpty(t, report.Stack)
	assert.NotEmpty(t, report.Version)
}

func TestWriteUntypedError(t *testing.T) {
	path, err := Write(t.TempDir(), errors.New("boom"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var report Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "internal", report.ErrorKind)
	assert.Empty(t, report.Remedy)
}
