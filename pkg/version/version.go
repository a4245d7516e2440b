// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package version holds the build version metadata.
package version

import "fmt"

// Default build time values, overridden at link time.
var (
	AgentVersion = "2.0.0"
	Commit       = ""
)

// Full returns the version string with the commit when available.
func Full() string {
	if Commit == "" {
		return AgentVersion
	}
	return fmt.Sprintf("%s (commit %s)", AgentVersion, Commit)
}
