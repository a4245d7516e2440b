// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package main

import (
	"os"

	"github.com/serversentry/serversentry/cmd/serversentry/app"
	"github.com/serversentry/serversentry/pkg/util/log"

	// Register the built-in plugins.
	_ "github.com/serversentry/serversentry/pkg/plugins/cpu"
	_ "github.com/serversentry/serversentry/pkg/plugins/disk"
	_ "github.com/serversentry/serversentry/pkg/plugins/memory"
	_ "github.com/serversentry/serversentry/pkg/plugins/process"
)

func main() {
	if err := app.SentryCmd.Execute(); err != nil {
		log.Flush()
		os.Exit(-1)
	}
	log.Flush()
}
