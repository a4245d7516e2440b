// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package app

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/serversentry/serversentry/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version info",
	Run: func(*cobra.Command, []string) {
		fmt.Printf("serversentry %s (%s %s/%s)\n",
			version.Full(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	SentryCmd.AddCommand(versionCmd)
}
