// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package app holds the serversentry CLI: one file per subcommand, all
// attached to SentryCmd.
package app

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/serversentry/serversentry/pkg/config"
	"github.com/serversentry/serversentry/pkg/plugin"
	"github.com/serversentry/serversentry/pkg/util/log"
	"github.com/serversentry/serversentry/pkg/version"
)

var (
	// SentryCmd is the root command.
	SentryCmd = &cobra.Command{
		Use:   "serversentry [command]",
		Short: "Host monitoring agent with threshold, anomaly and composite alerting",
		Long: `ServerSentry samples host metrics through plugins, evaluates thresholds,
anomalies and composite rules against them, and notifies the configured
channels when something needs attention.`,
		SilenceUsage: true,
	}

	confFilePath string
	flagNoColor  bool
)

func init() {
	SentryCmd.PersistentFlags().StringVarP(&confFilePath, "cfgpath", "c", "",
		"path to the serversentry configuration file")
	SentryCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false,
		"disable colored output")
	SentryCmd.Version = version.Full()
}

// setupConfig loads the root configuration and the logger. Every subcommand
// calls it first.
func setupConfig() error {
	if flagNoColor {
		color.NoColor = true
	}
	if err := config.Load(confFilePath); err != nil {
		return err
	}
	return log.SetupDefaultLogger(strings.ToLower(config.Sentry.GetString("system.log_level")))
}

// statusText renders a status level with the conventional color.
func statusText(s plugin.Status) string {
	switch s {
	case plugin.StatusOK:
		return color.GreenString(s.String())
	case plugin.StatusWarning:
		return color.YellowString(s.String())
	case plugin.StatusCritical:
		return color.RedString(s.String())
	default:
		return color.HiBlackString(s.String())
	}
}

func printHeader(title string) {
	fmt.Println(color.New(color.Bold).Sprint(title))
	fmt.Println(strings.Repeat("=", len(title)))
}
