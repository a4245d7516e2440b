// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/serversentry/serversentry/pkg/config"
	"github.com/serversentry/serversentry/pkg/pidfile"
	"github.com/serversentry/serversentry/pkg/plugin"
	"github.com/serversentry/serversentry/pkg/threshold"
	"github.com/serversentry/serversentry/pkg/util/hostname"
	"github.com/serversentry/serversentry/pkg/version"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a one-shot snapshot of the agent and its plugins",
	Long:  `Samples every enabled plugin once and prints the result. Nothing is sent.`,
	RunE:  status,
}

func init() {
	SentryCmd.AddCommand(statusCmd)
}

func status(*cobra.Command, []string) error {
	if err := setupConfig(); err != nil {
		return err
	}

	printHeader("ServerSentry Status")
	fmt.Printf("  version:  %s\n", version.Full())

	if facts, err := hostname.GetFacts(context.Background()); err == nil {
		fmt.Printf("  host:     %s (%s)\n", facts.Hostname, facts.IP)
		fmt.Printf("  os:       %s %s\n", facts.Platform, facts.Kernel)
	}

	pidPath := config.Sentry.GetString("system.pid_file")
	if pid, err := pidfile.ReadPID(pidPath); err == nil {
		fmt.Printf("  daemon:   running (pid %d)\n", pid)
	} else {
		fmt.Printf("  daemon:   not running\n")
	}
	fmt.Printf("  interval: %s\n", config.CheckInterval())
	fmt.Println()

	registry, err := buildRegistry("")
	if err != nil {
		return err
	}

	readings := sampleAll(registry)
	fmt.Println("Plugins")
	fmt.Println("-------")
	for _, name := range registry.Names() {
		reading, ok := readings[name]
		if !ok {
			fmt.Printf("  %-10s %s\n", name, statusText(plugin.StatusUnknown))
			continue
		}
		p, _ := registry.Get(name)
		level := threshold.Classify(reading.Value, threshold.FromDefaults(p.Info().Defaults))
		fmt.Printf("  %-10s %s  value=%.2f  %s\n",
			name, statusText(level), reading.Value, reading.Message)
	}
	return nil
}
