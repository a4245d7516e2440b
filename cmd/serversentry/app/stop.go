// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package app

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/serversentry/serversentry/pkg/config"
	"github.com/serversentry/serversentry/pkg/errs"
	"github.com/serversentry/serversentry/pkg/pidfile"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running daemon to stop",
	RunE:  stop,
}

func init() {
	SentryCmd.AddCommand(stopCmd)
}

func stop(*cobra.Command, []string) error {
	if err := setupConfig(); err != nil {
		return err
	}

	pidPath := config.Sentry.GetString("system.pid_file")
	pid, err := pidfile.ReadPID(pidPath)
	if err != nil {
		return errs.New(errs.NotFound, pidPath, err).
			WithRemedy("is the daemon running?")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return errs.New(errs.NotFound, pidPath, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return errs.New(errs.Internal, pidPath, err).
			WithRemedy("check that you have permission to signal the daemon")
	}
	fmt.Printf("sent SIGTERM to pid %d\n", pid)
	return nil
}
