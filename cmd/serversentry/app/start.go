// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/serversentry/serversentry/pkg/config"
	"github.com/serversentry/serversentry/pkg/crashreport"
	"github.com/serversentry/serversentry/pkg/errs"
	"github.com/serversentry/serversentry/pkg/pidfile"
	"github.com/serversentry/serversentry/pkg/util/log"
	"github.com/serversentry/serversentry/pkg/version"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the monitoring daemon",
	Long:  `Runs ticks at the configured interval until SIGINT or SIGTERM.`,
	RunE:  start,
}

func init() {
	SentryCmd.AddCommand(startCmd)
}

func start(*cobra.Command, []string) error {
	if err := setupConfig(); err != nil {
		return fatalStartup(err)
	}
	defer log.Flush()

	if !config.Sentry.GetBool("system.enabled") {
		return fatalStartup(errs.Newf(errs.InvalidInput, "system.enabled",
			"the agent is disabled by configuration").
			WithRemedy("set system.enabled to true"))
	}

	pidPath := config.Sentry.GetString("system.pid_file")
	if err := pidfile.WritePID(pidPath); err != nil {
		return fatalStartup(err)
	}
	defer pidfile.Remove(pidPath)

	registry, err := buildRegistry("")
	if err != nil {
		return fatalStartup(err)
	}
	sched, err := buildScheduler(registry)
	if err != nil {
		return fatalStartup(err)
	}

	log.Infof("serversentry %s starting", version.Full())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received %s, shutting down", sig)
		cancel()
		// A second signal skips the graceful drain.
		sig = <-sigCh
		log.Warnf("received second %s, exiting immediately", sig) //nolint:errcheck
		log.Flush()
		os.Exit(1)
	}()

	sched.Run(ctx)
	sched.Shutdown()
	log.Infof("serversentry stopped")
	return nil
}

// fatalStartup writes a crash report before surfacing the error.
func fatalStartup(err error) error {
	if path, werr := crashreport.Write(config.StateDirectory(), err); werr == nil {
		log.Errorf("crash report written to %s", path) //nolint:errcheck
	}
	log.Criticalf("startup failed: %s", err) //nolint:errcheck
	return err
}
