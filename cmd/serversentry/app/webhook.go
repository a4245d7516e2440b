// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package app

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/serversentry/serversentry/pkg/notify"
	"github.com/serversentry/serversentry/pkg/plugin"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook [command]",
	Short: "Notification channel utilities",
}

var webhookTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a synthetic test event to every enabled channel",
	RunE:  webhookTest,
}

func init() {
	webhookCmd.AddCommand(webhookTestCmd)
	SentryCmd.AddCommand(webhookCmd)
}

func webhookTest(*cobra.Command, []string) error {
	if err := setupConfig(); err != nil {
		return err
	}

	dispatcher, err := buildDispatcher()
	if err != nil {
		fmt.Printf("channel configuration problems:\n%s\n", err)
	}
	names := dispatcher.ChannelNames()
	if len(names) == 0 {
		fmt.Println("no channels enabled; set notifications.channels")
		return nil
	}

	event := notify.NewEvent(notify.KindTest, notify.SourceTest, "test", plugin.StatusOK,
		"ServerSentry test notification",
		"If you can read this, notifications are configured correctly.")

	printHeader("Webhook Test")
	err = dispatcher.Dispatch(context.Background(), event)

	stats := dispatcher.Stats()
	for _, name := range names {
		s := stats[name]
		if s.Failed > 0 {
			fmt.Printf("  %-10s %s\n", name, color.RedString("FAILED"))
		} else {
			fmt.Printf("  %-10s %s\n", name, color.GreenString("sent"))
		}
	}
	if err != nil {
		fmt.Printf("\ndelivery errors:\n%s\n", err)
	}
	return nil
}
