// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package log

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cihub/seelog"
)

// consoleReceiver prints formatted log lines to stderr. Warnings and above
// would otherwise be lost in one-shot runs where no log file is configured.
type consoleReceiver struct{}

func (consoleReceiver) ReceiveMessage(message string, level seelog.LogLevel, _ seelog.LogContextInterface) error {
	ts := time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	_, err := fmt.Fprintf(os.Stderr, "%s | %s | %s\n", ts, strings.ToUpper(level.String()), strings.TrimRight(message, "\n"))
	return err
}

func (consoleReceiver) AfterParse(seelog.CustomReceiverInitArgs) error { return nil }

func (consoleReceiver) Flush() {}

func (consoleReceiver) Close() error { return nil }
