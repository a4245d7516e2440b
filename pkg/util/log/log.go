// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package log provides the project logger, a thin wrapper around seelog.
package log

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cihub/seelog"
)

var (
	logger *SentryLogger

	// Lines logged before SetupLogger runs are buffered and flushed once
	// the logger exists. Config loading happens first, so the buffer is
	// short lived.
	logsBuffer           = []func(){}
	bufferLogsBeforeInit = true
	bufferMutex          sync.Mutex
	defaultStackDepth    = 2
)

// SentryLogger is the wrapper structure for seelog.
type SentryLogger struct {
	inner seelog.LoggerInterface
	level seelog.LogLevel
	l     sync.RWMutex
}

// SetupLogger configures the logger singleton with a seelog interface.
func SetupLogger(l seelog.LoggerInterface, level string) {
	logger = &SentryLogger{
		inner: l,
	}

	lvl, ok := seelog.LogLevelFromString(strings.ToLower(level))
	if !ok {
		lvl = seelog.InfoLvl
	}
	logger.level = lvl

	// The exported functions below add one frame between the caller and
	// seelog, hence the constant additional depth.
	logger.inner.SetAdditionalStackDepth(defaultStackDepth) //nolint:errcheck

	bufferMutex.Lock()
	bufferLogsBeforeInit = false
	defer bufferMutex.Unlock()
	for _, logLine := range logsBuffer {
		logLine()
	}
	logsBuffer = []func(){}
}

// SetupDefaultLogger installs a console logger at the given level. It is the
// setup used by one-shot commands and tests.
func SetupDefaultLogger(level string) error {
	l, err := seelog.LoggerFromCustomReceiver(consoleReceiver{})
	if err != nil {
		return err
	}
	SetupLogger(l, level)
	return nil
}

// ChangeLogLevel changes the level of the running logger.
func ChangeLogLevel(level string) error {
	if logger == nil {
		return errors.New("logger not initialized")
	}
	logger.l.Lock()
	defer logger.l.Unlock()

	lvl, ok := seelog.LogLevelFromString(strings.ToLower(level))
	if !ok {
		return errors.New("bad log level")
	}
	logger.level = lvl
	return nil
}

// GetLogLevel returns the current level as a string.
func GetLogLevel() string {
	if logger == nil {
		return "info"
	}
	logger.l.RLock()
	defer logger.l.RUnlock()
	return logger.level.String()
}

func (sw *SentryLogger) shouldLog(level seelog.LogLevel) bool {
	sw.l.RLock()
	shouldLog := level >= sw.level
	sw.l.RUnlock()
	return shouldLog
}

func addLogToBuffer(logHandle func()) {
	bufferMutex.Lock()
	defer bufferMutex.Unlock()

	logsBuffer = append(logsBuffer, logHandle)
}

func buffered() bool {
	bufferMutex.Lock()
	defer bufferMutex.Unlock()
	return bufferLogsBeforeInit && logger == nil
}

// Tracef logs at the trace level with a format.
func Tracef(format string, params ...interface{}) {
	if buffered() {
		addLogToBuffer(func() { Tracef(format, params...) })
		return
	}
	if logger != nil && logger.inner != nil && logger.shouldLog(seelog.TraceLvl) {
		logger.l.Lock()
		defer logger.l.Unlock()
		logger.inner.Tracef(format, params...)
	}
}

// Debugf logs at the debug level with a format.
func Debugf(format string, params ...interface{}) {
	if buffered() {
		addLogToBuffer(func() { Debugf(format, params...) })
		return
	}
	if logger != nil && logger.inner != nil && logger.shouldLog(seelog.DebugLvl) {
		logger.l.Lock()
		defer logger.l.Unlock()
		logger.inner.Debugf(format, params...)
	}
}

// Infof logs at the info level with a format.
func Infof(format string, params ...interface{}) {
	if buffered() {
		addLogToBuffer(func() { Infof(format, params...) })
		return
	}
	if logger != nil && logger.inner != nil && logger.shouldLog(seelog.InfoLvl) {
		logger.l.Lock()
		defer logger.l.Unlock()
		logger.inner.Infof(format, params...)
	}
}

// Warnf logs at the warn level with a format and returns the message as an
// error so call sites can both log and propagate.
func Warnf(format string, params ...interface{}) error {
	err := fmt.Errorf(format, params...)
	if buffered() {
		addLogToBuffer(func() { Warnf(format, params...) }) //nolint:errcheck
		return err
	}
	if logger != nil && logger.inner != nil && logger.shouldLog(seelog.WarnLvl) {
		logger.l.Lock()
		defer logger.l.Unlock()
		logger.inner.Warnf("%s", err.Error()) //nolint:errcheck
	}
	return err
}

// Errorf logs at the error level with a format and returns the message as an
// error.
func Errorf(format string, params ...interface{}) error {
	err := fmt.Errorf(format, params...)
	if buffered() {
		addLogToBuffer(func() { Errorf(format, params...) }) //nolint:errcheck
		return err
	}
	if logger != nil && logger.inner != nil && logger.shouldLog(seelog.ErrorLvl) {
		logger.l.Lock()
		defer logger.l.Unlock()
		logger.inner.Errorf("%s", err.Error()) //nolint:errcheck
	}
	return err
}

// Criticalf logs at the critical level with a format and returns the message
// as an error.
func Criticalf(format string, params ...interface{}) error {
	err := fmt.Errorf(format, params...)
	if buffered() {
		addLogToBuffer(func() { Criticalf(format, params...) }) //nolint:errcheck
		return err
	}
	if logger != nil && logger.inner != nil && logger.shouldLog(seelog.CriticalLvl) {
		logger.l.Lock()
		defer logger.l.Unlock()
		logger.inner.Criticalf("%s", err.Error()) //nolint:errcheck
	}
	return err
}

// Debug logs at the debug level.
func Debug(v ...interface{}) {
	Debugf("%s", fmt.Sprint(v...))
}

// Info logs at the info level.
func Info(v ...interface{}) {
	Infof("%s", fmt.Sprint(v...))
}

// Warn logs at the warn level and returns the message as an error.
func Warn(v ...interface{}) error {
	return Warnf("%s", fmt.Sprint(v...))
}

// Error logs at the error level and returns the message as an error.
func Error(v ...interface{}) error {
	return Errorf("%s", fmt.Sprint(v...))
}

// Critical logs at the critical level and returns the message as an error.
func Critical(v ...interface{}) error {
	return Criticalf("%s", fmt.Sprint(v...))
}

// Flush flushes the underlying logger.
func Flush() {
	if logger != nil && logger.inner != nil {
		logger.inner.Flush()
	}
}
