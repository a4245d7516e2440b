// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package errs defines the agent error taxonomy. Every fallible operation
// returns a typed error value; the scheduler classifies and routes it.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation decisions.
type Kind int

// Error kinds, ordered as in the error handling design.
const (
	// InvalidInput covers configuration parse failures, thresholds out of
	// range and malformed composite rules.
	InvalidInput Kind = iota
	// NotFound covers missing files and unwritable directories.
	NotFound
	// PermissionDenied covers filesystem and network permission failures.
	PermissionDenied
	// Transport covers DNS, connect, TLS and non-2xx HTTP failures.
	Transport
	// Timeout covers deadline expirations.
	Timeout
	// PluginError covers plugin failures and malformed readings.
	PluginError
	// ResourceExhausted covers disk-full and fd exhaustion.
	ResourceExhausted
	// Internal covers critical errors uncaught at lower levels.
	Internal
)

var kindNames = map[Kind]string{
	InvalidInput:      "invalid_input",
	NotFound:          "not_found",
	PermissionDenied:  "permission_denied",
	Transport:         "transport",
	Timeout:           "timeout",
	PluginError:       "plugin_error",
	ResourceExhausted: "resource_exhausted",
	Internal:          "internal",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is the typed error carried through the agent. It keeps the failing
// resource identifier and a suggested remedy for user-visible reporting.
type Error struct {
	Kind     Kind
	Resource string
	Remedy   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Err)
	if e.Resource != "" {
		msg = fmt.Sprintf("%s (resource: %s)", msg, e.Resource)
	}
	return msg
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New wraps err with a kind and resource identifier.
func New(kind Kind, resource string, err error) *Error {
	return &Error{Kind: kind, Resource: resource, Err: err}
}

// Newf builds a typed error from a format string.
func Newf(kind Kind, resource, format string, params ...interface{}) *Error {
	return &Error{Kind: kind, Resource: resource, Err: fmt.Errorf(format, params...)}
}

// WithRemedy attaches a suggested remedy to the error.
func (e *Error) WithRemedy(remedy string) *Error {
	e.Remedy = remedy
	return e
}

// KindOf extracts the kind of err, defaulting to Internal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsTransient reports whether err should be retried by the caller. Transport
// errors are transient unless marked permanent; timeouts are transient.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case Transport, Timeout:
		return !IsPermanent(err)
	default:
		return false
	}
}

// permanentErr marks a transport error as not retriable (HTTP 4xx != 429,
// malformed payload responses).
type permanentErr struct{ error }

func (permanentErr) isPermanent() bool { return true }

func (p permanentErr) Unwrap() error { return p.error }

// Permanent wraps err so IsPermanent reports true.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentErr{err}
}

// IsPermanent reports whether err was marked permanent.
func IsPermanent(err error) bool {
	for err != nil {
		if p, ok := err.(interface{ isPermanent() bool }); ok {
			return p.isPermanent()
		}
		err = errors.Unwrap(err)
	}
	return false
}
