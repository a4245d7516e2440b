// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package hostname resolves and caches host identity facts used by
// notification templates and the webhook envelope.
package hostname

import (
	"context"
	"net"
	"os"
	"sync"

	"github.com/shirou/gopsutil/v3/host"
)

// for testing
var (
	hostInfo   = host.InfoWithContext
	osHostname = os.Hostname
)

// Facts describes the identity of the monitored host.
type Facts struct {
	Hostname string
	IP       string
	OS       string
	Platform string
	Kernel   string
	Uptime   uint64
}

var (
	cacheMu sync.Mutex
	cached  *Facts
)

// Get returns the hostname, resolving it once and caching the result.
func Get(ctx context.Context) (string, error) {
	f, err := GetFacts(ctx)
	if err != nil {
		return "", err
	}
	return f.Hostname, nil
}

// GetFacts returns host facts. Hostname, OS and kernel are cached; uptime is
// refreshed on every call since it is time dependent.
func GetFacts(ctx context.Context) (*Facts, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	info, err := hostInfo(ctx)
	if err != nil {
		// Fall back to the bare hostname so rendering keeps working on
		// platforms where gopsutil host info is unavailable.
		name, herr := osHostname()
		if herr != nil {
			return nil, err
		}
		return &Facts{Hostname: name}, nil
	}

	if cached == nil {
		cached = &Facts{
			Hostname: info.Hostname,
			IP:       localIP(),
			OS:       info.OS,
			Platform: info.Platform,
			Kernel:   info.KernelVersion,
		}
	}
	f := *cached
	f.Uptime = info.Uptime
	return &f, nil
}

// localIP returns the host's outbound interface address. Best effort: an
// empty string when the host has no route.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}
