// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package composite

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\.([a-zA-Z0-9_-]+)\}`)

// RenderMessage substitutes {<plugin>.<attribute>} placeholders in a trigger
// message with the resolved scalar, or the literal string UNKNOWN when the
// reference does not resolve.
func RenderMessage(template string, res Resolver) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		groups := placeholderRe.FindStringSubmatch(match)
		raw, ok := res.Resolve(groups[1], groups[2])
		if !ok {
			return "UNKNOWN"
		}
		return strings.TrimSpace(toString(raw))
	})
}
