// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package notify

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DefaultTemplate is the final fallback when no more specific template is
// registered.
const DefaultTemplate = "[{status_text}] {plugin_name} on {hostname}: {status_message}"

var templatePlaceholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// Templates maps (channel, event kind) to a message template. Resolution
// falls back from the most specific key to the global default:
// (channel, kind) -> (channel, "") -> ("", kind) -> DefaultTemplate.
type Templates struct {
	byKey map[templateKey]string
}

type templateKey struct {
	channel string
	kind    Kind
}

// NewTemplates returns an empty registry; Resolve on it yields
// DefaultTemplate for everything.
func NewTemplates() *Templates {
	return &Templates{byKey: make(map[templateKey]string)}
}

// Set registers a template. Empty channel or kind act as wildcards.
func (t *Templates) Set(channel string, kind Kind, template string) {
	t.byKey[templateKey{channel: channel, kind: kind}] = template
}

// Resolve picks the template for a channel and event kind.
func (t *Templates) Resolve(channel string, kind Kind) string {
	for _, key := range []templateKey{
		{channel: channel, kind: kind},
		{channel: channel},
		{kind: kind},
	} {
		if tmpl, ok := t.byKey[key]; ok {
			return tmpl
		}
	}
	return DefaultTemplate
}

// Render resolves the template for (channel, event kind) and substitutes
// the placeholder vocabulary from the event. Unknown placeholders are left
// verbatim so a typo in a template is visible in the delivered message.
func (t *Templates) Render(channel string, e *Event) string {
	return RenderTemplate(t.Resolve(channel, e.Kind), e)
}

// RenderTemplate substitutes {placeholder} tokens in template with values
// from the event.
func RenderTemplate(template string, e *Event) string {
	return templatePlaceholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := placeholderValue(name, e)
		if !ok {
			return match
		}
		return value
	})
}

func placeholderValue(name string, e *Event) (string, bool) {
	switch name {
	case "hostname":
		return e.Facts.Hostname, true
	case "timestamp":
		return e.Timestamp.UTC().Format(time.RFC3339), true
	case "timestamp_epoch":
		return strconv.FormatInt(e.Timestamp.Unix(), 10), true
	case "status_text":
		return e.Severity.String(), true
	case "status_code":
		return strconv.Itoa(e.StatusCode), true
	case "plugin_name":
		return e.SourceID, true
	case "status_message":
		return e.Message, true
	case "metrics":
		return e.MetricsLine(), true
	case "color":
		return e.Color(), true
	case "uptime":
		return formatUptime(e.Facts.Uptime), true
	case "load_avg":
		if e.Reading != nil {
			if v, ok := e.Reading.Attribute("load_avg_1"); ok {
				return fmt.Sprintf("%v", v), true
			}
		}
		return "", true
	default:
		return "", false
	}
}

func formatUptime(seconds uint64) string {
	d := time.Duration(seconds) * time.Second
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
