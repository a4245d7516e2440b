// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/serversentry/serversentry/pkg/composite"
	"github.com/serversentry/serversentry/pkg/config"
	"github.com/serversentry/serversentry/pkg/plugin"
)

var compositeCmd = &cobra.Command{
	Use:   "composite [command]",
	Short: "Composite rule utilities",
}

var compositeTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Evaluate the composite rules against fresh readings",
	Long: `Loads every rule from the composite rule directory, samples the enabled
plugins once and prints each rule's verdict. Nothing is sent.`,
	RunE: compositeTest,
}

func init() {
	compositeCmd.AddCommand(compositeTestCmd)
	SentryCmd.AddCommand(compositeCmd)
}

func compositeTest(*cobra.Command, []string) error {
	if err := setupConfig(); err != nil {
		return err
	}

	registry, err := buildRegistry("")
	if err != nil {
		return err
	}

	lookup := func(pluginName string) (plugin.Meta, bool) {
		p, ok := registry.Get(pluginName)
		if !ok {
			return plugin.Meta{}, false
		}
		return p.Info(), true
	}

	dir := config.Sentry.GetString("composite_checks.config_directory")
	rules, loadErrs := composite.LoadDir(dir, lookup)

	printHeader("Composite Rule Test")
	for _, err := range loadErrs {
		fmt.Printf("  load error: %s\n", err)
	}
	if len(rules) == 0 {
		fmt.Printf("  no enabled rules in %s\n", dir)
		return nil
	}

	readings := sampleAll(registry)
	resolver := readingMap(readings)
	for _, out := range composite.NewEngine(rules).Evaluate(resolver) {
		verdict := out.Result.String()
		if out.Fired {
			verdict = "FIRED"
		}
		fmt.Printf("  %-20s %-8s %s\n", out.Rule.Name, verdict, out.Message)
	}
	return nil
}

// readingMap adapts one-shot readings to the composite resolver.
type readingMap map[string]*plugin.Reading

func (r readingMap) Resolve(pluginName, attribute string) (interface{}, bool) {
	reading, ok := r[pluginName]
	if !ok {
		return nil, false
	}
	return reading.Attribute(attribute)
}
