// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package app

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"

	"github.com/serversentry/serversentry/pkg/anomaly"
	"github.com/serversentry/serversentry/pkg/config"
	"github.com/serversentry/serversentry/pkg/history"
)

var anomalyCmd = &cobra.Command{
	Use:   "anomaly [command]",
	Short: "Anomaly detection utilities",
}

var anomalyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Evaluate anomaly detection against the stored history",
	Long: `Runs the configured detector for every enabled plugin over the persisted
history and prints the verdict for the most recent value. Nothing is sent.`,
	RunE: anomalyTest,
}

func init() {
	anomalyCmd.AddCommand(anomalyTestCmd)
	SentryCmd.AddCommand(anomalyCmd)
}

func anomalyTest(*cobra.Command, []string) error {
	if err := setupConfig(); err != nil {
		return err
	}

	registry, err := buildRegistry("")
	if err != nil {
		return err
	}

	store := history.NewStore(history.WithPersistence(config.AnomalyLogDirectory()))

	printHeader("Anomaly Detection Test")
	for _, name := range registry.Names() {
		cfg := anomaly.DefaultConfig()
		cfg.Sensitivity = config.Sentry.GetFloat64("anomaly_detection.default_sensitivity")
		if err := mapstructure.WeakDecode(config.AnomalyOverrides(name), &cfg); err != nil {
			fmt.Printf("  %-10s bad configuration: %s\n", name, err)
			continue
		}
		det, err := anomaly.NewDetector(cfg)
		if err != nil {
			fmt.Printf("  %-10s bad configuration: %s\n", name, err)
			continue
		}

		series := history.Series{Plugin: name, Metric: "value"}
		points := store.Window(series, cfg.Window+1)
		if len(points) < cfg.MinPoints+1 {
			fmt.Printf("  %-10s insufficient history (%d points, need %d)\n",
				name, len(points), cfg.MinPoints+1)
			continue
		}

		current := points[len(points)-1]
		values := make([]float64, len(points)-1)
		for i, p := range points[:len(points)-1] {
			values[i] = p.Value
		}

		res := det.Detect(values, current.Value)
		verdict := "normal"
		if res.IsAnomaly {
			verdict = fmt.Sprintf("ANOMALY %v", res.Types)
		}
		fmt.Printf("  %-10s value=%.2f z=%.2f -> %s\n", name, current.Value, res.ZScore, verdict)
	}
	return nil
}
