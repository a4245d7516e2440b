// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

// Package scheduler drives the agent's tick loop: sample, record, evaluate,
// decide, dispatch. It is the single writer for tick progression.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/serversentry/serversentry/pkg/alert"
	"github.com/serversentry/serversentry/pkg/anomaly"
	"github.com/serversentry/serversentry/pkg/composite"
	"github.com/serversentry/serversentry/pkg/errs"
	"github.com/serversentry/serversentry/pkg/history"
	"github.com/serversentry/serversentry/pkg/notify"
	"github.com/serversentry/serversentry/pkg/plugin"
	"github.com/serversentry/serversentry/pkg/threshold"
	"github.com/serversentry/serversentry/pkg/util/log"
)

// tickHeadroom is subtracted from the interval to bound one tick, so a
// slow tick cannot bleed into the next.
const tickHeadroom = 5 * time.Second

// shutdownFlush is how long Shutdown waits for in-flight dispatches.
var shutdownFlush = 5 * time.Second // for testing

// Options wires the scheduler to the subsystems it drives.
type Options struct {
	Registry   *plugin.Registry
	Store      *history.Store
	Machine    *alert.Machine
	Dispatcher *notify.Dispatcher
	ResultLog  *anomaly.ResultLog

	// Engine is nil when composite checks are disabled.
	Engine *composite.Engine

	Interval     time.Duration
	CheckTimeout time.Duration

	// Thresholds overrides the per-plugin threshold configuration; plugins
	// absent from the map run on their declared defaults.
	Thresholds map[string]threshold.Config

	// Anomaly holds the per-plugin detection configuration; plugins absent
	// from the map are not watched for anomalies.
	Anomaly map[string]anomaly.Config

	// ErrorSeverity is the per-plugin severity attached to check-failure
	// events; plugins absent from the map fall back to WARNING.
	ErrorSeverity map[string]plugin.Status

	RetentionDays int
	Clock         clock.Clock
}

// PluginResult is one plugin's contribution to a tick.
type PluginResult struct {
	Reading *plugin.Reading
	Status  plugin.Status
	Anomaly anomaly.Result
	Err     error
}

// TickResult summarises one completed tick.
type TickResult struct {
	Started time.Time
	Plugins map[string]*PluginResult
	Order   []string
	Partial bool
}

// ExitCode maps the tick outcome to the one-shot exit code: 0 OK, 1 any
// WARNING, 2 any CRITICAL, 3 any plugin error.
func (t *TickResult) ExitCode() int {
	code := 0
	for _, res := range t.Plugins {
		if res.Err != nil {
			return 3
		}
		if int(res.Status) > code && res.Status != plugin.StatusUnknown {
			code = int(res.Status)
		}
	}
	return code
}

// Scheduler owns the tick cadence and fans work out to the evaluators.
type Scheduler struct {
	opts  Options
	clock clock.Clock

	evaluators map[string]*threshold.Evaluator
	detectors  map[string]*anomaly.Detector

	// dispatchCtx covers async dispatches; Shutdown cancels it once the
	// drain window closes so retries do not outlive the agent.
	dispatchCtx    context.Context
	cancelDispatch context.CancelFunc

	dispatchWG sync.WaitGroup
	lastPrune  time.Time
}

// New validates the wiring and builds the per-plugin evaluators.
func New(opts Options) (*Scheduler, error) {
	if opts.Registry == nil || opts.Store == nil || opts.Machine == nil || opts.Dispatcher == nil {
		return nil, errs.Newf(errs.Internal, "scheduler", "scheduler is missing a required subsystem")
	}
	if opts.Interval <= 0 {
		return nil, errs.Newf(errs.InvalidInput, "scheduler", "tick interval must be positive, got %v", opts.Interval)
	}
	if opts.CheckTimeout <= 0 {
		return nil, errs.Newf(errs.InvalidInput, "scheduler", "check timeout must be positive, got %v", opts.CheckTimeout)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	s := &Scheduler{
		opts:       opts,
		clock:      opts.Clock,
		evaluators: make(map[string]*threshold.Evaluator),
		detectors:  make(map[string]*anomaly.Detector),
	}
	s.dispatchCtx, s.cancelDispatch = context.WithCancel(context.Background())

	for _, name := range opts.Registry.Names() {
		p, _ := opts.Registry.Get(name)
		cfg, ok := opts.Thresholds[name]
		if !ok {
			cfg = threshold.FromDefaults(p.Info().Defaults)
		}
		ev, err := threshold.NewEvaluator(cfg)
		if err != nil {
			return nil, errs.New(errs.InvalidInput, name, err).
				WithRemedy("fix the plugin's threshold configuration")
		}
		s.evaluators[name] = ev

		if acfg, ok := opts.Anomaly[name]; ok && acfg.Enabled {
			det, err := anomaly.NewDetector(acfg)
			if err != nil {
				return nil, errs.New(errs.InvalidInput, name, err).
					WithRemedy("fix the plugin's anomaly_detection configuration")
			}
			s.detectors[name] = det
		}
	}
	return s, nil
}

// Run executes ticks until ctx is cancelled. The first tick starts
// immediately.
func (s *Scheduler) Run(ctx context.Context) {
	log.Infof("scheduler: starting, interval %s", s.opts.Interval)
	ticker := s.clock.Ticker(s.opts.Interval)
	defer ticker.Stop()

	s.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Infof("scheduler: stopping")
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result := s.Tick(ctx)
	if result.Partial {
		log.Warnf("scheduler: tick at %s completed partially", result.Started.Format(time.RFC3339)) //nolint:errcheck
	}
	s.maybePrune()
}

// Shutdown flushes alert state and waits up to 5s for in-flight dispatches,
// then cancels whatever is still running.
func (s *Scheduler) Shutdown() {
	if err := s.opts.Machine.Flush(); err != nil {
		log.Errorf("scheduler: flushing alert state: %s", err) //nolint:errcheck
	}

	done := make(chan struct{})
	go func() {
		s.dispatchWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownFlush):
		log.Warnf("scheduler: abandoned pending dispatches after %s", shutdownFlush) //nolint:errcheck
	}
	s.cancelDispatch()
}

// Tick runs one full cycle and returns its summary.
func (s *Scheduler) Tick(ctx context.Context) *TickResult {
	started := s.clock.Now()

	budget := s.opts.Interval - tickHeadroom
	if budget <= 0 {
		budget = s.opts.Interval
	}
	tickCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	result := &TickResult{
		Started: started,
		Plugins: make(map[string]*PluginResult),
		Order:   s.opts.Registry.Names(),
	}

	// 1. Sample all plugins concurrently, each under its own timeout.
	s.runChecks(tickCtx, result)

	// 2. Record readings, then classify each one. Threshold and anomaly run
	// in parallel across plugins; neither touches shared state.
	s.record(result)
	s.evaluate(result)

	// 3. Composite rules see the tick's readings once.
	var outcomes []composite.Outcome
	if s.opts.Engine != nil {
		outcomes = s.opts.Engine.Evaluate(readingResolver(result.Plugins))
	}

	// 4. The alert machine consumes every verdict serially.
	s.decide(result, outcomes)
	return result
}

func (s *Scheduler) runChecks(ctx context.Context, result *TickResult) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range result.Order {
		name := name
		p, ok := s.opts.Registry.Get(name)
		if !ok {
			continue
		}
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(gctx, s.opts.CheckTimeout)
			defer cancel()

			start := s.clock.Now()
			reading, err := p.Check(checkCtx)
			if err == nil {
				err = plugin.Validate(reading)
			}
			s.opts.Registry.Stats(name).Add(s.clock.Now().Sub(start), start, err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Plugins[name] = &PluginResult{Err: err, Status: plugin.StatusUnknown}
				if checkCtx.Err() != nil {
					result.Partial = true
				}
				return nil
			}
			result.Plugins[name] = &PluginResult{Reading: reading}
			return nil
		})
	}
	g.Wait() //nolint:errcheck
}

func (s *Scheduler) record(result *TickResult) {
	for name, res := range result.Plugins {
		if res.Reading == nil {
			continue
		}
		series := history.Series{Plugin: name, Metric: "value"}
		s.opts.Store.Record(series, res.Reading.Timestamp, res.Reading.Value)
	}
}

func (s *Scheduler) evaluate(result *TickResult) {
	var g errgroup.Group
	for name, res := range result.Plugins {
		name, res := name, res
		if res.Reading == nil {
			continue
		}
		g.Go(func() error {
			res.Status = s.evaluators[name].Evaluate(res.Reading)

			det, ok := s.detectors[name]
			if !ok {
				return nil
			}
			res.Anomaly = s.detect(name, det, res.Reading)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
}

// detect classifies the reading against the series history, excluding the
// point just recorded, and logs the verdict.
func (s *Scheduler) detect(name string, det *anomaly.Detector, r *plugin.Reading) anomaly.Result {
	series := history.Series{Plugin: name, Metric: "value"}
	points := s.opts.Store.Window(series, det.Config().Window+1)
	if len(points) > 0 {
		points = points[:len(points)-1]
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}

	res := det.Detect(values, r.Value)
	if s.opts.ResultLog != nil {
		err := s.opts.ResultLog.Append(anomaly.Verdict{
			Timestamp: r.Timestamp,
			Plugin:    name,
			Metric:    "value",
			Value:     r.Value,
			ZScore:    res.ZScore,
			IsAnomaly: res.IsAnomaly,
			Types:     res.Types,
		})
		if err != nil {
			log.Warnf("scheduler: recording anomaly verdict for %s: %s", name, err) //nolint:errcheck
		}
	}
	return res
}

func (s *Scheduler) decide(result *TickResult, outcomes []composite.Outcome) {
	for _, name := range result.Order {
		res, ok := result.Plugins[name]
		if !ok {
			continue
		}
		if res.Err != nil {
			s.dispatch(s.pluginErrorEvent(name, res.Err))
			continue
		}
		s.decideThreshold(name, res)
		if _, watched := s.detectors[name]; watched {
			s.decideAnomaly(name, res)
		}
	}
	for _, out := range outcomes {
		s.decideComposite(out, result)
	}
}

func (s *Scheduler) decideThreshold(name string, res *PluginResult) {
	d := s.opts.Machine.Process(alert.Verdict{
		Key:            name,
		Source:         alert.SourcePlugin,
		Status:         res.Status,
		Message:        res.Reading.Message,
		NotifyRecovery: true,
	})
	if d.Emit {
		s.dispatch(s.thresholdEvent(notify.KindAlert, name, res, d.Severity))
	} else if d.Recovery {
		s.dispatch(s.thresholdEvent(notify.KindRecovery, name, res, plugin.StatusOK))
	}
}

func (s *Scheduler) decideAnomaly(name string, res *PluginResult) {
	cfg := s.detectors[name].Config()

	status := plugin.StatusOK
	consecutive := 0
	if res.Anomaly.IsAnomaly {
		status = plugin.StatusWarning
		if s.opts.ResultLog != nil {
			consecutive = s.opts.ResultLog.ConsecutiveAnomalies(name)
		}
	}

	d := s.opts.Machine.Process(alert.Verdict{
		Key:                  "anomaly:" + name,
		Source:               alert.SourceAnomaly,
		Status:               status,
		Cooldown:             time.Duration(cfg.CooldownSeconds) * time.Second,
		ConsecutiveAnomalies: consecutive,
		RequiredConsecutive:  cfg.ConsecutiveThreshold,
	})
	if !d.Emit {
		return
	}
	s.dispatch(s.anomalyEvent(name, res))
	if s.opts.ResultLog != nil {
		if err := s.opts.ResultLog.SetLastNotification(name, s.clock.Now()); err != nil {
			log.Warnf("scheduler: recording anomaly notification for %s: %s", name, err) //nolint:errcheck
		}
	}
}

func (s *Scheduler) decideComposite(out composite.Outcome, result *TickResult) {
	rule := out.Rule

	status := plugin.StatusOK
	if out.Result == composite.Unknown {
		status = plugin.StatusUnknown
	} else if out.Fired {
		status = compositeSeverity(rule.Severity)
	}

	d := s.opts.Machine.Process(alert.Verdict{
		Key:            rule.ID(),
		Source:         alert.SourceComposite,
		Status:         status,
		Message:        out.Message,
		Cooldown:       time.Duration(rule.Cooldown) * time.Second,
		NotifyRecovery: rule.NotifyOnRecovery,
	})
	if d.Emit && rule.NotifyOnTrigger {
		s.dispatch(s.compositeEvent(notify.KindAlert, rule, out.Message, d.Severity))
	} else if d.Recovery {
		msg := fmt.Sprintf("Composite rule %s recovered", rule.Name)
		s.dispatch(s.compositeEvent(notify.KindRecovery, rule, msg, plugin.StatusOK))
	}
}

func compositeSeverity(severity string) plugin.Status {
	if strings.EqualFold(severity, "critical") {
		return plugin.StatusCritical
	}
	return plugin.StatusWarning
}

func (s *Scheduler) thresholdEvent(kind notify.Kind, name string, res *PluginResult, severity plugin.Status) *notify.Event {
	title := fmt.Sprintf("%s %s on this host", name, severity)
	if kind == notify.KindRecovery {
		title = fmt.Sprintf("%s recovered", name)
	}
	e := notify.NewEvent(kind, notify.SourcePlugin, name, severity, title, res.Reading.Message)
	e.Reading = res.Reading
	return e
}

func (s *Scheduler) anomalyEvent(name string, res *PluginResult) *notify.Event {
	types := make([]string, len(res.Anomaly.Types))
	for i, t := range res.Anomaly.Types {
		types[i] = string(t)
	}
	msg := fmt.Sprintf("%s behaviour is anomalous (%s, z-score %.2f)",
		name, strings.Join(types, ", "), res.Anomaly.ZScore)
	e := notify.NewEvent(notify.KindAlert, notify.SourceAnomaly, name, plugin.StatusWarning,
		fmt.Sprintf("Anomaly detected on %s", name), msg)
	e.Reading = res.Reading
	return e
}

func (s *Scheduler) compositeEvent(kind notify.Kind, rule *composite.Rule, msg string, severity plugin.Status) *notify.Event {
	return notify.NewEvent(kind, notify.SourceComposite, rule.ID(), severity,
		fmt.Sprintf("Composite rule %s", rule.Name), msg)
}

func (s *Scheduler) pluginErrorEvent(name string, err error) *notify.Event {
	return notify.NewEvent(notify.KindAlert, notify.SourcePlugin, name, s.errorSeverity(name),
		fmt.Sprintf("Plugin %s failed", name), err.Error())
}

func (s *Scheduler) errorSeverity(name string) plugin.Status {
	if sev, ok := s.opts.ErrorSeverity[name]; ok {
		return sev
	}
	return plugin.StatusWarning
}

// ParseErrorSeverity maps a plugin's configured error_severity value to the
// severity attached to its check-failure events. The empty string selects
// the default, medium.
func ParseErrorSeverity(value string) (plugin.Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "medium", "warning":
		return plugin.StatusWarning, nil
	case "low":
		return plugin.StatusOK, nil
	case "high", "critical":
		return plugin.StatusCritical, nil
	}
	return plugin.StatusUnknown, errs.Newf(errs.InvalidInput, "error_severity",
		"unknown error_severity %q, want low, medium, high or critical", value)
}

// dispatch hands an event to the dispatcher without blocking the tick.
func (s *Scheduler) dispatch(e *notify.Event) {
	s.dispatchWG.Add(1)
	go func() {
		defer s.dispatchWG.Done()
		err := s.opts.Dispatcher.Dispatch(s.dispatchCtx, e)
		if err != nil && err != notify.ErrThrottled {
			log.Errorf("scheduler: dispatching %s event for %s: %s", e.Kind, e.SourceID, err) //nolint:errcheck
		}
	}()
}

// maybePrune removes expired anomaly result logs at most once a day.
func (s *Scheduler) maybePrune() {
	if s.opts.ResultLog == nil || s.opts.RetentionDays <= 0 {
		return
	}
	now := s.clock.Now()
	if !s.lastPrune.IsZero() && now.Sub(s.lastPrune) < 24*time.Hour {
		return
	}
	s.lastPrune = now
	s.opts.ResultLog.Prune(s.opts.RetentionDays)
}

// readingResolver adapts a tick's readings to the composite resolver.
type readingResolver map[string]*PluginResult

func (r readingResolver) Resolve(pluginName, attribute string) (interface{}, bool) {
	res, ok := r[pluginName]
	if !ok || res.Reading == nil {
		return nil, false
	}
	return res.Reading.Attribute(attribute)
}
