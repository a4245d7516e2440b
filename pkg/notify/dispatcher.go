// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at ServerSentry (https://serversentry.io/).
// Copyright 2024-present ServerSentry authors.

package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	uatomic "go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/serversentry/serversentry/pkg/util/log"
)

const (
	// dispatchBudget caps the total wall time spent on one event across
	// all retries.
	dispatchBudget = 15 * time.Second
	// sendTimeout bounds a single delivery attempt.
	sendTimeout = 10 * time.Second
	// maxRetries is the retry count after the first attempt.
	maxRetries = 3
)

// ErrThrottled is returned when the global (source, severity) interval
// swallowed the event.
var ErrThrottled = errors.New("notification throttled")

// ChannelStats counts deliveries per channel.
type ChannelStats struct {
	Sent    uatomic.Uint64
	Failed  uatomic.Uint64
	Retried uatomic.Uint64
}

// StatsSnapshot is a point-in-time copy of one channel's counters.
type StatsSnapshot struct {
	Sent    uint64
	Failed  uint64
	Retried uint64
}

// Dispatcher fans one event out to every target channel concurrently,
// retrying transient failures with exponential backoff.
type Dispatcher struct {
	mu        sync.RWMutex
	order     []string
	channels  map[string]Channel
	stats     map[string]*ChannelStats
	templates *Templates
	throttle  *Throttle
	clock     clock.Clock

	newBackOff func() backoff.BackOff
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTemplates sets the template registry.
func WithTemplates(t *Templates) DispatcherOption {
	return func(d *Dispatcher) { d.templates = t }
}

// WithDispatchClock substitutes the wall clock, for tests.
func WithDispatchClock(c clock.Clock) DispatcherOption {
	return func(d *Dispatcher) {
		d.clock = c
		d.throttle = NewThrottle(DefaultThrottleInterval, c)
	}
}

// WithThrottleInterval overrides the global (source, severity) spacing.
func WithThrottleInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.throttle = NewThrottle(interval, d.clock) }
}

// WithBackOffFactory overrides the retry schedule, for tests.
func WithBackOffFactory(f func() backoff.BackOff) DispatcherOption {
	return func(d *Dispatcher) { d.newBackOff = f }
}

// NewDispatcher returns a dispatcher with no channels registered.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		channels:   make(map[string]Channel),
		stats:      make(map[string]*ChannelStats),
		templates:  NewTemplates(),
		clock:      clock.New(),
		newBackOff: defaultBackOff,
	}
	d.throttle = NewThrottle(DefaultThrottleInterval, d.clock)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// 1s, 2s, 4s; randomisation off so the schedule is the documented one.
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 4 * time.Second
	b.MaxElapsedTime = dispatchBudget
	return b
}

// AddChannel registers a configured channel under name. Registration order
// is preserved for status output.
func (d *Dispatcher) AddChannel(name string, ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.channels[name]; !dup {
		d.order = append(d.order, name)
	}
	d.channels[name] = ch
	d.stats[name] = &ChannelStats{}
}

// ChannelNames returns the registered channel names in registration order.
func (d *Dispatcher) ChannelNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.order))
	copy(names, d.order)
	return names
}

// Stats returns a snapshot of every channel's delivery counters.
func (d *Dispatcher) Stats() map[string]StatsSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]StatsSnapshot, len(d.stats))
	for name, s := range d.stats {
		out[name] = StatsSnapshot{
			Sent:    s.Sent.Load(),
			Failed:  s.Failed.Load(),
			Retried: s.Retried.Load(),
		}
	}
	return out
}

// Dispatch delivers event to its target channels (all registered channels
// when the event names none). Channel failures are aggregated; one channel
// never blocks another. Test events bypass the throttle.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) error {
	if event.Kind != KindTest && !d.throttle.Allow(event.ThrottleKey()) {
		log.Debugf("notify: throttled %s event for %s", event.Kind, event.SourceID)
		return ErrThrottled
	}

	targets := d.targets(event)
	if len(targets) == 0 {
		log.Warnf("notify: no channels to deliver %s event for %s", event.Kind, event.SourceID) //nolint:errcheck
		return nil
	}

	budgetCtx, cancel := context.WithTimeout(ctx, dispatchBudget)
	defer cancel()

	var (
		errMu  sync.Mutex
		result *multierror.Error
	)
	g, gctx := errgroup.WithContext(budgetCtx)
	for _, name := range targets {
		name := name
		ch := d.channel(name)
		g.Go(func() error {
			if err := d.deliver(gctx, name, ch, event); err != nil {
				errMu.Lock()
				result = multierror.Append(result, err)
				errMu.Unlock()
			}
			// Errors are collected, not returned: returning one would
			// cancel the sibling deliveries.
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return result.ErrorOrNil()
}

func (d *Dispatcher) channel(name string) Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.channels[name]
}

func (d *Dispatcher) channelStats(name string) *ChannelStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats[name]
}

func (d *Dispatcher) targets(event *Event) []string {
	if len(event.Channels) == 0 {
		return d.ChannelNames()
	}
	targets := make([]string, 0, len(event.Channels))
	for _, name := range event.Channels {
		if d.channel(name) != nil {
			targets = append(targets, name)
		} else {
			log.Warnf("notify: event targets unknown channel %q", name) //nolint:errcheck
		}
	}
	return targets
}

// deliver renders the event for one channel and sends it, retrying
// transient failures until the retry or budget limit.
func (d *Dispatcher) deliver(ctx context.Context, name string, ch Channel, event *Event) error {
	rendered := *event
	rendered.Message = d.templates.Render(name, event)

	stats := d.channelStats(name)
	attempt := 0
	op := func() error {
		attemptCtx, cancel := d.attemptContext(ctx)
		defer cancel()

		if attempt > 0 {
			stats.Retried.Inc()
		}
		attempt++

		res := ch.Send(attemptCtx, &rendered)
		switch res.Outcome {
		case SendOK:
			return nil
		case SendPermanent:
			return backoff.Permanent(res.Err)
		default:
			return res.Err
		}
	}

	bo := backoff.WithMaxRetries(backoff.WithContext(d.newBackOff(), ctx), maxRetries)
	err := backoff.Retry(op, bo)
	if err != nil {
		stats.Failed.Inc()
		log.Errorf("notify: %s delivery failed for event %s: %s", name, event.ID, err) //nolint:errcheck
		return err
	}
	stats.Sent.Inc()
	log.Debugf("notify: %s delivered event %s", name, event.ID)
	return nil
}

func (d *Dispatcher) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, sendTimeout)
}
