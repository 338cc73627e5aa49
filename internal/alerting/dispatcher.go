/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package alerting implements the gate-classify-dispatch alert
// pipeline: the Worker Pool hands it AlertIntents, and it fans them out
// to email/webhook/slack channels while enforcing flap suppression,
// alert time windows, a global dispatch rate limit, and FIFO-per-target
// delivery order. Shaped directly on the teacher's dispatcher struct
// (channel registry, per-channel ChannelStats, global rate.Limiter,
// hourly cleanup goroutine) in internal/alerting/dispatcher.go.
package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/uptimeguard/monitorcore/internal/config"
	"github.com/uptimeguard/monitorcore/internal/metrics"
	"github.com/uptimeguard/monitorcore/internal/model"
	"github.com/uptimeguard/monitorcore/internal/queue"
	"github.com/uptimeguard/monitorcore/internal/ratelimit"
	"github.com/uptimeguard/monitorcore/internal/reliability"
	"github.com/uptimeguard/monitorcore/internal/store"
)

const (
	alertTopic            = "alerts"
	flapSuppressThreshold = 0.8
	deadLetterRetention   = 24 * time.Hour
	deadLetterSweep       = 1 * time.Hour
	pollInterval          = 250 * time.Millisecond
)

// Dispatcher gates, classifies, and dispatches AlertIntents.
type Dispatcher struct {
	store   store.Store
	queue   *queue.Queue
	tracker *reliability.Tracker
	limiter *ratelimit.Limiter
	log     logr.Logger

	concurrency int
	timezone    *time.Location

	channels      []Channel
	targetLanesMu sync.Mutex
	targetLanes   map[string]*sync.Mutex

	statsMu sync.Mutex
	stats   map[string]*ChannelStats

	deadMu      sync.Mutex
	deadLetters []DeadLetter
}

// New creates a Dispatcher and resolves its channel set from cfg.
func New(st store.Store, q *queue.Queue, tracker *reliability.Tracker, cfg config.AlertingConfig, smtp config.SMTPConfig, timezone string, log logr.Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		store:       st,
		queue:       q,
		tracker:     tracker,
		limiter:     ratelimit.New(orDefault(cfg.GlobalRatePerSec, 50), orDefault(cfg.GlobalRatePerSec, 50)),
		log:         log,
		concurrency: orDefault(cfg.ChannelConcurrency, 10),
		timezone:    loadTimezoneOrUTC(timezone),
		targetLanes: make(map[string]*sync.Mutex),
		stats:       make(map[string]*ChannelStats),
	}

	email, err := NewEmailChannel(smtp, d.recordDeadLetter, log)
	if err != nil {
		return nil, fmt.Errorf("building email channel: %w", err)
	}
	d.channels = append(d.channels, email, NewWebhookChannel())

	if slack, err := NewSlackChannel(cfg.SlackWebhookURL); err != nil {
		return nil, fmt.Errorf("building slack channel: %w", err)
	} else if slack != nil {
		d.channels = append(d.channels, slack)
	}

	return d, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func loadTimezoneOrUTC(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Enqueue applies the §4.5 gating order and, if the alert survives,
// queues it for dispatch. It implements workerpool.AlertEnqueuer.
func (d *Dispatcher) Enqueue(intent model.AlertIntent) error {
	target, err := d.store.GetTarget(context.Background(), intent.TargetID)
	if err != nil {
		return fmt.Errorf("loading target for alert gating: %w", err)
	}
	if target == nil {
		return nil
	}

	alerts := target.Monitoring.Alerts
	if !alerts.Enabled {
		return nil
	}

	if !alerts.TimeWindow.IsAlwaysOn() && !model.InWindow(alerts.TimeWindow, time.Now().In(d.timezone)) {
		return nil
	}

	isTransition := intent.Kind == model.IntentServerDown || intent.Kind == model.IntentServerRecovery
	if isTransition && d.tracker.Get(intent.TargetID).Rate > flapSuppressThreshold {
		return nil
	}

	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshaling alert intent: %w", err)
	}

	dedupKey := fmt.Sprintf("alert-%s-%s-%d", intent.TargetID, intent.Kind, intent.DetectedAt.UnixNano())
	return d.queue.Enqueue(alertTopic, dedupKey, intent.Priority.Score(), payload, 1)
}

// Start drains the alert queue with Concurrency workers until ctx is
// cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.log.Info("starting alert dispatcher", "concurrency", d.concurrency)

	var wg sync.WaitGroup
	wg.Add(d.concurrency)
	for i := 0; i < d.concurrency; i++ {
		go func() {
			defer wg.Done()
			d.loop(ctx)
		}()
	}

	sweepTicker := time.NewTicker(deadLetterSweep)
	defer sweepTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-sweepTicker.C:
			d.sweepDeadLetters()
			if depth, derr := d.queue.Depth(alertTopic); derr != nil {
				d.log.Error(derr, "failed to read alert queue depth")
			} else {
				metrics.SetQueueDepth(alertTopic, depth)
			}
		}
	}
}

func (d *Dispatcher) loop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drainOnce(ctx)
		}
	}
}

func (d *Dispatcher) drainOnce(ctx context.Context) {
	if err := d.limiter.Wait(ctx); err != nil {
		return
	}

	job, err := d.queue.Dequeue(alertTopic)
	if err != nil {
		d.log.Error(err, "failed to dequeue alert job")
		return
	}
	if job == nil {
		return
	}

	var intent model.AlertIntent
	if err := json.Unmarshal(job.Payload, &intent); err != nil {
		d.log.Error(err, "dropping alert job with unreadable payload")
		return
	}

	lane := d.laneFor(intent.TargetID)
	lane.Lock()
	defer lane.Unlock()

	d.dispatch(ctx, intent)
}

func (d *Dispatcher) laneFor(targetID string) *sync.Mutex {
	d.targetLanesMu.Lock()
	defer d.targetLanesMu.Unlock()
	lane, ok := d.targetLanes[targetID]
	if !ok {
		lane = &sync.Mutex{}
		d.targetLanes[targetID] = lane
	}
	return lane
}

func (d *Dispatcher) dispatch(ctx context.Context, intent model.AlertIntent) {
	target, err := d.store.GetTarget(ctx, intent.TargetID)
	if err != nil || target == nil {
		return
	}

	msg := AlertMessage{
		Kind:          string(intent.Kind),
		TargetID:      target.ID,
		TargetName:    target.Name,
		TargetAddr:    target.Address,
		OldStatus:     string(intent.OldStatus),
		NewStatus:     string(intent.NewStatus),
		LatencyMs:     derefOrZero(intent.Snapshot.LatencyMs),
		Error:         intent.Snapshot.Error,
		Timestamp:     intent.DetectedAt,
		ContactEmails: target.ContactEmails,
		WebhookURL:    target.Monitoring.Alerts.WebhookURL,
	}

	for _, ch := range d.channels {
		if ch == nil {
			continue
		}
		if ch.Type() == "email" && (!target.Monitoring.Alerts.Email || len(msg.ContactEmails) == 0) {
			continue
		}
		if ch.Type() == "webhook" && msg.WebhookURL == "" {
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			d.recordFailure(ch.Name(), err)
			d.log.Error(err, "alert dispatch failed", "channel", ch.Name(), "target", target.ID)
		} else {
			d.recordSuccess(ch.Name())
		}
	}
}

func derefOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func (d *Dispatcher) recordSuccess(channel string) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	s := d.statForLocked(channel)
	s.AlertsSentTotal++
	s.LastAlertTime = time.Now()
	s.ConsecutiveFailures = 0
	d.persistStats(channel, *s)
	metrics.RecordAlertDispatch(channel, "success")
}

func (d *Dispatcher) recordFailure(channel string, err error) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	s := d.statForLocked(channel)
	s.AlertsFailedTotal++
	s.LastFailedTime = time.Now()
	s.LastFailedError = err.Error()
	s.ConsecutiveFailures++
	d.persistStats(channel, *s)
	metrics.RecordAlertDispatch(channel, "failure")
}

func (d *Dispatcher) statForLocked(channel string) *ChannelStats {
	s, ok := d.stats[channel]
	if !ok {
		s = &ChannelStats{}
		d.stats[channel] = s
	}
	return s
}

func (d *Dispatcher) persistStats(channel string, stats ChannelStats) {
	if d.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		record := store.ChannelStatsRecord{
			ChannelName:         channel,
			AlertsSentTotal:     stats.AlertsSentTotal,
			AlertsFailedTotal:   stats.AlertsFailedTotal,
			ConsecutiveFailures: stats.ConsecutiveFailures,
			LastFailedError:     stats.LastFailedError,
		}
		if !stats.LastAlertTime.IsZero() {
			record.LastAlertTime = &stats.LastAlertTime
		}
		if !stats.LastFailedTime.IsZero() {
			record.LastFailedTime = &stats.LastFailedTime
		}
		_ = d.store.SaveChannelStats(ctx, record)
	}()
}

// GetChannelStats returns a snapshot of one channel's stats, or nil if
// unknown.
func (d *Dispatcher) GetChannelStats(channel string) *ChannelStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	s, ok := d.stats[channel]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (d *Dispatcher) recordDeadLetter(dl DeadLetter) {
	d.deadMu.Lock()
	defer d.deadMu.Unlock()
	d.deadLetters = append(d.deadLetters, dl)
}

// DeadLetters returns the currently retained (not yet swept) email dead
// letters, for operator inspection.
func (d *Dispatcher) DeadLetters() []DeadLetter {
	d.deadMu.Lock()
	defer d.deadMu.Unlock()
	out := make([]DeadLetter, len(d.deadLetters))
	copy(out, d.deadLetters)
	return out
}

func (d *Dispatcher) sweepDeadLetters() {
	cutoff := time.Now().Add(-deadLetterRetention)
	d.deadMu.Lock()
	defer d.deadMu.Unlock()
	kept := d.deadLetters[:0]
	for _, dl := range d.deadLetters {
		if dl.FailedAt.After(cutoff) {
			kept = append(kept, dl)
		}
	}
	d.deadLetters = kept
}
