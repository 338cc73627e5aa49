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

// Package workerpool drains the probe queue with a bounded pool of
// goroutines, running each job through the probe-persist-publish-alert
// pipeline described for the core monitoring loop. Shaped on the
// teacher's Runnable (Start(ctx) error) convention and its worker-loop
// idiom in internal/scheduler/deadman.go.
package workerpool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/uptimeguard/monitorcore/internal/metrics"
	"github.com/uptimeguard/monitorcore/internal/model"
	"github.com/uptimeguard/monitorcore/internal/probe"
	"github.com/uptimeguard/monitorcore/internal/pubsub"
	"github.com/uptimeguard/monitorcore/internal/queue"
	"github.com/uptimeguard/monitorcore/internal/ratelimit"
	"github.com/uptimeguard/monitorcore/internal/reliability"
	"github.com/uptimeguard/monitorcore/internal/store"
)

const (
	pollInterval    = 250 * time.Millisecond
	shutdownGrace   = 30 * time.Second
	nackBaseBackoff = 1 * time.Second
)

// Pool drains the "probes" topic with Concurrency goroutines, each
// bound by the shared rate limiter and the per-target in-flight guard.
type Pool struct {
	store     store.Store
	queue     *queue.Queue
	engine    *probe.Engine
	tracker   *reliability.Tracker
	publisher pubsub.Publisher
	alerts    AlertEnqueuer
	limiter   *ratelimit.Limiter
	log       logr.Logger

	concurrency int
	inFlight    sync.Map // target id -> struct{}
}

// AlertEnqueuer is the narrow seam the Worker Pool uses to hand off
// AlertIntents without importing the alerting package directly,
// matching the teacher's preference for small collaborator interfaces
// over concrete cross-package struct fields.
type AlertEnqueuer interface {
	Enqueue(intent model.AlertIntent) error
}

// Config bundles Pool's tunables (all optional; zero values fall back
// to the documented defaults from the concurrency model).
type Config struct {
	Concurrency     int
	RateLimitPerSec int
}

// New creates a Pool.
func New(st store.Store, q *queue.Queue, engine *probe.Engine, tracker *reliability.Tracker, publisher pubsub.Publisher, alerts AlertEnqueuer, cfg Config, log logr.Logger) *Pool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 50
	}
	rateLimit := cfg.RateLimitPerSec
	if rateLimit <= 0 {
		rateLimit = 100
	}
	return &Pool{
		store:       st,
		queue:       q,
		engine:      engine,
		tracker:     tracker,
		publisher:   publisher,
		alerts:      alerts,
		limiter:     ratelimit.New(rateLimit, rateLimit),
		log:         log,
		concurrency: concurrency,
	}
}

// Start runs Concurrency worker goroutines until ctx is cancelled, then
// waits up to 30s for in-flight jobs before returning.
func (p *Pool) Start(ctx context.Context) error {
	p.log.Info("starting worker pool", "concurrency", p.concurrency)

	var wg sync.WaitGroup
	wg.Add(p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		go func() {
			defer wg.Done()
			p.loop(ctx)
		}()
	}

	<-ctx.Done()
	p.log.Info("worker pool shutting down, waiting for in-flight jobs")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		p.log.Info("worker pool shutdown grace period elapsed, forcing return")
	}
	return nil
}

func (p *Pool) loop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drainOnce(ctx)
		}
	}
}

func (p *Pool) drainOnce(ctx context.Context) {
	if err := p.limiter.Wait(ctx); err != nil {
		return
	}

	job, err := p.queue.Dequeue("probes")
	if err != nil {
		p.log.Error(err, "failed to dequeue probe job")
		return
	}
	if job == nil {
		return
	}

	var pj model.ProbeJob
	if err := json.Unmarshal(job.Payload, &pj); err != nil {
		p.log.Error(err, "dropping probe job with unreadable payload")
		return
	}

	if _, already := p.inFlight.LoadOrStore(pj.TargetID, struct{}{}); already {
		// A second job for this target arrived while a probe is running;
		// per the in-flight guard this is acked (dropped) rather than
		// retried, since the scheduler's dedup key already covers the
		// common case and a retry here would just race the running probe.
		return
	}
	defer p.inFlight.Delete(pj.TargetID)

	if err := p.process(ctx, pj); err != nil {
		p.nack(job, err)
	}
}

func (p *Pool) nack(job *queue.Job, cause error) {
	backoff := nackBaseBackoff << (job.Attempts)
	if err := p.queue.Nack(job, backoff); err != nil {
		p.log.Error(err, "failed to nack probe job", "target", job.DedupKey)
	} else {
		p.log.Error(cause, "probe job failed, scheduled for retry", "dedup_key", job.DedupKey, "backoff", backoff)
	}
}

// process runs steps (a)-(h) of the per-job pipeline for one ProbeJob.
func (p *Pool) process(ctx context.Context, pj model.ProbeJob) error {
	target, err := p.store.GetTarget(ctx, pj.TargetID)
	if err != nil {
		return fmt.Errorf("loading target %s: %w", pj.TargetID, err)
	}
	if target == nil {
		return nil // (a) target deleted since enqueue: ack and return
	}

	oldStatus := target.Status // (b)

	cell := p.tracker.Get(target.ID)
	result := p.engine.Probe(ctx, target, cell.Rate, target.Monitoring.Alerts.ResponseThresholdMs) // (c)

	now := time.Now()
	obs := model.Observation{
		TargetID:  target.ID,
		Status:    result.Status,
		Error:     result.Error,
		Timestamp: now,
		CheckType: model.CheckAutomated,
	}
	if result.LatencyMs > 0 {
		lat := result.LatencyMs
		obs.LatencyMs = &lat
	}

	changed := target.ApplyObservation(result.Status, obs.LatencyMs, result.Error, now)
	metrics.RecordProbe(target.ID, string(target.Kind), string(result.Status), float64(result.LatencyMs)/1000)

	var mu sync.Mutex
	var persistErr error
	setErr := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		if persistErr == nil {
			persistErr = err
		}
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); setErr(p.store.RecordObservation(ctx, obs)) }()                  // (d)
	go func() { defer wg.Done(); setErr(p.store.UpdateTargetObservationFields(ctx, target)) }()   // (e)
	go func() {
		defer wg.Done()
		p.publisher.Publish(pubsub.Update{ // (f)
			TargetID:    target.ID,
			Status:      string(target.Status),
			LatencyMs:   result.LatencyMs,
			LastChecked: now.UnixMilli(),
		})
	}()
	wg.Wait()
	if persistErr != nil {
		return persistErr
	}

	p.tracker.Record(target.ID, result.Status == model.StatusUp) // (g)

	if changed || isSlowResponse(result.Error) { // (h)
		intent := model.AlertIntent{
			TargetID:   target.ID,
			OldStatus:  oldStatus,
			NewStatus:  target.Status,
			Snapshot:   model.ProbeResultSnapshot{Status: result.Status, LatencyMs: obs.LatencyMs, Error: result.Error},
			DetectedAt: now,
			Priority:   model.AlertPriorityNormal,
		}
		switch {
		case oldStatus == model.StatusUp && target.Status == model.StatusDown:
			intent.Kind = model.IntentServerDown
			intent.Priority = model.AlertPriorityHigh
		case oldStatus != model.StatusUp && target.Status == model.StatusUp:
			intent.Kind = model.IntentServerRecovery
		default:
			intent.Kind = model.IntentSlowResponse
		}
		if p.alerts != nil {
			if err := p.alerts.Enqueue(intent); err != nil {
				p.log.Error(err, "failed to enqueue alert intent", "target", target.ID)
			}
		}
	}

	return nil
}

func isSlowResponse(errStr string) bool {
	const prefix = "Slow response:"
	return len(errStr) >= len(prefix) && errStr[:len(prefix)] == prefix
}
