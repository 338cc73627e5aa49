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

// Package coreapi is the narrow collaborator surface the ambient REST
// layer calls into: read-only target/observation queries plus manual
// probe invocation honoring the same cooldown and batch limits as
// automated scheduling. Kept separate from internal/api so the HTTP
// framework choice never leaks into the domain logic, mirroring the
// teacher's own handlers/business-logic split in internal/api.
package coreapi

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/uptimeguard/monitorcore/internal/metrics"
	"github.com/uptimeguard/monitorcore/internal/model"
	"github.com/uptimeguard/monitorcore/internal/probe"
	"github.com/uptimeguard/monitorcore/internal/pubsub"
	"github.com/uptimeguard/monitorcore/internal/reliability"
	"github.com/uptimeguard/monitorcore/internal/store"
)

const (
	manualProbeCooldown  = 30 * time.Second
	batchMaxTargets      = 10
	batchConcurrency     = 5
	batchSubBatchSpacing = 200 * time.Millisecond
)

// ErrCooldown is returned when a manual probe is rejected because the
// target was checked too recently and force was not requested.
type ErrCooldown struct {
	RetryAfter time.Duration
}

func (e *ErrCooldown) Error() string {
	return fmt.Sprintf("target checked too recently, retry after %s", e.RetryAfter)
}

// ErrBatchTooLarge is returned when a batch probe request exceeds the
// per-call target cap.
type ErrBatchTooLarge struct{ Max int }

func (e *ErrBatchTooLarge) Error() string {
	return fmt.Sprintf("batch probe requests are capped at %d targets", e.Max)
}

// API is the collaborator the REST layer delegates to.
type API struct {
	store     store.Store
	engine    *probe.Engine
	tracker   *reliability.Tracker
	publisher pubsub.Publisher
	log       logr.Logger
}

func New(st store.Store, engine *probe.Engine, tracker *reliability.Tracker, publisher pubsub.Publisher, log logr.Logger) *API {
	return &API{store: st, engine: engine, tracker: tracker, publisher: publisher, log: log}
}

// GetTarget returns a target by id, or nil if not found.
func (a *API) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	return a.store.GetTarget(ctx, id)
}

// ListObservations returns a target's observation history since a
// given time, in the order the store returns them (GormStore returns
// them most-recent-first).
func (a *API) ListObservations(ctx context.Context, targetID string, since time.Time, limit int) ([]model.Observation, error) {
	return a.store.ListObservations(ctx, targetID, since, limit)
}

// ManualProbe runs a single out-of-band probe for targetID, subject to
// the 30s cooldown unless force is true. It persists the observation
// and publishes the update the same way the Worker Pool does, but does
// not emit alert intents — manual probes are an operator diagnostic,
// not a monitoring signal.
func (a *API) ManualProbe(ctx context.Context, targetID string, force bool) (*model.Observation, error) {
	return a.probe(ctx, targetID, force, model.CheckManual)
}

func (a *API) probe(ctx context.Context, targetID string, force bool, checkType model.CheckType) (*model.Observation, error) {
	target, err := a.store.GetTarget(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("loading target: %w", err)
	}
	if target == nil {
		return nil, nil
	}

	if !force && target.LastChecked != nil {
		elapsed := time.Since(*target.LastChecked)
		if elapsed < manualProbeCooldown {
			return nil, &ErrCooldown{RetryAfter: manualProbeCooldown - elapsed}
		}
	}

	return a.runProbe(ctx, target, checkType)
}

// BatchProbe runs manual probes for up to batchMaxTargets targets,
// batchConcurrency at a time, spacing successive sub-batches by
// batchSubBatchSpacing. Individual target failures are reported
// per-target rather than aborting the batch.
func (a *API) BatchProbe(ctx context.Context, targetIDs []string, force bool) (map[string]*model.Observation, map[string]error) {
	results := make(map[string]*model.Observation, len(targetIDs))
	errs := make(map[string]error, len(targetIDs))

	if len(targetIDs) > batchMaxTargets {
		for _, id := range targetIDs {
			errs[id] = &ErrBatchTooLarge{Max: batchMaxTargets}
		}
		return results, errs
	}

	type outcome struct {
		id  string
		obs *model.Observation
		err error
	}

	for start := 0; start < len(targetIDs); start += batchConcurrency {
		end := start + batchConcurrency
		if end > len(targetIDs) {
			end = len(targetIDs)
		}
		sub := targetIDs[start:end]

		out := make(chan outcome, len(sub))
		for _, id := range sub {
			go func(id string) {
				obs, err := a.probe(ctx, id, force, model.CheckBatch)
				out <- outcome{id: id, obs: obs, err: err}
			}(id)
		}
		for range sub {
			o := <-out
			if o.err != nil {
				errs[o.id] = o.err
			} else {
				results[o.id] = o.obs
			}
		}

		if end < len(targetIDs) {
			time.Sleep(batchSubBatchSpacing)
		}
	}

	return results, errs
}

// InvalidateTarget is a hook for the REST layer to signal that a
// target's config changed out-of-band (e.g. a direct DB edit), so any
// in-memory caches should drop it. The Worker Pool and Scheduler read
// straight from the store on every cycle, so today this is a no-op
// placeholder kept for forward compatibility with a future caching
// layer; it still publishes an update so subscribers refresh.
func (a *API) InvalidateTarget(targetID string) {
	a.publisher.Publish(pubsub.Update{TargetID: targetID})
}

// DeleteTarget removes a target and clears its exported metric series,
// so a deleted target's gauges don't linger in /metrics indefinitely.
func (a *API) DeleteTarget(ctx context.Context, targetID string) error {
	if err := a.store.DeleteTarget(ctx, targetID); err != nil {
		return fmt.Errorf("deleting target: %w", err)
	}
	metrics.ResetTarget(targetID)
	a.publisher.Publish(pubsub.Update{TargetID: targetID})
	return nil
}

func (a *API) runProbe(ctx context.Context, target *model.Target, checkType model.CheckType) (*model.Observation, error) {
	cell := a.tracker.Get(target.ID)
	result := a.engine.Probe(ctx, target, cell.Rate, target.Monitoring.Alerts.ResponseThresholdMs)

	now := time.Now()
	obs := model.Observation{
		TargetID:  target.ID,
		Status:    result.Status,
		Error:     result.Error,
		Timestamp: now,
		CheckType: checkType,
	}
	if result.LatencyMs > 0 {
		lat := result.LatencyMs
		obs.LatencyMs = &lat
	}

	target.ApplyObservation(result.Status, obs.LatencyMs, result.Error, now)

	if err := a.store.RecordObservation(ctx, obs); err != nil {
		return nil, fmt.Errorf("recording observation: %w", err)
	}
	if err := a.store.UpdateTargetObservationFields(ctx, target); err != nil {
		return nil, fmt.Errorf("updating target fields: %w", err)
	}
	a.tracker.Record(target.ID, result.Status == model.StatusUp)
	a.publisher.Publish(pubsub.Update{
		TargetID:    target.ID,
		Status:      string(target.Status),
		LatencyMs:   result.LatencyMs,
		LastChecked: now.UnixMilli(),
	})

	return &obs, nil
}
