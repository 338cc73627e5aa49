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

// Package scheduler implements the periodic tick that enumerates due
// targets and enqueues probe jobs, grounded on the teacher's
// Start(ctx)/Stop() ticker-loop shape from
// internal/scheduler/deadman.go and internal/scheduler/pruner.go.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/uptimeguard/monitorcore/internal/metrics"
	"github.com/uptimeguard/monitorcore/internal/model"
	"github.com/uptimeguard/monitorcore/internal/queue"
	"github.com/uptimeguard/monitorcore/internal/reliability"
	"github.com/uptimeguard/monitorcore/internal/store"
)

const (
	tickInterval  = 60 * time.Second
	lockName      = "scheduler-tick"
	instabilityWindow = 30 * time.Minute
	probeMaxAttempts  = 3
)

// Scheduler runs the 60s selection/gating/priority/enqueue tick
// described in §4.1. Mutual exclusion across ticks (and across
// replicas sharing the same queue database) is enforced by the
// queue's advisory lock rather than just the in-process mutex, so a
// slow tick anywhere never overlaps the next.
type Scheduler struct {
	store      store.Store
	queue      *queue.Queue
	tracker    *reliability.Tracker
	timezone   *time.Location
	instanceID string
	log        logr.Logger

	interval time.Duration
	stopCh   chan struct{}
	running  bool
	mu       sync.Mutex
}

// New creates a Scheduler. timezone is the IANA timezone name used for
// day-of-week/time-window evaluation (spec.md's TIMEZONE env var).
func New(st store.Store, q *queue.Queue, tracker *reliability.Tracker, timezone, instanceID string, log logr.Logger) *Scheduler {
	return &Scheduler{
		store:      st,
		queue:      q,
		tracker:    tracker,
		timezone:   loadTimezone(timezone),
		instanceID: instanceID,
		log:        log,
		interval:   tickInterval,
		stopCh:     make(chan struct{}),
	}
}

// SetInterval overrides the tick interval, for tests.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
}

// Start runs the tick loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	interval := s.interval
	s.mu.Unlock()

	s.log.Info("starting scheduler", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop halts the tick loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stopCh)
		s.running = false
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	acquired, err := s.queue.AcquireLock(lockName, s.instanceID)
	if err != nil {
		s.log.Error(err, "failed to acquire scheduler tick lock")
		return
	}
	if !acquired {
		s.log.Info("scheduler tick skipped: lock held by another instance")
		return
	}
	defer func() {
		if err := s.queue.ReleaseLock(lockName, s.instanceID); err != nil {
			s.log.Error(err, "failed to release scheduler tick lock")
		}
	}()

	tickStarted := time.Now()
	now := tickStarted.In(s.timezone)
	jobID, err := s.store.StartJobLog(ctx, "scheduler_tick", now)
	if err != nil {
		s.log.Error(err, "failed to start job log for scheduler tick")
	}

	enqueued, err := s.runTick(ctx, now)
	metrics.SchedulerTickDurationSeconds.Observe(time.Since(tickStarted).Seconds())

	status := model.JobCompleted
	errMsg := ""
	if err != nil {
		status = model.JobFailed
		errMsg = err.Error()
		s.log.Error(err, "scheduler tick failed")
	}

	if depth, derr := s.queue.Depth("probes"); derr != nil {
		s.log.Error(derr, "failed to read probe queue depth")
	} else {
		metrics.SetQueueDepth("probes", depth)
	}

	if jobID != 0 {
		result := fmt.Sprintf("enqueued %d probe jobs", enqueued)
		if err := s.store.CompleteJobLog(ctx, jobID, status, result, errMsg, time.Now()); err != nil {
			s.log.Error(err, "failed to complete job log for scheduler tick")
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context, now time.Time) (int, error) {
	targets, err := s.store.ListDueTargets(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("listing targets: %w", err)
	}

	tickMs := now.UnixMilli()
	enqueued := 0

	for _, t := range targets {
		if !isDue(t, now) {
			continue
		}
		if !passesGating(t, now, s.timezone) {
			continue
		}

		priority := s.priorityFor(t, now)
		dedupKey := fmt.Sprintf("check-%s-%d", t.ID, tickMs)

		payload, err := json.Marshal(model.ProbeJob{
			TargetID:      t.ID,
			EnqueuedAt:    now,
			PriorityScore: priority,
		})
		if err != nil {
			s.log.Error(err, "failed to marshal probe job", "target", t.ID)
			continue
		}

		if err := s.queue.Enqueue("probes", dedupKey, priority, payload, probeMaxAttempts); err != nil {
			s.log.Error(err, "failed to enqueue probe job, will retry next tick", "target", t.ID)
			continue
		}
		enqueued++
	}

	return enqueued, nil
}

// isDue implements the §4.1(1)-(2) selection predicate.
func isDue(t *model.Target, now time.Time) bool {
	if t.LastChecked == nil {
		return true
	}
	return now.Sub(*t.LastChecked) >= adaptiveInterval(t)
}

func adaptiveInterval(t *model.Target) time.Duration {
	freq := time.Duration(t.Monitoring.FrequencyMinutes) * time.Minute
	switch t.Status {
	case model.StatusDown:
		return minDuration(freq, 2*time.Minute)
	case model.StatusUnknown:
		return minDuration(freq, 3*time.Minute)
	default:
		return freq
	}
}

// passesGating implements the §4.1(3)-(6) trial/admin/day/window filters.
func passesGating(t *model.Target, now time.Time, tz *time.Location) bool {
	isPrivileged := t.OwnerRole == model.RoleAdmin || t.OwnerPlan == model.PlanAdmin

	if !isPrivileged && t.OwnerPlan == model.PlanFree {
		if t.Monitoring.TrialEndsAt != nil && t.Monitoring.TrialEndsAt.Before(now) {
			return false
		}
	}

	if len(t.Monitoring.DaysOfWeek) > 0 && !model.MatchesDayOfWeek(t.Monitoring.DaysOfWeek, now, tz) {
		return false
	}

	if len(t.Monitoring.TimeWindows) > 0 && !t.Monitoring.HasAlwaysOnWindow() {
		if !model.InAnyWindow(t.Monitoring.TimeWindows, now) {
			return false
		}
	}

	return true
}

// priorityFor implements the §4.1 priority-assignment rules.
func (s *Scheduler) priorityFor(t *model.Target, now time.Time) int {
	score := t.UserPriority.Score()

	if t.Status == model.StatusDown {
		score = model.PriorityHigh.Score()
	}
	if t.LastStatusChange != nil && now.Sub(*t.LastStatusChange) <= instabilityWindow {
		score = model.PriorityHigh.Score()
	}

	return score
}
