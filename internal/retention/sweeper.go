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

// Package retention implements the daily observation/job-log sweep:
// selective, aggressive, or emergency pruning chosen by current storage
// size. Scheduled with github.com/robfig/cron/v3, the same engine
// mailgrid's scheduler/schedule.go uses to drive its own recurring
// jobs, and guarded by the Work Queue's advisory lock so only one
// instance runs a sweep at a time.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"

	"github.com/uptimeguard/monitorcore/internal/metrics"
	"github.com/uptimeguard/monitorcore/internal/model"
	"github.com/uptimeguard/monitorcore/internal/queue"
	"github.com/uptimeguard/monitorcore/internal/store"
)

const (
	lockName = "retention-sweep"

	selectiveMaxBytes  = 500 * 1024 * 1024
	aggressiveMaxBytes = 1024 * 1024 * 1024
	selectiveMaxObs    = 100_000

	selectiveObservationWindow = 24 * time.Hour
	selectiveJobLogWindow      = 48 * time.Hour
	aggressiveJobLogWindow     = 24 * time.Hour
)

// Policy names the tier a sweep ran under.
type Policy string

const (
	PolicySelective  Policy = "selective"
	PolicyAggressive Policy = "aggressive"
	PolicyEmergency  Policy = "emergency"
)

// Sweeper runs the daily retention job against a Store.
type Sweeper struct {
	store      store.Store
	queue      *queue.Queue
	instanceID string
	cron       *cron.Cron
	log        logr.Logger
}

// New creates a Sweeper scheduled for 00:00 in timezone.
func New(st store.Store, q *queue.Queue, instanceID, timezone string, log logr.Logger) (*Sweeper, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	s := &Sweeper{
		store:      st,
		queue:      q,
		instanceID: instanceID,
		cron:       cron.New(cron.WithLocation(loc)),
		log:        log,
	}
	if _, err := s.cron.AddFunc("0 0 * * *", func() { s.Run(context.Background()) }); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the cron engine and blocks until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.log.Info("starting retention sweeper")
	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return nil
}

// Run executes one sweep, classifying the policy tier from current
// storage stats and applying it. Safe to call directly (e.g. from an
// operator-triggered run) in addition to the daily cron trigger.
func (s *Sweeper) Run(ctx context.Context) {
	acquired, err := s.queue.AcquireLock(lockName, s.instanceID)
	if err != nil {
		s.log.Error(err, "failed to acquire retention lock")
		return
	}
	if !acquired {
		s.log.Info("retention sweep already running elsewhere, skipping")
		return
	}
	defer func() {
		if err := s.queue.ReleaseLock(lockName, s.instanceID); err != nil {
			s.log.Error(err, "failed to release retention lock")
		}
	}()

	started := time.Now()

	stats, err := s.store.GetStorageStats(ctx)
	if err != nil {
		s.log.Error(err, "failed to read storage stats for retention sweep")
		return
	}
	policy := classify(stats)

	logID, err := s.store.StartJobLog(ctx, "retention-"+string(policy), started)
	if err != nil {
		s.log.Error(err, "failed to start retention job log")
	}

	result, err := s.run(ctx, policy)
	completed := time.Now()

	status := model.JobCompleted
	errStr := ""
	resultStr := ""
	if err != nil {
		status = model.JobFailed
		errStr = err.Error()
		s.log.Error(err, "retention sweep failed")
	} else {
		resultStr = fmt.Sprintf("observations_deleted=%d job_logs_deleted=%d compaction_requested=%t",
			result.ObservationsDeleted, result.JobLogsDeleted, result.CompactionRequested)
		metrics.RecordRetentionDeletion("observations", string(policy), result.ObservationsDeleted)
		metrics.RecordRetentionDeletion("job_logs", string(policy), result.JobLogsDeleted)
		s.log.Info("retention sweep completed",
			"policy", result.Policy,
			"observations_deleted", result.ObservationsDeleted,
			"job_logs_deleted", result.JobLogsDeleted,
			"compaction_requested", result.CompactionRequested,
			"duration", completed.Sub(started))
	}

	if logID != 0 {
		if cerr := s.store.CompleteJobLog(ctx, logID, status, resultStr, errStr, completed); cerr != nil {
			s.log.Error(cerr, "failed to complete retention job log")
		}
	}
}

func (s *Sweeper) run(ctx context.Context, policy Policy) (store.RetentionResult, error) {
	now := time.Now()
	switch policy {
	case PolicyEmergency:
		return s.runEmergency(ctx)
	case PolicyAggressive:
		return s.runAggressive(ctx, now)
	default:
		return s.runSelective(ctx, now)
	}
}

func classify(stats store.StorageStats) Policy {
	switch {
	case stats.TotalSizeBytes > aggressiveMaxBytes:
		return PolicyEmergency
	case stats.TotalSizeBytes > selectiveMaxBytes || stats.ObservationCount > selectiveMaxObs:
		return PolicyAggressive
	default:
		return PolicySelective
	}
}

func (s *Sweeper) runSelective(ctx context.Context, now time.Time) (store.RetentionResult, error) {
	obsDeleted, err := s.store.PruneObservationsOlderThan(ctx, now.Add(-selectiveObservationWindow))
	if err != nil {
		return store.RetentionResult{}, err
	}
	jobsDeleted, err := s.store.PruneJobLogsOlderThan(ctx, now.Add(-selectiveJobLogWindow))
	if err != nil {
		return store.RetentionResult{}, err
	}
	return store.RetentionResult{
		Policy:              string(PolicySelective),
		ObservationsDeleted: obsDeleted,
		JobLogsDeleted:      jobsDeleted,
	}, nil
}

func (s *Sweeper) runAggressive(ctx context.Context, now time.Time) (store.RetentionResult, error) {
	obsDeleted, err := s.store.DeleteAllObservations(ctx)
	if err != nil {
		return store.RetentionResult{}, err
	}
	jobsDeleted, err := s.store.PruneJobLogsOlderThan(ctx, now.Add(-aggressiveJobLogWindow))
	if err != nil {
		return store.RetentionResult{}, err
	}
	if err := s.store.Compact(ctx); err != nil {
		s.log.Error(err, "compaction request failed after aggressive sweep")
	}
	return store.RetentionResult{
		Policy:              string(PolicyAggressive),
		ObservationsDeleted: obsDeleted,
		JobLogsDeleted:      jobsDeleted,
		CompactionRequested: true,
	}, nil
}

func (s *Sweeper) runEmergency(ctx context.Context) (store.RetentionResult, error) {
	obsDeleted, err := s.store.DeleteAllObservations(ctx)
	if err != nil {
		return store.RetentionResult{}, err
	}
	jobsDeleted, err := s.store.DeleteAllJobLogs(ctx)
	if err != nil {
		return store.RetentionResult{}, err
	}
	return store.RetentionResult{
		Policy:              string(PolicyEmergency),
		ObservationsDeleted: obsDeleted,
		JobLogsDeleted:      jobsDeleted,
	}, nil
}
