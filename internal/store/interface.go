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

package store

import (
	"context"
	"time"

	"github.com/uptimeguard/monitorcore/internal/model"
)

// StorageStats reports the current footprint of the observation store,
// used by the Retention Sweeper to pick a policy tier (§4.6).
type StorageStats struct {
	TotalSizeBytes   int64
	ObservationCount int64
}

// RetentionResult summarizes one sweeper run for JobLogEntry bookkeeping.
type RetentionResult struct {
	Policy               string
	ObservationsDeleted  int64
	JobLogsDeleted       int64
	CompactionRequested  bool
}

// Store defines the storage interface for targets, observations, and
// job-run bookkeeping. Implementations must satisfy the indexes named
// in §6: (owner_id), (status, last_checked), (owner_id, address) unique,
// (status), (last_checked) on targets; (target_id, timestamp DESC) and
// (timestamp) on observations; (name, started_at DESC), (status) on
// job_log.
type Store interface {
	// Init initializes the store (creates tables, connections, etc.)
	Init() error

	// Close closes the store and releases resources
	Close() error

	// Target operations

	CreateTarget(ctx context.Context, t *model.Target) error
	GetTarget(ctx context.Context, id string) (*model.Target, error)
	UpdateTargetConfig(ctx context.Context, t *model.Target) error
	UpdateTargetObservationFields(ctx context.Context, t *model.Target) error
	DeleteTarget(ctx context.Context, id string) error
	ListDueTargets(ctx context.Context, now time.Time) ([]*model.Target, error)
	ListTargetsByOwner(ctx context.Context, ownerID string) ([]*model.Target, error)

	// Observation operations

	RecordObservation(ctx context.Context, o model.Observation) error
	ListObservations(ctx context.Context, targetID string, since time.Time, limit int) ([]model.Observation, error)

	// Job log operations

	StartJobLog(ctx context.Context, name string, startedAt time.Time) (int64, error)
	CompleteJobLog(ctx context.Context, id int64, status model.JobStatus, result, errStr string, completedAt time.Time) error
	ListJobLogs(ctx context.Context, since time.Time) ([]model.JobLogEntry, error)

	// Channel stats (ambient, alert-pipeline bookkeeping)

	SaveChannelStats(ctx context.Context, stats ChannelStatsRecord) error
	GetChannelStats(ctx context.Context, channelName string) (*ChannelStatsRecord, error)
	GetAllChannelStats(ctx context.Context) (map[string]*ChannelStatsRecord, error)

	// Retention

	GetStorageStats(ctx context.Context) (StorageStats, error)
	PruneObservationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAllObservations(ctx context.Context) (int64, error)
	PruneJobLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAllJobLogs(ctx context.Context) (int64, error)
	Compact(ctx context.Context) error

	// Health checks if the store is healthy
	Health(ctx context.Context) error
}
