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
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/glebarez/sqlite" // Pure Go SQLite driver (no CGO required)
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/uptimeguard/monitorcore/internal/model"
)

// GormStore implements Store using GORM against sqlite, postgres, or
// mysql, following the teacher's single-type/dialect-switch approach
// (internal/store/gorm.go) rather than one type per dialect.
type GormStore struct {
	db      *gorm.DB
	dialect string
	dsn     string
}

// ConnectionPoolConfig holds connection pool settings.
type ConnectionPoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewGormStore creates a new GORM-based store.
func NewGormStore(dialect string, dsn string) (*GormStore, error) {
	return NewGormStoreWithPool(dialect, dsn, ConnectionPoolConfig{})
}

// NewGormStoreWithPool creates a new GORM-based store with connection
// pool settings applied for non-SQLite backends.
func NewGormStoreWithPool(dialect string, dsn string, pool ConnectionPoolConfig) (*GormStore, error) {
	var dialector gorm.Dialector
	switch dialect {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect != "sqlite" && (pool.MaxIdleConns > 0 || pool.MaxOpenConns > 0 || pool.ConnMaxLifetime > 0 || pool.ConnMaxIdleTime > 0) {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB for pool config: %w", err)
		}
		if pool.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
		}
		if pool.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
		}
		if pool.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
		}
		if pool.ConnMaxIdleTime > 0 {
			sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
		}
	}

	return &GormStore{db: db, dialect: dialect, dsn: dsn}, nil
}

// Init initializes the store via auto-migration.
func (s *GormStore) Init() error {
	return s.db.AutoMigrate(&targetRecord{}, &observationRecord{}, &jobLogRecord{}, &ChannelStatsRecord{})
}

// Close closes the store and releases resources.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) CreateTarget(ctx context.Context, t *model.Target) error {
	return s.db.WithContext(ctx).Create(targetToRecord(t)).Error
}

func (s *GormStore) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	var r targetRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return recordToTarget(&r), nil
}

func (s *GormStore) UpdateTargetConfig(ctx context.Context, t *model.Target) error {
	r := targetToRecord(t)
	return s.db.WithContext(ctx).Model(&targetRecord{}).Where("id = ?", t.ID).Updates(map[string]any{
		"name":                   r.Name,
		"address":                r.Address,
		"kind":                   r.Kind,
		"owner_plan":             r.OwnerPlan,
		"owner_role":             r.OwnerRole,
		"user_priority":          r.UserPriority,
		"frequency_minutes":      r.FrequencyMinutes,
		"days_of_week":           r.DaysOfWeek,
		"time_windows":           r.TimeWindows,
		"alerts_enabled":         r.AlertsEnabled,
		"alerts_email":           r.AlertsEmail,
		"alerts_phone":           r.AlertsPhone,
		"alerts_webhook_url":     r.AlertsWebhookURL,
		"response_threshold_ms":  r.ResponseThresholdMs,
		"alert_window_start":     r.AlertWindowStart,
		"alert_window_end":       r.AlertWindowEnd,
		"trial_ends_at":          r.TrialEndsAt,
		"contact_emails":         r.ContactEmails,
		"contact_phones":         r.ContactPhones,
	}).Error
}

// UpdateTargetObservationFields is the Worker Pool's targeted field
// patch (§5): it touches only the fields the Worker Pool owns, leaving
// the config fields the REST layer owns untouched, avoiding lost updates
// between the two writers.
func (s *GormStore) UpdateTargetObservationFields(ctx context.Context, t *model.Target) error {
	return s.db.WithContext(ctx).Model(&targetRecord{}).Where("id = ?", t.ID).Updates(map[string]any{
		"status":             string(t.Status),
		"last_checked":       t.LastChecked,
		"last_status_change": t.LastStatusChange,
		"last_latency_ms":    t.LastLatencyMs,
		"last_error":         t.LastError,
	}).Error
}

func (s *GormStore) DeleteTarget(ctx context.Context, id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Where("target_id = ?", id).Delete(&observationRecord{}).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Where("id = ?", id).Delete(&targetRecord{}).Error
	})
}

// ListDueTargets returns every target ordered oldest-checked-first
// (nulls first), for the Scheduler to apply the full §4.1 selection
// predicate, priority assignment, and gating against in Go — dialect
// portability across sqlite/postgres/mysql date arithmetic is not worth
// the complexity of pushing the adaptive-interval predicate into SQL.
func (s *GormStore) ListDueTargets(ctx context.Context, now time.Time) ([]*model.Target, error) {
	var records []targetRecord
	order := "last_checked IS NULL DESC, last_checked ASC"
	if err := s.db.WithContext(ctx).Order(order).Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Target, len(records))
	for i := range records {
		out[i] = recordToTarget(&records[i])
	}
	return out, nil
}

func (s *GormStore) ListTargetsByOwner(ctx context.Context, ownerID string) ([]*model.Target, error) {
	var records []targetRecord
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Target, len(records))
	for i := range records {
		out[i] = recordToTarget(&records[i])
	}
	return out, nil
}

func (s *GormStore) RecordObservation(ctx context.Context, o model.Observation) error {
	return s.db.WithContext(ctx).Create(observationToRecord(o)).Error
}

func (s *GormStore) ListObservations(ctx context.Context, targetID string, since time.Time, limit int) ([]model.Observation, error) {
	var records []observationRecord
	q := s.db.WithContext(ctx).Where("target_id = ? AND timestamp >= ?", targetID, since).Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]model.Observation, len(records))
	for i := range records {
		out[i] = recordToObservation(&records[i])
	}
	return out, nil
}

func (s *GormStore) StartJobLog(ctx context.Context, name string, startedAt time.Time) (int64, error) {
	r := &jobLogRecord{Name: name, StartedAt: startedAt, Status: string(model.JobRunning)}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return 0, err
	}
	return r.ID, nil
}

func (s *GormStore) CompleteJobLog(ctx context.Context, id int64, status model.JobStatus, result, errStr string, completedAt time.Time) error {
	return s.db.WithContext(ctx).Model(&jobLogRecord{}).Where("id = ?", id).Updates(map[string]any{
		"status":       string(status),
		"result":       result,
		"error":        errStr,
		"completed_at": completedAt,
	}).Error
}

func (s *GormStore) ListJobLogs(ctx context.Context, since time.Time) ([]model.JobLogEntry, error) {
	var records []jobLogRecord
	if err := s.db.WithContext(ctx).Where("started_at >= ?", since).Order("started_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]model.JobLogEntry, len(records))
	for i := range records {
		out[i] = recordToJobLog(&records[i])
	}
	return out, nil
}

// SaveChannelStats persists channel statistics using upsert, grounded
// verbatim on the teacher's clause.OnConflict pattern.
func (s *GormStore) SaveChannelStats(ctx context.Context, stats ChannelStatsRecord) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel_name"}},
			UpdateAll: true,
		}).Create(&stats).Error
}

func (s *GormStore) GetChannelStats(ctx context.Context, channelName string) (*ChannelStatsRecord, error) {
	var stats ChannelStatsRecord
	err := s.db.WithContext(ctx).Where("channel_name = ?", channelName).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *GormStore) GetAllChannelStats(ctx context.Context) (map[string]*ChannelStatsRecord, error) {
	var records []ChannelStatsRecord
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}
	result := make(map[string]*ChannelStatsRecord, len(records))
	for i := range records {
		result[records[i].ChannelName] = &records[i]
	}
	return result, nil
}

// GetStorageStats reports total data size and observation count,
// branching per dialect exactly as the teacher's GetMetrics branches on
// s.dialect for native percentile SQL.
func (s *GormStore) GetStorageStats(ctx context.Context) (StorageStats, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&observationRecord{}).Count(&count).Error; err != nil {
		return StorageStats{}, err
	}

	var sizeBytes int64
	switch s.dialect {
	case "postgres":
		var dbName string
		row := s.db.WithContext(ctx).Raw("SELECT current_database()").Row()
		_ = row.Scan(&dbName)
		row = s.db.WithContext(ctx).Raw("SELECT pg_database_size(?)", dbName).Row()
		_ = row.Scan(&sizeBytes)
	case "mysql":
		row := s.db.WithContext(ctx).Raw(
			"SELECT COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables WHERE table_schema = DATABASE()",
		).Row()
		_ = row.Scan(&sizeBytes)
	default: // sqlite
		// The DSN carries connection options after '?'; stat the file path only.
		path := s.dsn
		for i := 0; i < len(path); i++ {
			if path[i] == '?' {
				path = path[:i]
				break
			}
		}
		if fi, err := os.Stat(path); err == nil {
			sizeBytes = fi.Size()
		}
	}

	return StorageStats{TotalSizeBytes: sizeBytes, ObservationCount: count}, nil
}

func (s *GormStore) PruneObservationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&observationRecord{})
	return result.RowsAffected, result.Error
}

func (s *GormStore) DeleteAllObservations(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("1 = 1").Delete(&observationRecord{})
	return result.RowsAffected, result.Error
}

func (s *GormStore) PruneJobLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("started_at < ?", cutoff).Delete(&jobLogRecord{})
	return result.RowsAffected, result.Error
}

func (s *GormStore) DeleteAllJobLogs(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("1 = 1").Delete(&jobLogRecord{})
	return result.RowsAffected, result.Error
}

// Compact requests storage compaction of the observation and job_log
// tables, per §4.6's aggressive tier. Only SQLite's VACUUM has a
// portable equivalent across the three dialects wired here; Postgres
// and MySQL compaction is an operator-scheduled VACUUM/OPTIMIZE TABLE
// job outside this process, so for those dialects Compact returns nil
// without doing anything (and without logging) rather than block the
// sweeper on a potentially long-running DDL statement.
func (s *GormStore) Compact(ctx context.Context) error {
	if s.dialect != "sqlite" {
		return nil
	}
	return s.db.WithContext(ctx).Exec("VACUUM").Error
}

// Health checks if the store is healthy.
func (s *GormStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
