package retention

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uptimeguard/monitorcore/internal/model"
	"github.com/uptimeguard/monitorcore/internal/queue"
	"github.com/uptimeguard/monitorcore/internal/store"
)

type fakeRetentionStore struct {
	stats              store.StorageStats
	prunedObservations time.Time
	deletedAllObs      bool
	prunedJobLogs      time.Time
	deletedAllJobLogs  bool
	compacted          bool
	startedName        string
	completedStatus    model.JobStatus
	completedResult    string
}

func (f *fakeRetentionStore) Init() error  { return nil }
func (f *fakeRetentionStore) Close() error { return nil }
func (f *fakeRetentionStore) CreateTarget(ctx context.Context, t *model.Target) error { return nil }
func (f *fakeRetentionStore) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	return nil, nil
}
func (f *fakeRetentionStore) UpdateTargetConfig(ctx context.Context, t *model.Target) error {
	return nil
}
func (f *fakeRetentionStore) UpdateTargetObservationFields(ctx context.Context, t *model.Target) error {
	return nil
}
func (f *fakeRetentionStore) DeleteTarget(ctx context.Context, id string) error { return nil }
func (f *fakeRetentionStore) ListDueTargets(ctx context.Context, now time.Time) ([]*model.Target, error) {
	return nil, nil
}
func (f *fakeRetentionStore) ListTargetsByOwner(ctx context.Context, ownerID string) ([]*model.Target, error) {
	return nil, nil
}
func (f *fakeRetentionStore) RecordObservation(ctx context.Context, o model.Observation) error {
	return nil
}
func (f *fakeRetentionStore) ListObservations(ctx context.Context, targetID string, since time.Time, limit int) ([]model.Observation, error) {
	return nil, nil
}
func (f *fakeRetentionStore) StartJobLog(ctx context.Context, name string, startedAt time.Time) (int64, error) {
	f.startedName = name
	return 1, nil
}
func (f *fakeRetentionStore) CompleteJobLog(ctx context.Context, id int64, status model.JobStatus, result, errStr string, completedAt time.Time) error {
	f.completedStatus = status
	f.completedResult = result
	return nil
}
func (f *fakeRetentionStore) ListJobLogs(ctx context.Context, since time.Time) ([]model.JobLogEntry, error) {
	return nil, nil
}
func (f *fakeRetentionStore) SaveChannelStats(ctx context.Context, stats store.ChannelStatsRecord) error {
	return nil
}
func (f *fakeRetentionStore) GetChannelStats(ctx context.Context, channelName string) (*store.ChannelStatsRecord, error) {
	return nil, nil
}
func (f *fakeRetentionStore) GetAllChannelStats(ctx context.Context) (map[string]*store.ChannelStatsRecord, error) {
	return nil, nil
}
func (f *fakeRetentionStore) GetStorageStats(ctx context.Context) (store.StorageStats, error) {
	return f.stats, nil
}
func (f *fakeRetentionStore) PruneObservationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.prunedObservations = cutoff
	return 7, nil
}
func (f *fakeRetentionStore) DeleteAllObservations(ctx context.Context) (int64, error) {
	f.deletedAllObs = true
	return 42, nil
}
func (f *fakeRetentionStore) PruneJobLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.prunedJobLogs = cutoff
	return 3, nil
}
func (f *fakeRetentionStore) DeleteAllJobLogs(ctx context.Context) (int64, error) {
	f.deletedAllJobLogs = true
	return 5, nil
}
func (f *fakeRetentionStore) Compact(ctx context.Context) error {
	f.compacted = true
	return nil
}
func (f *fakeRetentionStore) Health(ctx context.Context) error { return nil }

var _ store.Store = (*fakeRetentionStore)(nil)

func newTestSweeper(t *testing.T, st *fakeRetentionStore) *Sweeper {
	t.Helper()
	q, err := queue.Open(t.TempDir()+"/queue.db", "probes")
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	s, err := New(st, q, "test-instance", "UTC", logr.Discard())
	require.NoError(t, err)
	return s
}

func TestRunSelectivePolicyUnderThresholds(t *testing.T) {
	st := &fakeRetentionStore{stats: store.StorageStats{TotalSizeBytes: 1024, ObservationCount: 10}}
	s := newTestSweeper(t, st)

	s.Run(context.Background())

	assert.False(t, st.prunedObservations.IsZero())
	assert.False(t, st.deletedAllObs)
	assert.Equal(t, "retention-selective", st.startedName)
	assert.Equal(t, model.JobCompleted, st.completedStatus)
	assert.Contains(t, st.completedResult, "observations_deleted=7")
	assert.Contains(t, st.completedResult, "job_logs_deleted=3")
}

func TestRunAggressivePolicyOverSizeThreshold(t *testing.T) {
	st := &fakeRetentionStore{stats: store.StorageStats{TotalSizeBytes: 600 * 1024 * 1024}}
	s := newTestSweeper(t, st)

	s.Run(context.Background())

	assert.True(t, st.deletedAllObs)
	assert.True(t, st.compacted)
	assert.Equal(t, "retention-aggressive", st.startedName)
	assert.Contains(t, st.completedResult, "observations_deleted=42")
	assert.Contains(t, st.completedResult, "compaction_requested=true")
}

func TestRunAggressivePolicyOverObservationCount(t *testing.T) {
	st := &fakeRetentionStore{stats: store.StorageStats{ObservationCount: 200_000}}
	s := newTestSweeper(t, st)

	s.Run(context.Background())

	assert.True(t, st.deletedAllObs)
	assert.Equal(t, "retention-aggressive", st.startedName)
	assert.Contains(t, st.completedResult, "observations_deleted=42")
}

func TestRunEmergencyPolicyOverHardLimit(t *testing.T) {
	st := &fakeRetentionStore{stats: store.StorageStats{TotalSizeBytes: 2 * 1024 * 1024 * 1024}}
	s := newTestSweeper(t, st)

	s.Run(context.Background())

	assert.True(t, st.deletedAllObs)
	assert.True(t, st.deletedAllJobLogs)
	assert.Equal(t, "retention-emergency", st.startedName)
	assert.Contains(t, st.completedResult, "observations_deleted=42")
	assert.Contains(t, st.completedResult, "job_logs_deleted=5")
}

func TestClassifyThresholds(t *testing.T) {
	assert.Equal(t, PolicySelective, classify(store.StorageStats{TotalSizeBytes: 100}))
	assert.Equal(t, PolicyAggressive, classify(store.StorageStats{TotalSizeBytes: selectiveMaxBytes + 1}))
	assert.Equal(t, PolicyEmergency, classify(store.StorageStats{TotalSizeBytes: aggressiveMaxBytes + 1}))
}
