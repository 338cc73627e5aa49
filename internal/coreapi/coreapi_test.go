package coreapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uptimeguard/monitorcore/internal/model"
	"github.com/uptimeguard/monitorcore/internal/probe"
	"github.com/uptimeguard/monitorcore/internal/pubsub"
	"github.com/uptimeguard/monitorcore/internal/reliability"
	"github.com/uptimeguard/monitorcore/internal/store"
)

type fakeCoreStore struct {
	mu      sync.Mutex
	targets map[string]*model.Target
}

func newFakeCoreStore(targets ...*model.Target) *fakeCoreStore {
	m := make(map[string]*model.Target, len(targets))
	for _, t := range targets {
		m[t.ID] = t
	}
	return &fakeCoreStore{targets: m}
}

func (f *fakeCoreStore) Init() error  { return nil }
func (f *fakeCoreStore) Close() error { return nil }
func (f *fakeCoreStore) CreateTarget(ctx context.Context, t *model.Target) error { return nil }
func (f *fakeCoreStore) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.targets[id], nil
}
func (f *fakeCoreStore) UpdateTargetConfig(ctx context.Context, t *model.Target) error { return nil }
func (f *fakeCoreStore) UpdateTargetObservationFields(ctx context.Context, t *model.Target) error {
	return nil
}
func (f *fakeCoreStore) DeleteTarget(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.targets, id)
	return nil
}
func (f *fakeCoreStore) ListDueTargets(ctx context.Context, now time.Time) ([]*model.Target, error) {
	return nil, nil
}
func (f *fakeCoreStore) ListTargetsByOwner(ctx context.Context, ownerID string) ([]*model.Target, error) {
	return nil, nil
}
func (f *fakeCoreStore) RecordObservation(ctx context.Context, o model.Observation) error {
	return nil
}
func (f *fakeCoreStore) ListObservations(ctx context.Context, targetID string, since time.Time, limit int) ([]model.Observation, error) {
	return nil, nil
}
func (f *fakeCoreStore) StartJobLog(ctx context.Context, name string, startedAt time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeCoreStore) CompleteJobLog(ctx context.Context, id int64, status model.JobStatus, result, errStr string, completedAt time.Time) error {
	return nil
}
func (f *fakeCoreStore) ListJobLogs(ctx context.Context, since time.Time) ([]model.JobLogEntry, error) {
	return nil, nil
}
func (f *fakeCoreStore) SaveChannelStats(ctx context.Context, stats store.ChannelStatsRecord) error {
	return nil
}
func (f *fakeCoreStore) GetChannelStats(ctx context.Context, channelName string) (*store.ChannelStatsRecord, error) {
	return nil, nil
}
func (f *fakeCoreStore) GetAllChannelStats(ctx context.Context) (map[string]*store.ChannelStatsRecord, error) {
	return nil, nil
}
func (f *fakeCoreStore) GetStorageStats(ctx context.Context) (store.StorageStats, error) {
	return store.StorageStats{}, nil
}
func (f *fakeCoreStore) PruneObservationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeCoreStore) DeleteAllObservations(ctx context.Context) (int64, error) { return 0, nil }
func (f *fakeCoreStore) PruneJobLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeCoreStore) DeleteAllJobLogs(ctx context.Context) (int64, error) { return 0, nil }
func (f *fakeCoreStore) Compact(ctx context.Context) error                  { return nil }
func (f *fakeCoreStore) Health(ctx context.Context) error                   { return nil }

var _ store.Store = (*fakeCoreStore)(nil)

func newWebTarget(t *testing.T, id, url string) *model.Target {
	t.Helper()
	return model.NewTarget(id, id, url, model.KindWebsite, "owner1", model.PlanPaid, model.RoleUser, model.PriorityMedium, time.Now())
}

func TestManualProbeRespectsCooldownUnlessForced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := newWebTarget(t, "t1", srv.URL)
	recent := time.Now().Add(-5 * time.Second)
	target.LastChecked = &recent

	st := newFakeCoreStore(target)
	api := New(st, probe.NewEngine(), reliability.New(), pubsub.NewBroadcaster(), logr.Discard())

	_, err := api.ManualProbe(context.Background(), "t1", false)
	var cooldownErr *ErrCooldown
	require.ErrorAs(t, err, &cooldownErr)

	obs, err := api.ManualProbe(context.Background(), "t1", true)
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Equal(t, model.CheckManual, obs.CheckType)
}

func TestBatchProbeRejectsOversizedBatch(t *testing.T) {
	st := newFakeCoreStore()
	api := New(st, probe.NewEngine(), reliability.New(), pubsub.NewBroadcaster(), logr.Discard())

	ids := make([]string, batchMaxTargets+1)
	for i := range ids {
		ids[i] = "t"
	}

	results, errs := api.BatchProbe(context.Background(), ids, false)
	assert.Empty(t, results)
	assert.Len(t, errs, len(ids))
	for _, err := range errs {
		var tooLarge *ErrBatchTooLarge
		require.ErrorAs(t, err, &tooLarge)
	}
}

func TestBatchProbeRunsEachTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t1 := newWebTarget(t, "t1", srv.URL)
	t2 := newWebTarget(t, "t2", srv.URL)
	st := newFakeCoreStore(t1, t2)
	api := New(st, probe.NewEngine(), reliability.New(), pubsub.NewBroadcaster(), logr.Discard())

	results, errs := api.BatchProbe(context.Background(), []string{"t1", "t2"}, true)
	assert.Empty(t, errs)
	assert.Len(t, results, 2)
}

func TestDeleteTargetRemovesItFromStore(t *testing.T) {
	target := newWebTarget(t, "t1", "http://example.invalid")
	st := newFakeCoreStore(target)
	api := New(st, probe.NewEngine(), reliability.New(), pubsub.NewBroadcaster(), logr.Discard())

	require.NoError(t, api.DeleteTarget(context.Background(), "t1"))

	got, err := api.GetTarget(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
