package workerpool

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
	"github.com/uptimeguard/monitorcore/internal/queue"
	"github.com/uptimeguard/monitorcore/internal/reliability"
	"github.com/uptimeguard/monitorcore/internal/store"
)

type fakePoolStore struct {
	mu      sync.Mutex
	targets map[string]*model.Target
	obs     []model.Observation
}

func newFakePoolStore(targets ...*model.Target) *fakePoolStore {
	m := make(map[string]*model.Target, len(targets))
	for _, t := range targets {
		m[t.ID] = t
	}
	return &fakePoolStore{targets: m}
}

func (f *fakePoolStore) Init() error  { return nil }
func (f *fakePoolStore) Close() error { return nil }
func (f *fakePoolStore) CreateTarget(ctx context.Context, t *model.Target) error { return nil }
func (f *fakePoolStore) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.targets[id], nil
}
func (f *fakePoolStore) UpdateTargetConfig(ctx context.Context, t *model.Target) error { return nil }
func (f *fakePoolStore) UpdateTargetObservationFields(ctx context.Context, t *model.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets[t.ID] = t
	return nil
}
func (f *fakePoolStore) DeleteTarget(ctx context.Context, id string) error { return nil }
func (f *fakePoolStore) ListDueTargets(ctx context.Context, now time.Time) ([]*model.Target, error) {
	return nil, nil
}
func (f *fakePoolStore) ListTargetsByOwner(ctx context.Context, ownerID string) ([]*model.Target, error) {
	return nil, nil
}
func (f *fakePoolStore) RecordObservation(ctx context.Context, o model.Observation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, o)
	return nil
}
func (f *fakePoolStore) ListObservations(ctx context.Context, targetID string, since time.Time, limit int) ([]model.Observation, error) {
	return nil, nil
}
func (f *fakePoolStore) StartJobLog(ctx context.Context, name string, startedAt time.Time) (int64, error) {
	return 0, nil
}
func (f *fakePoolStore) CompleteJobLog(ctx context.Context, id int64, status model.JobStatus, result, errStr string, completedAt time.Time) error {
	return nil
}
func (f *fakePoolStore) ListJobLogs(ctx context.Context, since time.Time) ([]model.JobLogEntry, error) {
	return nil, nil
}
func (f *fakePoolStore) SaveChannelStats(ctx context.Context, stats store.ChannelStatsRecord) error {
	return nil
}
func (f *fakePoolStore) GetChannelStats(ctx context.Context, channelName string) (*store.ChannelStatsRecord, error) {
	return nil, nil
}
func (f *fakePoolStore) GetAllChannelStats(ctx context.Context) (map[string]*store.ChannelStatsRecord, error) {
	return nil, nil
}
func (f *fakePoolStore) GetStorageStats(ctx context.Context) (store.StorageStats, error) {
	return store.StorageStats{}, nil
}
func (f *fakePoolStore) PruneObservationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
func (f *fakePoolStore) DeleteAllObservations(ctx context.Context) (int64, error) { return 0, nil }
func (f *fakePoolStore) PruneJobLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
func (f *fakePoolStore) DeleteAllJobLogs(ctx context.Context) (int64, error) { return 0, nil }
func (f *fakePoolStore) Compact(ctx context.Context) error                  { return nil }
func (f *fakePoolStore) Health(ctx context.Context) error                   { return nil }

var _ store.Store = (*fakePoolStore)(nil)

type fakeAlertEnqueuer struct {
	mu      sync.Mutex
	intents []model.AlertIntent
}

func (f *fakeAlertEnqueuer) Enqueue(intent model.AlertIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, intent)
	return nil
}

func TestProcessRecordsObservationAndEmitsDownAlert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	target := model.NewTarget("t1", "example", srv.URL, model.KindWebsite, "owner1", model.PlanPaid, model.RoleUser, model.PriorityMedium, time.Now())
	target.Status = model.StatusUp

	st := newFakePoolStore(target)
	q, err := queue.Open(t.TempDir()+"/queue.db", "probes")
	require.NoError(t, err)
	defer q.Close()

	alerts := &fakeAlertEnqueuer{}
	pool := New(st, q, probe.NewEngine(), reliability.New(), pubsub.NewBroadcaster(), alerts, Config{}, logr.Discard())

	err = pool.process(context.Background(), model.ProbeJob{TargetID: "t1"})
	require.NoError(t, err)

	assert.Len(t, st.obs, 1)
	assert.Equal(t, model.StatusDown, st.obs[0].Status)
	require.Len(t, alerts.intents, 1)
	assert.Equal(t, model.IntentServerDown, alerts.intents[0].Kind)
	assert.Equal(t, model.AlertPriorityHigh, alerts.intents[0].Priority)
}

func TestProcessSkipsMissingTarget(t *testing.T) {
	st := newFakePoolStore()
	q, err := queue.Open(t.TempDir()+"/queue.db", "probes")
	require.NoError(t, err)
	defer q.Close()

	pool := New(st, q, probe.NewEngine(), reliability.New(), pubsub.NewBroadcaster(), &fakeAlertEnqueuer{}, Config{}, logr.Discard())

	err = pool.process(context.Background(), model.ProbeJob{TargetID: "missing"})
	assert.NoError(t, err)
}

func TestIsSlowResponseMatchesPrefix(t *testing.T) {
	assert.True(t, isSlowResponse("Slow response: 1200ms exceeds 1000ms threshold"))
	assert.False(t, isSlowResponse("connection refused"))
	assert.False(t, isSlowResponse(""))
}
