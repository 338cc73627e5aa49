package alerting

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uptimeguard/monitorcore/internal/config"
	"github.com/uptimeguard/monitorcore/internal/model"
	"github.com/uptimeguard/monitorcore/internal/queue"
	"github.com/uptimeguard/monitorcore/internal/reliability"
	"github.com/uptimeguard/monitorcore/internal/store"
)

type fakeAlertStore struct {
	targets map[string]*model.Target
	stats   []store.ChannelStatsRecord
}

func newFakeAlertStore(targets ...*model.Target) *fakeAlertStore {
	m := make(map[string]*model.Target, len(targets))
	for _, t := range targets {
		m[t.ID] = t
	}
	return &fakeAlertStore{targets: m}
}

func (f *fakeAlertStore) Init() error  { return nil }
func (f *fakeAlertStore) Close() error { return nil }
func (f *fakeAlertStore) CreateTarget(ctx context.Context, t *model.Target) error { return nil }
func (f *fakeAlertStore) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	return f.targets[id], nil
}
func (f *fakeAlertStore) UpdateTargetConfig(ctx context.Context, t *model.Target) error { return nil }
func (f *fakeAlertStore) UpdateTargetObservationFields(ctx context.Context, t *model.Target) error {
	return nil
}
func (f *fakeAlertStore) DeleteTarget(ctx context.Context, id string) error { return nil }
func (f *fakeAlertStore) ListDueTargets(ctx context.Context, now time.Time) ([]*model.Target, error) {
	return nil, nil
}
func (f *fakeAlertStore) ListTargetsByOwner(ctx context.Context, ownerID string) ([]*model.Target, error) {
	return nil, nil
}
func (f *fakeAlertStore) RecordObservation(ctx context.Context, o model.Observation) error {
	return nil
}
func (f *fakeAlertStore) ListObservations(ctx context.Context, targetID string, since time.Time, limit int) ([]model.Observation, error) {
	return nil, nil
}
func (f *fakeAlertStore) StartJobLog(ctx context.Context, name string, startedAt time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeAlertStore) CompleteJobLog(ctx context.Context, id int64, status model.JobStatus, result, errStr string, completedAt time.Time) error {
	return nil
}
func (f *fakeAlertStore) ListJobLogs(ctx context.Context, since time.Time) ([]model.JobLogEntry, error) {
	return nil, nil
}
func (f *fakeAlertStore) SaveChannelStats(ctx context.Context, stats store.ChannelStatsRecord) error {
	f.stats = append(f.stats, stats)
	return nil
}
func (f *fakeAlertStore) GetChannelStats(ctx context.Context, channelName string) (*store.ChannelStatsRecord, error) {
	return nil, nil
}
func (f *fakeAlertStore) GetAllChannelStats(ctx context.Context) (map[string]*store.ChannelStatsRecord, error) {
	return nil, nil
}
func (f *fakeAlertStore) GetStorageStats(ctx context.Context) (store.StorageStats, error) {
	return store.StorageStats{}, nil
}
func (f *fakeAlertStore) PruneObservationsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeAlertStore) DeleteAllObservations(ctx context.Context) (int64, error) { return 0, nil }
func (f *fakeAlertStore) PruneJobLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeAlertStore) DeleteAllJobLogs(ctx context.Context) (int64, error) { return 0, nil }
func (f *fakeAlertStore) Compact(ctx context.Context) error                  { return nil }
func (f *fakeAlertStore) Health(ctx context.Context) error                   { return nil }

var _ store.Store = (*fakeAlertStore)(nil)

func newTestDispatcher(t *testing.T, targets ...*model.Target) (*Dispatcher, *fakeAlertStore) {
	t.Helper()
	q, err := queue.Open(t.TempDir()+"/queue.db", "alerts")
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	st := newFakeAlertStore(targets...)
	d, err := New(st, q, reliability.New(), config.AlertingConfig{GlobalRatePerSec: 50, ChannelConcurrency: 10}, config.SMTPConfig{Host: "localhost", Port: 2525, FromEmail: "alerts@example.com"}, "UTC", logr.Discard())
	require.NoError(t, err)
	return d, st
}

func downTarget(webhookURL string) *model.Target {
	now := time.Now()
	target := model.NewTarget("t1", "example", "https://example.com", model.KindWebsite, "owner1", model.PlanPaid, model.RoleUser, model.PriorityMedium, now)
	target.Monitoring.Alerts.WebhookURL = webhookURL
	target.ContactEmails = []string{"ops@example.com"}
	target.Status = model.StatusDown
	return target
}

func TestEnqueueSkipsWhenAlertsDisabled(t *testing.T) {
	target := downTarget("")
	target.Monitoring.Alerts.Enabled = false
	d, _ := newTestDispatcher(t, target)

	err := d.Enqueue(model.AlertIntent{TargetID: "t1", Kind: model.IntentServerDown, Priority: model.AlertPriorityHigh})
	require.NoError(t, err)

	depth, err := d.queue.Depth(alertTopic)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestEnqueueSuppressesFlappingTarget(t *testing.T) {
	target := downTarget("")
	d, _ := newTestDispatcher(t, target)
	for i := 0; i < 10; i++ {
		d.tracker.Record("t1", i%10 == 0) // 90% failure rate
	}

	err := d.Enqueue(model.AlertIntent{TargetID: "t1", Kind: model.IntentServerDown, Priority: model.AlertPriorityHigh})
	require.NoError(t, err)

	depth, err := d.queue.Depth(alertTopic)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestEnqueueAcceptsGatedAlert(t *testing.T) {
	target := downTarget("")
	d, _ := newTestDispatcher(t, target)

	err := d.Enqueue(model.AlertIntent{TargetID: "t1", Kind: model.IntentServerDown, Priority: model.AlertPriorityHigh, DetectedAt: time.Now()})
	require.NoError(t, err)

	depth, err := d.queue.Depth(alertTopic)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestDispatchSendsWebhookAndRecordsStats(t *testing.T) {
	var hit bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := downTarget(srv.URL)
	target.Monitoring.Alerts.Email = false
	d, st := newTestDispatcher(t, target)

	d.dispatch(context.Background(), model.AlertIntent{
		TargetID:   "t1",
		Kind:       model.IntentServerDown,
		OldStatus:  model.StatusUp,
		NewStatus:  model.StatusDown,
		DetectedAt: time.Now(),
	})

	assert.True(t, hit)
	require.NotEmpty(t, st.stats)
	stats := d.GetChannelStats("webhook")
	require.NotNil(t, stats)
	assert.Equal(t, int64(1), stats.AlertsSentTotal)
}
