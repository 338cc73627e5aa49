package queue

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	q, err := Open(path, "probes", "alerts")
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestEnqueueDequeueOrdersByPriorityThenAge(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue("probes", "low-one", 3, []byte(`{}`), 3))
	time.Sleep(time.Millisecond)
	require.NoError(t, q.Enqueue("probes", "high-one", 1, []byte(`{}`), 3))
	time.Sleep(time.Millisecond)
	require.NoError(t, q.Enqueue("probes", "low-two", 3, []byte(`{}`), 3))

	first, err := q.Dequeue("probes")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "high-one", first.DedupKey)

	second, err := q.Dequeue("probes")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "low-one", second.DedupKey)

	third, err := q.Dequeue("probes")
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, "low-two", third.DedupKey)

	none, err := q.Dequeue("probes")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEnqueueDedupSkipsWhilePending(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue("probes", "check-target-1", 2, []byte(`{}`), 3))
	require.NoError(t, q.Enqueue("probes", "check-target-1", 2, []byte(`{}`), 3))

	depth, err := q.Depth("probes")
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestEnqueueAfterDequeueIsNotBlockedByStaleDedupEntry(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue("probes", "check-target-1", 2, []byte(`{}`), 3))
	job, err := q.Dequeue("probes")
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Enqueue("probes", "check-target-1", 2, []byte(`{}`), 3))
	depth, err := q.Depth("probes")
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestNackRetriesUntilMaxAttemptsThenDeadLetters(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue("alerts", "alert-1", 1, []byte(`{}`), 3))
	job, err := q.Dequeue("alerts")
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Nack(job, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	requeued, err := q.Dequeue("alerts")
	require.NoError(t, err)
	require.NotNil(t, requeued)
	assert.Equal(t, 1, requeued.Attempts)

	require.NoError(t, q.Nack(requeued, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	secondRequeue, err := q.Dequeue("alerts")
	require.NoError(t, err)
	require.NotNil(t, secondRequeue)

	require.NoError(t, q.Nack(secondRequeue, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	drained, err := q.Dequeue("alerts")
	require.NoError(t, err)
	assert.Nil(t, drained, "job should have been dead-lettered, not requeued")
}

func TestAcquireLockExclusiveUntilReleased(t *testing.T) {
	q := newTestQueue(t)

	ok, err := q.AcquireLock("scheduler-tick", "instance-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.AcquireLock("scheduler-tick", "instance-b")
	require.NoError(t, err)
	assert.False(t, ok, "second instance should not acquire a held lock")

	require.NoError(t, q.ReleaseLock("scheduler-tick", "instance-a"))

	ok, err = q.AcquireLock("scheduler-tick", "instance-b")
	require.NoError(t, err)
	assert.True(t, ok, "lock should be acquirable once released")
}
