package reliability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOnAbsentTargetReturnsZeroCell(t *testing.T) {
	tr := New()
	cell := tr.Get("unknown-target")
	assert.Equal(t, Cell{}, cell)
}

func TestRecordAccumulatesFailureRate(t *testing.T) {
	tr := New()
	tr.Record("t1", true)
	tr.Record("t1", false)
	tr.Record("t1", false)
	tr.Record("t1", false)

	cell := tr.Get("t1")
	assert.Equal(t, 4, cell.Total)
	assert.Equal(t, 3, cell.Failures)
	assert.InDelta(t, 0.75, cell.Rate, 0.0001)
}

func TestRecordDecaysPastThreshold(t *testing.T) {
	tr := New()
	for i := 0; i < 101; i++ {
		tr.Record("t1", false)
	}
	cell := tr.Get("t1")
	assert.Less(t, cell.Total, 101)
	assert.InDelta(t, 1.0, cell.Rate, 0.0001)
}

func TestEvictDropsStaleCells(t *testing.T) {
	tr := New()
	tr.Record("stale", true)
	tr.cells["stale"].LastUpdated = time.Now().Add(-2 * time.Hour)

	tr.Record("fresh", true)

	tr.evict()

	assert.Equal(t, Cell{}, tr.Get("stale"))
	assert.NotEqual(t, Cell{}, tr.Get("fresh"))
}

func TestStartStopsOnContextCancel(t *testing.T) {
	tr := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- tr.Start(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}
