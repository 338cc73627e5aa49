package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterDeliversToSubscriber(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(Update{TargetID: "t1", Status: "up", LatencyMs: 42})

	select {
	case u := <-ch:
		assert.Equal(t, "t1", u.TargetID)
		assert.Equal(t, 42, u.LatencyMs)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func TestBroadcasterDropsOnFullSubscriberWithoutBlocking(t *testing.T) {
	b := NewBroadcaster()
	_, cancel := b.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			b.Publish(Update{TargetID: "t1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	cancel()

	_, ok := <-ch
	require.False(t, ok)
}
