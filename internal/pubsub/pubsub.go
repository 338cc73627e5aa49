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

// Package pubsub implements the monitor-updates fan-out the Worker Pool
// publishes to on every probe completion. The default Publisher is an
// in-process broadcaster; Publisher is kept narrow enough that a
// Redis-backed implementation can be dropped in for a multi-process
// worker fleet without touching call sites.
package pubsub

import "sync"

// Update is the payload published after every probe, matching the
// {target_id, status, latency, last_checked} contract.
type Update struct {
	TargetID    string
	Status      string
	LatencyMs   int
	LastChecked int64 // unix millis
}

// Publisher fans Updates out to subscribers. Publish must never block
// the caller on a slow subscriber.
type Publisher interface {
	Publish(u Update)
	Subscribe() (ch <-chan Update, cancel func())
}

// Broadcaster is the default in-process Publisher: a registry of
// buffered channels guarded by a mutex. Slow subscribers drop updates
// rather than backpressure the Worker Pool.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Update
	next int
}

// NewBroadcaster creates an empty in-process Publisher.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Update)}
}

// Publish is fire-and-forget: a full subscriber channel drops the
// update rather than blocking the publishing worker.
func (b *Broadcaster) Publish(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Subscribe registers a new listener and returns a cancel func that
// closes and deregisters its channel.
func (b *Broadcaster) Subscribe() (<-chan Update, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Update, 32)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

var _ Publisher = (*Broadcaster)(nil)
