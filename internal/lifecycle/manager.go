// Package lifecycle provides a minimal replacement for the
// controller-runtime manager's Add/Start convention: every long-running
// component in this service (scheduler, worker pool, alert pipeline,
// retention sweeper, API server) implements Runnable exactly as the
// teacher's schedulers do, and Manager runs them concurrently and waits
// for either a context cancellation or the first failure.
package lifecycle

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
)

// Runnable is any component with a blocking Start that returns when ctx
// is cancelled or the component fails unrecoverably. This is the exact
// shape the teacher's HistoryPruner, DeadManScheduler, and API server
// already implement.
type Runnable interface {
	Start(ctx context.Context) error
}

// Manager runs a fixed set of Runnables concurrently, matching
// controller-runtime's manager.Start semantics without depending on it:
// the first Runnable to return a non-nil error cancels every other
// Runnable's context.
type Manager struct {
	log       logr.Logger
	runnables []Runnable
}

// New creates a Manager logging through log.
func New(log logr.Logger) *Manager {
	return &Manager{log: log}
}

// Add registers a Runnable to be started by Start.
func (m *Manager) Add(r Runnable) {
	m.runnables = append(m.runnables, r)
}

// Start runs every registered Runnable concurrently and blocks until ctx
// is done or one Runnable returns an error, at which point every other
// Runnable's context is cancelled and Start waits for them to unwind.
func (m *Manager) Start(ctx context.Context) error {
	gctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(m.runnables))
	var wg sync.WaitGroup
	for _, r := range m.runnables {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Start(gctx); err != nil && gctx.Err() == nil {
				errCh <- err
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case err := <-errCh:
		m.log.Error(err, "runnable failed, stopping manager")
		cancel()
		<-done
		return err
	case <-done:
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}
