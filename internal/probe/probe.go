package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptimeguard/monitorcore/internal/model"
)

const slowResponsePrefix = "Slow response:"

// Probe produces exactly one ProbeResult for target, retrying up to the
// failure-rate-driven attempt budget with attempt_number*500ms
// inter-attempt sleeps, honoring the per-attempt 8s timeout.
func (e *Engine) Probe(ctx context.Context, target *model.Target, failureRate float64, thresholdMs int) Result {
	attempts := attemptsFor(failureRate)

	var last Result
	for attempt := 1; attempt <= attempts; attempt++ {
		last = e.attempt(ctx, target)
		last.Attempts = attempt
		if last.Status == model.StatusUp {
			break
		}
		if attempt < attempts {
			select {
			case <-ctx.Done():
				last.Error = ctx.Err().Error()
				return last
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}

	if last.Status == model.StatusUp && last.LatencyMs > thresholdMs {
		last.Error = fmt.Sprintf("%s %dms exceeds %dms threshold", slowResponsePrefix, last.LatencyMs, thresholdMs)
	}

	return last
}

// attempt runs a single probe attempt bounded by the per-attempt
// timeout, dispatching to the HTTP ladder or TCP dial per target kind.
func (e *Engine) attempt(ctx context.Context, target *model.Target) Result {
	actx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
	defer cancel()

	start := time.Now()

	var up bool
	var errMsg string

	switch target.Kind {
	case model.KindTCP, model.KindDatabase:
		up, errMsg = e.probeTCP(actx, target.Address, perAttemptTimeout)
	default:
		address := target.Address
		if !strings.Contains(address, "://") {
			address = "https://" + address
		}
		up, errMsg = e.probeHTTP(actx, address)
	}

	latency := time.Since(start).Milliseconds()

	if up {
		return Result{Status: model.StatusUp, LatencyMs: int(latency)}
	}
	return Result{Status: model.StatusDown, LatencyMs: int(latency), Error: errMsg}
}
