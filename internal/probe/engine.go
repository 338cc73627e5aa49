// Package probe implements the Probe Engine: HTTP ladder and TCP
// liveness checks bounded by a per-attempt timeout and a
// failure-rate-driven attempt count. HTTP transport pooling follows the
// pattern in ysicing-tiga's internal/services/monitor/probe_scheduler.go
// (pooled *http.Transport, InsecureSkipVerify TLS config) — two
// singleton clients, one per scheme, built once at Engine construction
// and reused for the process lifetime.
package probe

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/uptimeguard/monitorcore/internal/model"
)

const (
	perAttemptTimeout  = 8 * time.Second
	baseAttempts       = 2
	highFailureAttempts = 3
	highFailureRate    = 0.5
	maxRedirects       = 3
	getBodyLimit       = 5 * 1024 // 5 KiB
	getTimeoutRatio    = 0.8
)

var userAgents = [3]string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// Result is the outcome of one Probe invocation.
type Result struct {
	Status    model.Status
	LatencyMs int
	Error     string
	Attempts  int
}

// Engine performs HTTP(S) and TCP liveness probes against Targets.
type Engine struct {
	httpClient  *http.Client
	httpsClient *http.Client
	uaCounter   atomic.Uint64
}

// NewEngine builds the Engine's process-wide pooled HTTP clients, one
// per scheme to avoid head-of-line interference between plain and TLS
// connections, each with TLS verification disabled by deliberate policy
// (monitoring liveness, not trust) and keep-alive pools sized for at
// least 50 sockets per host.
func NewEngine() *Engine {
	newTransport := func() *http.Transport {
		return &http.Transport{
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
			MaxIdleConns:        200,
			MaxIdleConnsPerHost: 50,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	checkRedirect := func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}

	return &Engine{
		httpClient:  &http.Client{Transport: newTransport(), CheckRedirect: checkRedirect},
		httpsClient: &http.Client{Transport: newTransport(), CheckRedirect: checkRedirect},
	}
}

// attemptsFor returns the attempt budget for a probe: base 2, or 3 when
// the Reliability Tracker reports a failure rate above 0.5.
func attemptsFor(failureRate float64) int {
	if failureRate > highFailureRate {
		return highFailureAttempts
	}
	return baseAttempts
}

// nextUserAgent rotates through the configured desktop User-Agent
// strings, used by the third HTTP ladder rung.
func (e *Engine) nextUserAgent() string {
	n := e.uaCounter.Add(1) - 1
	return userAgents[n%uint64(len(userAgents))]
}
