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

// Package metrics exposes Prometheus instrumentation for the probe and
// alert pipelines. A standalone registry replaces controller-runtime's
// shared one since this binary no longer embeds a controller manager.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the process-wide collector registry served by the
// ambient HTTP server's /metrics endpoint.
var Registry = prometheus.NewRegistry()

var (
	// TargetStatus tracks each target's current status as a gauge set
	// (1 for the active status, 0 otherwise), so dashboards can count
	// by status without needing a separate "up" counter.
	TargetStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "monitorcore_target_status",
			Help: "Current status of a target (1=active for that status label, 0 otherwise)",
		},
		[]string{"target_id", "status"},
	)

	// ProbeLatencySeconds observes probe round-trip latency.
	ProbeLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monitorcore_probe_latency_seconds",
			Help:    "Probe latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target_id", "kind"},
	)

	// ProbesTotal counts completed probes by outcome.
	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitorcore_probes_total",
			Help: "Total number of completed probes",
		},
		[]string{"target_id", "status"},
	)

	// AlertsDispatchedTotal counts alert dispatch attempts by channel
	// and outcome.
	AlertsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitorcore_alerts_dispatched_total",
			Help: "Total number of alert dispatch attempts",
		},
		[]string{"channel", "outcome"},
	)

	// QueueDepth reports the number of pending jobs per topic.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "monitorcore_queue_depth",
			Help: "Pending job count per queue topic",
		},
		[]string{"topic"},
	)

	// SchedulerTickDurationSeconds observes how long each scheduler
	// tick takes to select and enqueue due targets.
	SchedulerTickDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "monitorcore_scheduler_tick_duration_seconds",
			Help:    "Duration of a scheduler tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RetentionDeletedTotal counts rows removed by the retention
	// sweeper, split by collection and policy tier.
	RetentionDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitorcore_retention_deleted_total",
			Help: "Total rows removed by the retention sweeper",
		},
		[]string{"collection", "policy"},
	)
)

func init() {
	Registry.MustRegister(
		TargetStatus,
		ProbeLatencySeconds,
		ProbesTotal,
		AlertsDispatchedTotal,
		QueueDepth,
		SchedulerTickDurationSeconds,
		RetentionDeletedTotal,
	)
}

// RecordProbe updates the per-target status gauges, the latency
// histogram, and the probe counter for one completed probe.
func RecordProbe(targetID, kind, status string, latencySeconds float64) {
	for _, s := range []string{"up", "down", "unknown"} {
		v := 0.0
		if s == status {
			v = 1.0
		}
		TargetStatus.WithLabelValues(targetID, s).Set(v)
	}
	ProbeLatencySeconds.WithLabelValues(targetID, kind).Observe(latencySeconds)
	ProbesTotal.WithLabelValues(targetID, status).Inc()
}

// RecordAlertDispatch records one alert dispatch attempt.
func RecordAlertDispatch(channel, outcome string) {
	AlertsDispatchedTotal.WithLabelValues(channel, outcome).Inc()
}

// SetQueueDepth updates the gauge for one queue topic.
func SetQueueDepth(topic string, depth int) {
	QueueDepth.WithLabelValues(topic).Set(float64(depth))
}

// RecordRetentionDeletion records rows removed from one collection
// under a given retention policy tier.
func RecordRetentionDeletion(collection, policy string, count int64) {
	RetentionDeletedTotal.WithLabelValues(collection, policy).Add(float64(count))
}

// ResetTarget clears all per-target series, used when a target is
// deleted so stale labels don't linger in the registry.
func ResetTarget(targetID string) {
	TargetStatus.DeletePartialMatch(prometheus.Labels{"target_id": targetID})
	ProbeLatencySeconds.DeletePartialMatch(prometheus.Labels{"target_id": targetID})
	ProbesTotal.DeletePartialMatch(prometheus.Labels{"target_id": targetID})
}
