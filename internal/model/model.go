// Package model defines the plain Go value types that make up the
// monitoring core's domain: targets, their monitoring configuration,
// observations, job bookkeeping, and the in-flight unit types that move
// through the queue (ProbeJob, AlertIntent).
//
// These types intentionally carry no persistence or transport concerns;
// gorm struct tags live on the adapted types in internal/store, and wire
// payloads live in internal/queue and internal/alerting.
package model

import "time"

// TargetKind enumerates the supported probe strategies for a Target.
type TargetKind string

const (
	KindWebsite  TargetKind = "website"
	KindAPI      TargetKind = "api"
	KindTCP      TargetKind = "tcp"
	KindDatabase TargetKind = "database"
)

// Status is the tri-state liveness classification of a Target.
type Status string

const (
	StatusUp      Status = "up"
	StatusDown    Status = "down"
	StatusUnknown Status = "unknown"
)

// Priority is the user-assigned scheduling priority for a Target.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Score maps a Priority to its integer scheduling weight
// (lower sorts sooner), as used by the Scheduler and the probe queue.
func (p Priority) Score() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// Plan is the owning account's subscription tier.
type Plan string

const (
	PlanFree  Plan = "free"
	PlanPaid  Plan = "paid"
	PlanAdmin Plan = "admin"
)

// Role is the owning account's access role.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// TimeWindow is an inclusive HH:MM pair; Start=="00:00" && End=="00:00"
// is the 24/7 sentinel (see IsAlwaysOn).
type TimeWindow struct {
	Start string // "HH:MM"
	End   string // "HH:MM"
}

// IsAlwaysOn reports whether w is the 24/7 sentinel window.
func (w TimeWindow) IsAlwaysOn() bool {
	return w.Start == "00:00" && w.End == "00:00"
}

// AlertingConfig is the alert-specific slice of MonitoringConfig.
type AlertingConfig struct {
	Enabled            bool
	Email              bool
	Phone              bool
	WebhookURL         string
	ResponseThresholdMs int
	TimeWindow         TimeWindow
}

// MonitoringConfig is embedded in Target and governs scheduling cadence,
// active days/windows, and alert gating.
type MonitoringConfig struct {
	FrequencyMinutes int
	DaysOfWeek       []int // subset of 0..6, Sun=0; empty == every day
	TimeWindows      []TimeWindow
	Alerts           AlertingConfig
	TrialEndsAt      *time.Time
}

// HasAlwaysOnWindow reports whether any configured window is the 24/7
// sentinel, which per spec overrides all other windows in the set.
func (c MonitoringConfig) HasAlwaysOnWindow() bool {
	for _, w := range c.TimeWindows {
		if w.IsAlwaysOn() {
			return true
		}
	}
	return false
}

// DefaultMonitoringConfig returns a MonitoringConfig with the documented
// defaults applied: 5 minute frequency, every day, 24/7, alerts enabled
// with email on and phone off, and a 1000ms slow-response threshold.
func DefaultMonitoringConfig() MonitoringConfig {
	return MonitoringConfig{
		FrequencyMinutes: 5,
		DaysOfWeek:       nil,
		TimeWindows:      nil,
		Alerts: AlertingConfig{
			Enabled:             true,
			Email:               true,
			Phone:               false,
			ResponseThresholdMs: 1000,
			TimeWindow:          TimeWindow{Start: "00:00", End: "00:00"},
		},
	}
}

// Target is a user-registered endpoint under monitoring.
type Target struct {
	ID                string
	Name              string
	Address           string
	Kind              TargetKind
	OwnerID           string
	OwnerPlan         Plan
	OwnerRole         Role
	UserPriority      Priority
	Monitoring        MonitoringConfig
	ContactEmails     []string
	ContactPhones     []string
	Status            Status
	LastChecked       *time.Time
	LastStatusChange  *time.Time
	LastLatencyMs     *int
	LastError         string
	CreatedAt         time.Time
}

// NewTarget constructs a Target with the invariants from §3 applied:
// status starts unknown, and free-plan owners get a 48h trial window.
func NewTarget(id, name, address string, kind TargetKind, ownerID string, ownerPlan Plan, ownerRole Role, priority Priority, now time.Time) *Target {
	cfg := DefaultMonitoringConfig()
	if ownerPlan == PlanFree {
		trialEnd := now.Add(48 * time.Hour)
		cfg.TrialEndsAt = &trialEnd
	}
	return &Target{
		ID:           id,
		Name:         name,
		Address:      NormalizeAddress(address, kind),
		Kind:         kind,
		OwnerID:      ownerID,
		OwnerPlan:    ownerPlan,
		OwnerRole:    ownerRole,
		UserPriority: priority,
		Monitoring:   cfg,
		Status:       StatusUnknown,
		CreatedAt:    now,
	}
}

// ApplyObservation mutates the Target's observation-derived fields per
// the Worker Pool's step (e) contract: last_status_change updates iff
// status actually changed.
func (t *Target) ApplyObservation(status Status, latencyMs *int, errStr string, now time.Time) (changed bool) {
	changed = t.Status != status
	t.Status = status
	t.LastLatencyMs = latencyMs
	t.LastError = errStr
	t.LastChecked = &now
	if changed {
		t.LastStatusChange = &now
	}
	return changed
}

// CheckType classifies how an Observation was triggered.
type CheckType string

const (
	CheckAutomated CheckType = "automated"
	CheckManual    CheckType = "manual"
	CheckBatch     CheckType = "batch"
)

// Observation is a single probe result, append-only once written.
type Observation struct {
	ID        string
	TargetID  string
	Status    Status
	LatencyMs *int
	Error     string
	Timestamp time.Time
	CheckType CheckType
}

// JobStatus is the lifecycle state of a JobLogEntry.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobSkipped   JobStatus = "skipped"
)

// JobLogEntry bookkeeps scheduler ticks and retention runs.
type JobLogEntry struct {
	ID          int64
	Name        string
	StartedAt   time.Time
	CompletedAt *time.Time
	Status      JobStatus
	Result      string
	Error       string
}

// IntentKind classifies an AlertIntent.
type IntentKind string

const (
	IntentServerDown     IntentKind = "server_down"
	IntentServerRecovery IntentKind = "server_recovery"
	IntentSlowResponse   IntentKind = "slow_response"
)

// AlertPriority is the queue priority assigned to an AlertIntent.
type AlertPriority string

const (
	AlertPriorityHigh   AlertPriority = "high"
	AlertPriorityNormal AlertPriority = "normal"
	AlertPriorityLow    AlertPriority = "low"
)

// Score returns the numeric queue priority (1/5/10) from §6.
func (p AlertPriority) Score() int {
	switch p {
	case AlertPriorityHigh:
		return 1
	case AlertPriorityNormal:
		return 5
	default:
		return 10
	}
}

// ProbeJob is the unit enqueued by the Scheduler and consumed by the
// Worker Pool.
type ProbeJob struct {
	TargetID      string    `json:"target_id"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	PriorityScore int       `json:"priority_score"`
}

// ProbeResultSnapshot freezes the probe outcome that triggered an intent.
type ProbeResultSnapshot struct {
	Status    Status
	LatencyMs *int
	Error     string
}

// AlertIntent is emitted by the Worker Pool whenever a status transition
// or a slow-response observation is recorded.
type AlertIntent struct {
	TargetID   string
	OldStatus  Status
	NewStatus  Status
	Snapshot   ProbeResultSnapshot
	DetectedAt time.Time
	Kind       IntentKind
	Priority   AlertPriority
}
