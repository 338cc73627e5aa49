package store

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/uptimeguard/monitorcore/internal/model"
)

// targetRecord is the GORM-mapped representation of model.Target. The
// nested MonitoringConfig is flattened into scalar/comma-joined/JSON
// columns rather than a joined table, matching the teacher's preference
// for one row per logical entity over normalized sub-tables.
type targetRecord struct {
	ID                   string     `gorm:"column:id;primaryKey;size:36"`
	Name                 string     `gorm:"column:name;size:255;not null"`
	Address              string     `gorm:"column:address;size:2048;not null;uniqueIndex:idx_owner_address,priority:2"`
	Kind                 string     `gorm:"column:kind;size:20;not null"`
	OwnerID              string     `gorm:"column:owner_id;size:36;not null;index;uniqueIndex:idx_owner_address,priority:1"`
	OwnerPlan            string     `gorm:"column:owner_plan;size:20;not null"`
	OwnerRole            string     `gorm:"column:owner_role;size:20;not null"`
	UserPriority         string     `gorm:"column:user_priority;size:10;not null"`
	FrequencyMinutes     int        `gorm:"column:frequency_minutes;not null;default:5"`
	DaysOfWeek           string     `gorm:"column:days_of_week;size:20"` // comma-joined ints, empty == every day
	TimeWindows          string     `gorm:"column:time_windows;type:text"` // JSON-encoded []model.TimeWindow
	AlertsEnabled        bool       `gorm:"column:alerts_enabled;not null;default:true"`
	AlertsEmail          bool       `gorm:"column:alerts_email;not null;default:true"`
	AlertsPhone          bool       `gorm:"column:alerts_phone;not null;default:false"`
	AlertsWebhookURL     string     `gorm:"column:alerts_webhook_url;size:2048"`
	ResponseThresholdMs  int        `gorm:"column:response_threshold_ms;not null;default:1000"`
	AlertWindowStart     string     `gorm:"column:alert_window_start;size:5;default:'00:00'"`
	AlertWindowEnd       string     `gorm:"column:alert_window_end;size:5;default:'00:00'"`
	TrialEndsAt          *time.Time `gorm:"column:trial_ends_at"`
	ContactEmails        string     `gorm:"column:contact_emails;type:text"` // comma-joined
	ContactPhones        string     `gorm:"column:contact_phones;type:text"` // comma-joined
	Status               string     `gorm:"column:status;size:10;not null;index:idx_status_lastchecked,priority:1;index"`
	LastChecked          *time.Time `gorm:"column:last_checked;index:idx_status_lastchecked,priority:2;index"`
	LastStatusChange     *time.Time `gorm:"column:last_status_change"`
	LastLatencyMs        *int       `gorm:"column:last_latency_ms"`
	LastError            string     `gorm:"column:last_error;type:text"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (*targetRecord) TableName() string { return "targets" }

func targetToRecord(t *model.Target) *targetRecord {
	windowsJSON, _ := json.Marshal(t.Monitoring.TimeWindows)
	days := make([]string, len(t.Monitoring.DaysOfWeek))
	for i, d := range t.Monitoring.DaysOfWeek {
		days[i] = strconv.Itoa(d)
	}
	return &targetRecord{
		ID:                  t.ID,
		Name:                t.Name,
		Address:             t.Address,
		Kind:                string(t.Kind),
		OwnerID:             t.OwnerID,
		OwnerPlan:           string(t.OwnerPlan),
		OwnerRole:           string(t.OwnerRole),
		UserPriority:        string(t.UserPriority),
		FrequencyMinutes:    t.Monitoring.FrequencyMinutes,
		DaysOfWeek:          strings.Join(days, ","),
		TimeWindows:         string(windowsJSON),
		AlertsEnabled:       t.Monitoring.Alerts.Enabled,
		AlertsEmail:         t.Monitoring.Alerts.Email,
		AlertsPhone:         t.Monitoring.Alerts.Phone,
		AlertsWebhookURL:    t.Monitoring.Alerts.WebhookURL,
		ResponseThresholdMs: t.Monitoring.Alerts.ResponseThresholdMs,
		AlertWindowStart:    t.Monitoring.Alerts.TimeWindow.Start,
		AlertWindowEnd:      t.Monitoring.Alerts.TimeWindow.End,
		TrialEndsAt:         t.Monitoring.TrialEndsAt,
		ContactEmails:       strings.Join(t.ContactEmails, ","),
		ContactPhones:       strings.Join(t.ContactPhones, ","),
		Status:              string(t.Status),
		LastChecked:         t.LastChecked,
		LastStatusChange:    t.LastStatusChange,
		LastLatencyMs:       t.LastLatencyMs,
		LastError:           t.LastError,
		CreatedAt:           t.CreatedAt,
	}
}

func recordToTarget(r *targetRecord) *model.Target {
	var windows []model.TimeWindow
	_ = json.Unmarshal([]byte(r.TimeWindows), &windows)

	var days []int
	if r.DaysOfWeek != "" {
		for _, s := range strings.Split(r.DaysOfWeek, ",") {
			if n, err := strconv.Atoi(s); err == nil {
				days = append(days, n)
			}
		}
	}

	var emails, phones []string
	if r.ContactEmails != "" {
		emails = strings.Split(r.ContactEmails, ",")
	}
	if r.ContactPhones != "" {
		phones = strings.Split(r.ContactPhones, ",")
	}

	return &model.Target{
		ID:           r.ID,
		Name:         r.Name,
		Address:      r.Address,
		Kind:         model.TargetKind(r.Kind),
		OwnerID:      r.OwnerID,
		OwnerPlan:    model.Plan(r.OwnerPlan),
		OwnerRole:    model.Role(r.OwnerRole),
		UserPriority: model.Priority(r.UserPriority),
		Monitoring: model.MonitoringConfig{
			FrequencyMinutes: r.FrequencyMinutes,
			DaysOfWeek:       days,
			TimeWindows:      windows,
			Alerts: model.AlertingConfig{
				Enabled:             r.AlertsEnabled,
				Email:               r.AlertsEmail,
				Phone:               r.AlertsPhone,
				WebhookURL:          r.AlertsWebhookURL,
				ResponseThresholdMs: r.ResponseThresholdMs,
				TimeWindow:          model.TimeWindow{Start: r.AlertWindowStart, End: r.AlertWindowEnd},
			},
			TrialEndsAt: r.TrialEndsAt,
		},
		ContactEmails:    emails,
		ContactPhones:    phones,
		Status:           model.Status(r.Status),
		LastChecked:      r.LastChecked,
		LastStatusChange: r.LastStatusChange,
		LastLatencyMs:    r.LastLatencyMs,
		LastError:        r.LastError,
		CreatedAt:        r.CreatedAt,
	}
}

// observationRecord is the GORM-mapped representation of an append-only
// probe result.
type observationRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	TargetID  string     `gorm:"column:target_id;size:36;not null;index:idx_obs_target_time,priority:1;index"`
	Status    string     `gorm:"column:status;size:10;not null"`
	LatencyMs *int       `gorm:"column:latency_ms"`
	Error     string     `gorm:"column:error;type:text"`
	Timestamp time.Time  `gorm:"column:timestamp;not null;index:idx_obs_target_time,priority:2,sort:desc;index"`
	CheckType string     `gorm:"column:check_type;size:10;not null"`
}

func (*observationRecord) TableName() string { return "observations" }

func observationToRecord(o model.Observation) *observationRecord {
	return &observationRecord{
		TargetID:  o.TargetID,
		Status:    string(o.Status),
		LatencyMs: o.LatencyMs,
		Error:     o.Error,
		Timestamp: o.Timestamp,
		CheckType: string(o.CheckType),
	}
}

func recordToObservation(r *observationRecord) model.Observation {
	return model.Observation{
		TargetID:  r.TargetID,
		Status:    model.Status(r.Status),
		LatencyMs: r.LatencyMs,
		Error:     r.Error,
		Timestamp: r.Timestamp,
		CheckType: model.CheckType(r.CheckType),
	}
}

// jobLogRecord is the GORM-mapped representation of a JobLogEntry.
type jobLogRecord struct {
	ID          int64      `gorm:"primaryKey;autoIncrement"`
	Name        string     `gorm:"column:name;size:100;not null;index:idx_joblog_name_time,priority:1"`
	StartedAt   time.Time  `gorm:"column:started_at;not null;index:idx_joblog_name_time,priority:2,sort:desc"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	Status      string     `gorm:"column:status;size:10;not null;index"`
	Result      string     `gorm:"column:result;type:text"`
	Error       string     `gorm:"column:error;type:text"`
}

func (*jobLogRecord) TableName() string { return "job_log" }

func recordToJobLog(r *jobLogRecord) model.JobLogEntry {
	return model.JobLogEntry{
		ID:          r.ID,
		Name:        r.Name,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Status:      model.JobStatus(r.Status),
		Result:      r.Result,
		Error:       r.Error,
	}
}

// ChannelStatsRecord persists per alert-channel delivery counters,
// grounded directly on the teacher's ChannelStatsRecord/SaveChannelStats
// upsert pattern (internal/store/models.go, internal/store/gorm.go).
type ChannelStatsRecord struct {
	ID                  int64      `gorm:"primaryKey;autoIncrement"`
	ChannelName         string     `gorm:"column:channel_name;size:64;not null;uniqueIndex"`
	AlertsSentTotal     int64      `gorm:"column:alerts_sent_total;default:0"`
	AlertsFailedTotal   int64      `gorm:"column:alerts_failed_total;default:0"`
	LastAlertTime       *time.Time `gorm:"column:last_alert_time"`
	LastFailedTime      *time.Time `gorm:"column:last_failed_time"`
	LastFailedError     string     `gorm:"column:last_failed_error;type:text"`
	ConsecutiveFailures int32      `gorm:"column:consecutive_failures;default:0"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (*ChannelStatsRecord) TableName() string { return "channel_stats" }
