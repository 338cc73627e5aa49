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

package alerting

import (
	"context"
	"strings"
	"text/template"
	"time"
)

// AlertMessage is the rendered view of an AlertIntent a Channel sends:
// the intent's transition plus the target details needed to address
// and format delivery (contact list, webhook URL).
type AlertMessage struct {
	Kind       string
	TargetID   string
	TargetName string
	TargetAddr string
	OldStatus  string
	NewStatus  string
	LatencyMs  int
	Error      string
	Timestamp  time.Time

	ContactEmails []string
	WebhookURL    string
}

// Channel is an alert delivery mechanism.
type Channel interface {
	Name() string
	Type() string
	Send(ctx context.Context, msg AlertMessage) error
}

// ChannelStats tracks success/failure statistics for a channel.
type ChannelStats struct {
	AlertsSentTotal     int64
	AlertsFailedTotal   int64
	LastAlertTime       time.Time
	LastFailedTime      time.Time
	LastFailedError     string
	ConsecutiveFailures int32
}

// DeadLetter is a failed email dispatch retained for operator
// inspection per the 24h window named for the email channel.
type DeadLetter struct {
	ChannelName string
	Recipient   string
	Message     AlertMessage
	Error       string
	FailedAt    time.Time
}

// templateFuncs is shared by the email/webhook/slack message templates.
var templateFuncs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"formatTime": func(t time.Time) string {
		return t.Format(time.RFC3339)
	},
}
