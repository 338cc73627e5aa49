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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const webhookTimeout = 5 * time.Second

// webhookChannel POSTs a JSON payload to the target's configured
// webhook URL. A single attempt: failures are logged and dropped, not
// retried, because webhook delivery is fire-and-forget by contract.
type webhookChannel struct {
	httpClient *http.Client
}

// NewWebhookChannel creates the webhook channel.
func NewWebhookChannel() Channel {
	return &webhookChannel{httpClient: &http.Client{Timeout: webhookTimeout}}
}

func (w *webhookChannel) Name() string { return "webhook" }
func (w *webhookChannel) Type() string { return "webhook" }

type webhookPayload struct {
	Event        string `json:"event"`
	Server       server `json:"server"`
	OldStatus    string `json:"old_status"`
	NewStatus    string `json:"new_status"`
	ResponseTime int    `json:"response_time"`
	Error        string `json:"error"`
	Timestamp    string `json:"timestamp"`
}

type server struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

func (w *webhookChannel) Send(ctx context.Context, msg AlertMessage) error {
	if msg.WebhookURL == "" {
		return nil
	}

	payload := webhookPayload{
		Event:        msg.Kind,
		Server:       server{ID: msg.TargetID, Name: msg.TargetName, URL: msg.TargetAddr, Status: msg.NewStatus},
		OldStatus:    msg.OldStatus,
		NewStatus:    msg.NewStatus,
		ResponseTime: msg.LatencyMs,
		Error:        msg.Error,
		Timestamp:    msg.Timestamp.UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, msg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
