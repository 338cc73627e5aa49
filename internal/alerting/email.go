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
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"github.com/go-logr/logr"

	"github.com/uptimeguard/monitorcore/internal/config"
)

const (
	emailAttempts    = 3
	emailBaseBackoff = 2 * time.Second
)

// emailChannel delivers one alert per recipient, retrying each
// recipient independently up to emailAttempts times.
type emailChannel struct {
	cfg             config.SMTPConfig
	subjectTemplate *template.Template
	bodyTemplate    *template.Template
	onFailure       func(DeadLetter)
	log             logr.Logger
}

// NewEmailChannel creates the email channel from plain SMTP
// configuration (no secret lookups — credentials arrive via config/env
// per the ambient configuration model).
func NewEmailChannel(cfg config.SMTPConfig, onFailure func(DeadLetter), log logr.Logger) (Channel, error) {
	subjectTmpl, err := template.New("subject").Funcs(templateFuncs).Parse(defaultEmailSubjectTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid email subject template: %w", err)
	}
	bodyTmpl, err := template.New("body").Funcs(templateFuncs).Parse(defaultEmailBodyTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid email body template: %w", err)
	}
	return &emailChannel{
		cfg:             cfg,
		subjectTemplate: subjectTmpl,
		bodyTemplate:    bodyTmpl,
		onFailure:       onFailure,
		log:             log,
	}, nil
}

func (e *emailChannel) Name() string { return "email" }
func (e *emailChannel) Type() string { return "email" }

// Send dispatches msg to every contact email, making up to 3 attempts
// per recipient with waits of 2s and then 4s between them; recipients that exhaust their
// attempts are recorded as dead letters rather than failing the batch.
func (e *emailChannel) Send(ctx context.Context, msg AlertMessage) error {
	var subjectBuf, bodyBuf bytes.Buffer
	if err := e.subjectTemplate.Execute(&subjectBuf, msg); err != nil {
		return fmt.Errorf("rendering email subject: %w", err)
	}
	if err := e.bodyTemplate.Execute(&bodyBuf, msg); err != nil {
		return fmt.Errorf("rendering email body: %w", err)
	}
	subject := subjectBuf.String()
	body := bodyBuf.String()

	var lastErr error
	for _, recipient := range msg.ContactEmails {
		if err := e.sendWithRetry(ctx, recipient, subject, body); err != nil {
			lastErr = err
			if e.onFailure != nil {
				e.onFailure(DeadLetter{
					ChannelName: e.Name(),
					Recipient:   recipient,
					Message:     msg,
					Error:       err.Error(),
					FailedAt:    time.Now(),
				})
			}
		}
	}
	return lastErr
}

func (e *emailChannel) sendWithRetry(ctx context.Context, recipient, subject, body string) error {
	backoff := emailBaseBackoff
	var lastErr error
	for attempt := 1; attempt <= emailAttempts; attempt++ {
		if lastErr = e.deliver(recipient, subject, body); lastErr == nil {
			return nil
		}
		e.log.Error(lastErr, "email attempt failed", "recipient", recipient, "attempt", attempt)
		if attempt < emailAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return lastErr
}

func (e *emailChannel) deliver(recipient, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		e.cfg.FromEmail, recipient, subject, body)

	auth := smtp.PlainAuth("", e.cfg.User, e.cfg.Password, e.cfg.Host)
	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)

	return smtp.SendMail(addr, auth, e.cfg.FromEmail, []string{recipient}, []byte(msg))
}

var defaultEmailSubjectTemplate = `{{ .TargetName }} is {{ upper .NewStatus }}`

var defaultEmailBodyTemplate = `uptimeguard alert

Target: {{ .TargetName }} ({{ .TargetAddr }})
Transition: {{ .OldStatus }} -> {{ .NewStatus }}
Time: {{ formatTime .Timestamp }}

{{ if .Error }}{{ .Error }}{{ end }}
`
