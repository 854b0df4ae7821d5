// internal/notify/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"sync"
	"time"

	"notification-service/internal/common/logger"
	"notification-service/internal/common/metrics"
	"notification-service/internal/models"
	"notification-service/internal/notify/channel"
	"notification-service/internal/notify/template"
)

// Request is one logical notification intent, possibly fanning out to
// multiple channels.
type Request struct {
	Type           string                 `json:"type"`
	RecipientType  models.RecipientType   `json:"recipientType"`
	RecipientEmail string                 `json:"recipientEmail,omitempty"`
	RecipientPhone string                 `json:"recipientPhone,omitempty"`
	Channels       []models.Channel       `json:"channels"`
	Subject        string                 `json:"subject,omitempty"`
	Body           string                 `json:"body"`
	Variables      map[string]interface{} `json:"variables,omitempty"`
}

// ChannelResult is the per-channel outcome reported back to the caller.
type ChannelResult struct {
	Channel    models.Channel `json:"channel"`
	Success    bool           `json:"success"`
	ProviderID string         `json:"providerId,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// TemplateSource resolves a notification template by key.
type TemplateSource interface {
	Get(ctx context.Context, key string) (*models.NotificationTemplate, error)
}

// LogWriter persists one delivery attempt.
type LogWriter interface {
	Create(ctx context.Context, entry *models.DeliveryLog) error
}

// Dispatcher orchestrates template resolution, rendering, channel sends, and
// delivery logging for one notification. It never retries — retry policy
// belongs to callers such as the reminder checker.
type Dispatcher struct {
	templates TemplateSource
	logs      LogWriter
	senders   map[models.Channel]channel.Sender
	logger    logger.Logger
}

func New(templates TemplateSource, logs LogWriter, senders []channel.Sender, log logger.Logger) *Dispatcher {
	byChannel := make(map[models.Channel]channel.Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	return &Dispatcher{
		templates: templates,
		logs:      logs,
		senders:   byChannel,
		logger:    log.WithFields(map[string]interface{}{"component": "dispatcher"}),
	}
}

// Send dispatches req on every requested channel and returns one result per
// channel. Channels are independent: a failure on one never aborts the
// others, and every attempt leaves exactly one delivery log row behind
// before Send returns.
func (d *Dispatcher) Send(ctx context.Context, req Request) []ChannelResult {
	results := make([]ChannelResult, len(req.Channels))

	var wg sync.WaitGroup
	for i, ch := range req.Channels {
		wg.Add(1)
		go func(i int, ch models.Channel) {
			defer wg.Done()
			results[i] = d.sendOne(ctx, req, ch)
		}(i, ch)
	}
	wg.Wait()

	return results
}

func (d *Dispatcher) sendOne(ctx context.Context, req Request, ch models.Channel) ChannelResult {
	result := ChannelResult{Channel: ch}

	recipient := recipientFor(req, ch)
	if recipient == "" {
		result.Error = "no recipient configured for channel " + string(ch)
		d.record(ctx, req, ch, recipient, channel.Result{Err: result.Error})
		return result
	}

	sender, ok := d.senders[ch]
	if !ok {
		result.Error = "channel " + string(ch) + " not supported"
		d.record(ctx, req, ch, recipient, channel.Result{Err: result.Error})
		return result
	}

	subject, body := d.resolveContent(ctx, req, ch)

	start := time.Now()
	sendRes := sender.Send(ctx, recipient, subject, body)
	metrics.NotificationSendDuration.WithLabelValues(string(ch)).Observe(time.Since(start).Seconds())

	d.record(ctx, req, ch, recipient, sendRes)

	result.Success = sendRes.Success
	result.ProviderID = sendRes.ProviderID
	result.Error = sendRes.Err
	return result
}

// resolveContent picks the effective subject and body: an explicit request
// body wins over a stored template, which wins over nothing at all. Both are
// rendered against the request variables.
func (d *Dispatcher) resolveContent(ctx context.Context, req Request, ch models.Channel) (string, string) {
	subject := req.Subject
	body := req.Body

	if body == "" || subject == "" {
		tmpl, err := d.templates.Get(ctx, models.TemplateKey(req.Type, ch))
		if err != nil {
			d.logger.Warn("template lookup failed", map[string]interface{}{
				"type":    req.Type,
				"channel": string(ch),
				"error":   err.Error(),
			})
		} else if tmpl != nil {
			if body == "" {
				body = tmpl.Body
			}
			if subject == "" {
				subject = tmpl.Subject
			}
		}
	}

	return template.Render(subject, req.Variables), template.Render(body, req.Variables)
}

func (d *Dispatcher) record(ctx context.Context, req Request, ch models.Channel, recipient string, res channel.Result) {
	entry := &models.DeliveryLog{
		NotificationType: req.Type,
		RecipientType:    req.RecipientType,
		Channel:          ch,
		ExternalID:       res.ProviderID,
	}
	switch ch {
	case models.ChannelEmail:
		entry.RecipientEmail = recipient
	case models.ChannelSMS:
		entry.RecipientPhone = recipient
	}

	if res.Success {
		entry.Status = models.StatusSent
	} else {
		entry.Status = models.StatusFailed
		entry.ErrorMessage = res.Err
	}

	metrics.NotificationsSent.WithLabelValues(string(ch), string(entry.Status)).Inc()

	if err := d.logs.Create(ctx, entry); err != nil {
		d.logger.Error("delivery log write failed", map[string]interface{}{
			"type":    req.Type,
			"channel": string(ch),
			"error":   err.Error(),
		})
	}
}

func recipientFor(req Request, ch models.Channel) string {
	switch ch {
	case models.ChannelEmail:
		return req.RecipientEmail
	case models.ChannelSMS:
		return req.RecipientPhone
	}
	return ""
}
