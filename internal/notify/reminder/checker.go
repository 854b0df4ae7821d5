// internal/notify/reminder/checker.go
package reminder

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"notification-service/internal/common/logger"
	"notification-service/internal/models"
	"notification-service/internal/notify/dispatch"
)

// Due is one notification that has come due and should be (re-)sent.
type Due struct {
	Type           string
	RecipientType  models.RecipientType
	RecipientEmail string
	RecipientPhone string
	Subject        string
	Body           string
}

// Source yields notifications that are due as of now.
type Source interface {
	DueNotifications(ctx context.Context, now time.Time) ([]Due, error)
}

// Deduper reports whether a notification of the given type was already sent
// to recipient within the trailing window.
type Deduper interface {
	ExistsRecent(ctx context.Context, notificationType, recipient string, window time.Duration) (bool, error)
}

// Checker periodically sweeps for due notifications and dispatches them.
// Retry policy lives here rather than in the dispatcher: a due item that
// failed last sweep simply comes due again, and the dedup window keeps
// successful sends from repeating.
type Checker struct {
	source     Source
	dedup      Deduper
	dispatcher *dispatch.Dispatcher
	interval   time.Duration
	window     time.Duration
	logger     logger.Logger
}

func NewChecker(source Source, dedup Deduper, dispatcher *dispatch.Dispatcher, interval, dedupWindow time.Duration, log logger.Logger) *Checker {
	return &Checker{
		source:     source,
		dedup:      dedup,
		dispatcher: dispatcher,
		interval:   interval,
		window:     dedupWindow,
		logger:     log.WithFields(map[string]interface{}{"component": "reminder-checker"}),
	}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Checker) sweep(ctx context.Context) {
	due, err := c.source.DueNotifications(ctx, time.Now().UTC())
	if err != nil {
		c.logger.Error("due notification sweep failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	sent := 0
	for _, item := range due {
		dispatched, err := c.sendOne(ctx, item)
		if err != nil {
			c.logger.Error("reminder dispatch failed", map[string]interface{}{
				"type":  item.Type,
				"error": err.Error(),
			})
			continue
		}
		if dispatched {
			sent++
		}
	}

	if len(due) > 0 {
		c.logger.Info("reminder sweep complete", map[string]interface{}{
			"due":        len(due),
			"dispatched": sent,
		})
	}
}

func (c *Checker) sendOne(ctx context.Context, item Due) (bool, error) {
	channels := []models.Channel{}
	recipient := ""
	if item.RecipientEmail != "" {
		channels = append(channels, models.ChannelEmail)
		recipient = item.RecipientEmail
	}
	if item.RecipientPhone != "" {
		channels = append(channels, models.ChannelSMS)
		if recipient == "" {
			recipient = item.RecipientPhone
		}
	}
	if len(channels) == 0 {
		return false, nil
	}

	exists, err := c.dedup.ExistsRecent(ctx, item.Type, recipient, c.window)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	c.dispatcher.Send(ctx, dispatch.Request{
		Type:           item.Type,
		RecipientType:  item.RecipientType,
		RecipientEmail: item.RecipientEmail,
		RecipientPhone: item.RecipientPhone,
		Channels:       channels,
		Subject:        item.Subject,
		Body:           item.Body,
	})
	return true, nil
}

// ==========================
// Postgres due-notification source
// ==========================

// PostgresSource reads due rows from the scheduled_notifications table.
// Rows stay due until their window passes; de-duplication against the
// delivery log keeps repeats out.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) DueNotifications(ctx context.Context, now time.Time) ([]Due, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT notification_type, recipient_type, recipient_email, recipient_phone, subject, body
		 FROM scheduled_notifications
		 WHERE due_at <= $1 AND due_at > $1 - INTERVAL '24 hours'`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("query due notifications: %w", err)
	}
	defer rows.Close()

	due := []Due{}
	for rows.Next() {
		var item Due
		var email, phone, subject sql.NullString
		if err := rows.Scan(&item.Type, &item.RecipientType, &email, &phone, &subject, &item.Body); err != nil {
			return nil, fmt.Errorf("scan due notification: %w", err)
		}
		item.RecipientEmail = email.String
		item.RecipientPhone = phone.String
		item.Subject = subject.String
		due = append(due, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due notifications: %w", err)
	}
	return due, nil
}
