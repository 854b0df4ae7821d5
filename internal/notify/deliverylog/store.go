// internal/notify/deliverylog/store.go
package deliverylog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"notification-service/internal/common/logger"
	"notification-service/internal/models"

	"github.com/google/uuid"
)

const maxListLimit = 100

// Store persists delivery log rows. The dispatcher inserts, the webhook
// reconciler updates by id, and the admin API reads; no in-memory state is
// shared, so concurrency safety lives entirely in the row-level SQL below.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "deliverylog-store"}),
	}
}

// Create inserts one delivery log row and fills in its generated id and
// creation timestamp.
func (s *Store) Create(ctx context.Context, entry *models.DeliveryLog) error {
	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_logs
			(id, notification_type, recipient_type, channel, recipient_email,
			 recipient_phone, external_id, status, error_message, delivered_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID,
		entry.NotificationType,
		entry.RecipientType,
		entry.Channel,
		nullString(entry.RecipientEmail),
		nullString(entry.RecipientPhone),
		nullString(entry.ExternalID),
		entry.Status,
		nullString(entry.ErrorMessage),
		entry.DeliveredAt,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery log: %w", err)
	}
	return nil
}

// ApplyStatus merges a new status into the row identified by id and reports
// whether the row actually changed. The WHERE clause enforces the
// non-downgrade rule in a single atomic statement: a delivered row is only
// touched by another delivered event, so two near-simultaneous webhook
// deliveries cannot race each other into a lost update.
func (s *Store) ApplyStatus(ctx context.Context, id string, status models.DeliveryStatus, deliveredAt *time.Time, errorMessage string) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("unknown delivery status %q", status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE delivery_logs
		 SET status = $2,
		     delivered_at = CASE
		         WHEN $2 = 'delivered' AND delivered_at IS NULL THEN $3
		         ELSE delivered_at
		     END,
		     error_message = CASE WHEN $2 = 'failed' THEN $4 ELSE error_message END
		 WHERE id = $1
		   AND (status <> 'delivered' OR $2 = 'delivered')`,
		id, string(status), deliveredAt, nullString(errorMessage),
	)
	if err != nil {
		return false, fmt.Errorf("update delivery log %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update delivery log %s: %w", id, err)
	}
	if affected == 0 {
		s.logger.Debug("status merge skipped", map[string]interface{}{
			"log_id":     id,
			"new_status": string(status),
		})
	}
	return affected > 0, nil
}

// FindByExternalID returns all rows on the given channel whose provider
// message id matches externalID.
func (s *Store) FindByExternalID(ctx context.Context, externalID string, channel models.Channel) ([]models.DeliveryLog, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM delivery_logs WHERE external_id = $1 AND channel = $2`,
		externalID, channel,
	)
	if err != nil {
		return nil, fmt.Errorf("query by external id: %w", err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

// FindLatestSentByPhone returns the single most recent sent row on the given
// channel addressed to phone, or (nil, nil) when none exists. This is the
// fallback match for carriers that do not echo back the message id.
func (s *Store) FindLatestSentByPhone(ctx context.Context, phone string, channel models.Channel) (*models.DeliveryLog, error) {
	row := s.db.QueryRowContext(ctx,
		selectColumns+` FROM delivery_logs
		 WHERE recipient_phone = $1 AND channel = $2 AND status = 'sent'
		 ORDER BY created_at DESC
		 LIMIT 1`,
		phone, channel,
	)

	entry, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest sent by phone: %w", err)
	}
	return entry, nil
}

// List returns one page of delivery logs matching filter plus the total
// match count. Limit is clamped to 100; a zero limit means 50.
func (s *Store) List(ctx context.Context, filter models.LogFilter) ([]models.DeliveryLog, int, error) {
	where, args := buildWhere(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count delivery logs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("%s FROM delivery_logs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		selectColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list delivery logs: %w", err)
	}
	defer rows.Close()

	logs, err := scanLogs(rows)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// Summary counts the trailing 24 hours of delivery logs bucketed by status.
func (s *Store) Summary(ctx context.Context) (*models.LogSummary, error) {
	var summary models.LogSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'failed')
		 FROM delivery_logs
		 WHERE created_at >= NOW() - INTERVAL '24 hours'`,
	).Scan(&summary.Total, &summary.Sent, &summary.Delivered, &summary.Failed)
	if err != nil {
		return nil, fmt.Errorf("delivery log summary: %w", err)
	}
	return &summary, nil
}

// Purge deletes rows older than olderThanDays and returns how many were
// removed. Zero or negative falls back to the 30-day default.
func (s *Store) Purge(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		olderThanDays = 30
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM delivery_logs WHERE created_at < NOW() - ($1 * INTERVAL '1 day')`,
		olderThanDays,
	)
	if err != nil {
		return 0, fmt.Errorf("purge delivery logs: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge delivery logs: %w", err)
	}

	s.logger.Info("delivery logs purged", map[string]interface{}{
		"older_than_days": olderThanDays,
		"deleted":         deleted,
	})
	return deleted, nil
}

// ExistsRecent reports whether a log row of the given type for the recipient
// (email or phone) exists within the trailing window. Used by the reminder
// checker to de-duplicate re-sends.
func (s *Store) ExistsRecent(ctx context.Context, notificationType, recipient string, window time.Duration) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM delivery_logs
			WHERE notification_type = $1
			  AND (recipient_email = $2 OR recipient_phone = $2)
			  AND created_at >= $3
		)`,
		notificationType, recipient, time.Now().UTC().Add(-window),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent delivery log: %w", err)
	}
	return exists, nil
}

// ==========================
// Row scanning helpers
// ==========================

const selectColumns = `SELECT id, notification_type, recipient_type, channel,
	recipient_email, recipient_phone, external_id, status, error_message,
	delivered_at, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLog(row rowScanner) (*models.DeliveryLog, error) {
	var entry models.DeliveryLog
	var email, phone, externalID, errMsg sql.NullString
	var deliveredAt sql.NullTime

	err := row.Scan(
		&entry.ID,
		&entry.NotificationType,
		&entry.RecipientType,
		&entry.Channel,
		&email,
		&phone,
		&externalID,
		&entry.Status,
		&errMsg,
		&deliveredAt,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.RecipientEmail = email.String
	entry.RecipientPhone = phone.String
	entry.ExternalID = externalID.String
	entry.ErrorMessage = errMsg.String
	if deliveredAt.Valid {
		t := deliveredAt.Time
		entry.DeliveredAt = &t
	}
	return &entry, nil
}

func scanLogs(rows *sql.Rows) ([]models.DeliveryLog, error) {
	logs := []models.DeliveryLog{}
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery log: %w", err)
		}
		logs = append(logs, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery logs: %w", err)
	}
	return logs, nil
}

func buildWhere(filter models.LogFilter) (string, []interface{}) {
	conds := []string{}
	args := []interface{}{}

	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Type != "" {
		add("notification_type = $%d", filter.Type)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.RecipientType != "" {
		add("recipient_type = $%d", string(filter.RecipientType))
	}
	if filter.Channel != "" {
		add("channel = $%d", string(filter.Channel))
	}
	if filter.StartDate != nil {
		add("created_at >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		add("created_at <= $%d", *filter.EndDate)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
