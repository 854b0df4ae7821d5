// internal/notify/webhook/reconciler.go
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"notification-service/internal/common/logger"
	"notification-service/internal/common/metrics"
	"notification-service/internal/models"
)

// Payload is the loosely-structured carrier callback. Unknown events and
// extra fields must degrade to a no-op, so nothing here is required.
type Payload struct {
	Event          string          `json:"event"`
	NotificationID string          `json:"notificationId"`
	UserID         string          `json:"userId"`
	Channel        string          `json:"channel"`
	Timestamp      json.RawMessage `json:"timestamp"`
	Metadata       *Metadata       `json:"metadata"`
}

type Metadata struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

// eventStatus maps the carrier event vocabulary onto internal statuses.
// Anything absent (clicked, opened, ...) is acknowledged and dropped.
var eventStatus = map[string]models.DeliveryStatus{
	"sent":      models.StatusSent,
	"delivered": models.StatusDelivered,
	"failed":    models.StatusFailed,
}

// LogStore is the delivery-log access the reconciler needs.
type LogStore interface {
	FindByExternalID(ctx context.Context, externalID string, channel models.Channel) ([]models.DeliveryLog, error)
	FindLatestSentByPhone(ctx context.Context, phone string, channel models.Channel) (*models.DeliveryLog, error)
	ApplyStatus(ctx context.Context, id string, status models.DeliveryStatus, deliveredAt *time.Time, errorMessage string) (bool, error)
}

// Reconciler ingests carrier delivery callbacks and merges them into the
// delivery log without ever downgrading a delivered row.
type Reconciler struct {
	logs            LogStore
	sharedSecret    string
	signatureHeader string
	logger          logger.Logger
}

func NewReconciler(logs LogStore, sharedSecret, signatureHeader string, log logger.Logger) *Reconciler {
	return &Reconciler{
		logs:            logs,
		sharedSecret:    sharedSecret,
		signatureHeader: signatureHeader,
		logger:          log.WithFields(map[string]interface{}{"component": "webhook-reconciler"}),
	}
}

// HandleChallenge answers the provider's GET ?challenge endpoint-verification
// probe by echoing the token back.
func (r *Reconciler) HandleChallenge(w http.ResponseWriter, req *http.Request) {
	challenge := req.URL.Query().Get("challenge")
	writeJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
}

// HandleEvent processes one carrier callback. Unmatched, ignored, and stale
// events all acknowledge with 200 so the provider does not redeliver; only a
// bad signature (401) or an internal failure (500) is an error response.
func (r *Reconciler) HandleEvent(w http.ResponseWriter, req *http.Request, body []byte) {
	if !VerifySignature(body, req.Header.Get(r.signatureHeader), r.sharedSecret) {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "malformed").Inc()
		writeJSON(w, http.StatusOK, map[string]interface{}{"received": true, "message": "unparseable payload ignored"})
		return
	}

	result, err := r.Reconcile(req.Context(), payload)
	if err != nil {
		r.logger.Error("webhook reconciliation failed", map[string]interface{}{
			"event": payload.Event,
			"error": err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	metrics.WebhookEvents.WithLabelValues(payload.Event, result).Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{"received": true, "result": result})
}

// Reconcile applies one callback to the delivery log and returns a short
// outcome label: "updated", "skipped", "unmatched", or "ignored".
func (r *Reconciler) Reconcile(ctx context.Context, payload Payload) (string, error) {
	status, known := eventStatus[payload.Event]
	if !known {
		return "ignored", nil
	}
	// Email delivery tracking is out of scope for this reconciler.
	if payload.Channel != string(models.ChannelSMS) {
		return "ignored", nil
	}

	matches, err := r.match(ctx, payload)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		r.logger.Info("webhook matched no delivery log", map[string]interface{}{
			"event":   payload.Event,
			"user_id": payload.UserID,
		})
		return "unmatched", nil
	}

	deliveredAt := r.deliveredTime(payload, status)
	errorMessage := ""
	if status == models.StatusFailed && payload.Metadata != nil {
		errorMessage = payload.Metadata.Error
		if errorMessage == "" {
			errorMessage = payload.Metadata.ErrorCode
		}
	}

	// Each matched row merges independently; one stale row never blocks
	// the rest of the batch.
	updated := 0
	for _, entry := range matches {
		changed, err := r.logs.ApplyStatus(ctx, entry.ID, status, deliveredAt, errorMessage)
		if err != nil {
			return "", err
		}
		if changed {
			updated++
		} else {
			r.logger.Debug("stale webhook skipped", map[string]interface{}{
				"log_id":     entry.ID,
				"new_status": string(status),
			})
		}
	}
	if updated == 0 {
		return "skipped", nil
	}
	return "updated", nil
}

// match locates the target rows: by provider message id first, then by the
// most recent sent row to the callback's phone number. Some carriers put the
// phone number in userId and never echo the message id back.
func (r *Reconciler) match(ctx context.Context, payload Payload) ([]models.DeliveryLog, error) {
	externalID := payload.NotificationID
	if payload.Metadata != nil && payload.Metadata.MessageID != "" {
		externalID = payload.Metadata.MessageID
	}

	if externalID != "" {
		matches, err := r.logs.FindByExternalID(ctx, externalID, models.ChannelSMS)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			return matches, nil
		}
	}

	if payload.UserID != "" {
		entry, err := r.logs.FindLatestSentByPhone(ctx, payload.UserID, models.ChannelSMS)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return []models.DeliveryLog{*entry}, nil
		}
	}

	return nil, nil
}

// deliveredTime resolves the delivered_at value for a delivered event. The
// carrier timestamp may be RFC3339 or epoch milliseconds; server time is the
// fallback when it is absent or unparseable.
func (r *Reconciler) deliveredTime(payload Payload, status models.DeliveryStatus) *time.Time {
	if status != models.StatusDelivered {
		return nil
	}

	now := time.Now().UTC()
	raw := payload.Timestamp
	if len(raw) == 0 {
		return &now
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if t, err := time.Parse(time.RFC3339, asString); err == nil {
			t = t.UTC()
			return &t
		}
		if millis, err := strconv.ParseInt(asString, 10, 64); err == nil {
			t := time.UnixMilli(millis).UTC()
			return &t
		}
		return &now
	}

	var asNumber int64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		t := time.UnixMilli(asNumber).UTC()
		return &t
	}

	return &now
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
