// internal/server/handlers.go
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	stderrors "notification-service/internal/common/errors"
	"notification-service/internal/common/logger"
	"notification-service/internal/common/metrics"
	"notification-service/internal/common/validation"
	"notification-service/internal/models"
	"notification-service/internal/notify/deliverylog"
	"notification-service/internal/notify/dispatch"
	"notification-service/internal/notify/webhook"
)

const maxBodyBytes = 1 << 20

// Handlers holds the HTTP surface of the notification engine.
type Handlers struct {
	dispatcher *dispatch.Dispatcher
	logs       *deliverylog.Store
	reconciler *webhook.Reconciler
	readyCheck func(ctx context.Context) error
	logger     logger.Logger
}

func NewHandlers(dispatcher *dispatch.Dispatcher, logs *deliverylog.Store, reconciler *webhook.Reconciler, readyCheck func(ctx context.Context) error, log logger.Logger) *Handlers {
	return &Handlers{
		dispatcher: dispatcher,
		logs:       logs,
		reconciler: reconciler,
		readyCheck: readyCheck,
		logger:     log.WithFields(map[string]interface{}{"component": "http"}),
	}
}

// ==========================
// Dispatch
// ==========================

// SendNotification handles POST /api/notifications/send. The response always
// carries one result per requested channel so callers can report partial
// success; only request validation fails the call as a whole.
func (h *Handlers) SendNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, stderrors.NewInvalidRequestError("unreadable request body"))
		return
	}

	if err := validation.ValidateDispatchRequest(body); err != nil {
		h.writeError(w, stderrors.NewInvalidRequestError(err.Error()))
		return
	}

	var req dispatch.Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, stderrors.NewInvalidRequestError(err.Error()))
		return
	}

	if req.RecipientEmail != "" && !validation.ValidateEmail(req.RecipientEmail) {
		h.writeError(w, stderrors.NewInvalidRequestError("recipientEmail is not a valid email address"))
		return
	}
	if req.RecipientPhone != "" && !validation.ValidatePhone(req.RecipientPhone) {
		h.writeError(w, stderrors.NewInvalidRequestError("recipientPhone is not a valid phone number"))
		return
	}

	results := h.dispatcher.Send(r.Context(), req)
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// ==========================
// Delivery log query API
// ==========================

// ListLogs handles GET /api/notifications/logs with filtering, pagination,
// and the trailing-24h summary.
func (h *Handlers) ListLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLogFilter(r)
	if err != nil {
		h.writeError(w, stderrors.NewInvalidRequestError(err.Error()))
		return
	}

	logs, total, err := h.logs.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, stderrors.NewQueryExecutionFailedError("list delivery logs", err))
		return
	}

	summary, err := h.logs.Summary(r.Context())
	if err != nil {
		h.writeError(w, stderrors.NewQueryExecutionFailedError("delivery log summary", err))
		return
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":    logs,
		"total":   total,
		"limit":   limit,
		"offset":  filter.Offset,
		"summary": summary,
	})
}

// PurgeLogs handles DELETE /api/notifications/logs?olderThanDays=N.
func (h *Handlers) PurgeLogs(w http.ResponseWriter, r *http.Request) {
	olderThanDays := 30
	if raw := r.URL.Query().Get("olderThanDays"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, stderrors.NewInvalidRequestError("olderThanDays must be a positive integer"))
			return
		}
		olderThanDays = parsed
	}

	deleted, err := h.logs.Purge(r.Context(), olderThanDays)
	if err != nil {
		h.writeError(w, stderrors.NewQueryExecutionFailedError("purge delivery logs", err))
		return
	}

	metrics.DeliveryLogsPurged.Add(float64(deleted))
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": deleted})
}

// ==========================
// Webhook
// ==========================

// SMSWebhook handles POST /webhooks/sms carrier callbacks.
func (h *Handlers) SMSWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, stderrors.NewInvalidRequestError("unreadable request body"))
		return
	}
	h.reconciler.HandleEvent(w, r, body)
}

// SMSWebhookChallenge handles GET /webhooks/sms?challenge=<token>.
func (h *Handlers) SMSWebhookChallenge(w http.ResponseWriter, r *http.Request) {
	h.reconciler.HandleChallenge(w, r)
}

// ==========================
// Health
// ==========================

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the backing stores are reachable.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.readyCheck(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ==========================
// Helpers
// ==========================

func parseLogFilter(r *http.Request) (models.LogFilter, error) {
	q := r.URL.Query()
	filter := models.LogFilter{
		Type:          q.Get("type"),
		Status:        models.DeliveryStatus(q.Get("status")),
		RecipientType: models.RecipientType(q.Get("recipientType")),
		Channel:       models.Channel(q.Get("channel")),
	}

	if filter.Status != "" && !filter.Status.Valid() {
		return filter, &badFilterError{"status", string(filter.Status)}
	}

	if raw := q.Get("startDate"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, &badFilterError{"startDate", raw}
		}
		filter.StartDate = &t
	}
	if raw := q.Get("endDate"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, &badFilterError{"endDate", raw}
		}
		filter.EndDate = &t
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, &badFilterError{"limit", raw}
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, &badFilterError{"offset", raw}
		}
		filter.Offset = offset
	}

	return filter, nil
}

type badFilterError struct {
	field string
	value string
}

func (e *badFilterError) Error() string {
	return "invalid value for " + e.field + ": " + e.value
}

func (h *Handlers) writeError(w http.ResponseWriter, err *stderrors.StandardError) {
	status := stderrors.HTTPStatus(err.Code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", map[string]interface{}{
			"code":    string(err.Code),
			"details": err.Details,
		})
	}
	writeJSON(w, status, map[string]interface{}{"error": err})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
