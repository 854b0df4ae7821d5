// internal/server/handlers_test.go
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"notification-service/internal/common/logger"
	"notification-service/internal/models"
	"notification-service/internal/notify/channel"
	"notification-service/internal/notify/deliverylog"
	"notification-service/internal/notify/dispatch"
	"notification-service/internal/notify/webhook"
	"notification-service/internal/ratelimit"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type stubSender struct {
	channel models.Channel
	result  channel.Result
}

func (s *stubSender) Channel() models.Channel { return s.channel }

func (s *stubSender) Send(_ context.Context, _, _, _ string) channel.Result {
	return s.result
}

type stubTemplates struct{}

func (stubTemplates) Get(_ context.Context, _ string) (*models.NotificationTemplate, error) {
	return nil, nil
}

func newTestServer(t *testing.T, senders []channel.Sender) (*httptest.Server, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewNoOpLogger()
	logs := deliverylog.NewStore(db, log)
	dispatcher := dispatch.New(stubTemplates{}, logs, senders, log)
	reconciler := webhook.NewReconciler(logs, "", "X-Provider-Signature", log)
	handlers := NewHandlers(dispatcher, logs, reconciler, func(context.Context) error { return nil }, log)

	srv := httptest.NewServer(NewRouter(handlers, nil, log))
	t.Cleanup(srv.Close)
	return srv, mock
}

var logColumns = []string{
	"id", "notification_type", "recipient_type", "channel",
	"recipient_email", "recipient_phone", "external_id", "status",
	"error_message", "delivered_at", "created_at",
}

// ==========================
// Dispatch Endpoint Tests
// ==========================

func TestSendNotification_Success(t *testing.T) {
	senders := []channel.Sender{
		&stubSender{channel: models.ChannelEmail, result: channel.Result{Success: true, ProviderID: "ses-1"}},
	}
	srv, mock := newTestServer(t, senders)

	mock.ExpectExec("INSERT INTO delivery_logs").WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"type":"order_placed","recipientType":"customer","recipientEmail":"dana@example.com","channels":["email"],"body":"Hi {{name}}","variables":{"name":"Dana"}}`
	resp, err := http.Post(srv.URL+"/api/notifications/send", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed struct {
		Results []dispatch.ChannelResult `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.Len(t, parsed.Results, 1)
	assert.True(t, parsed.Results[0].Success)
	assert.Equal(t, "ses-1", parsed.Results[0].ProviderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendNotification_ValidationFailures(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"empty channels", `{"type":"t","recipientType":"customer","channels":[],"body":"Hi"}`},
		{"missing body", `{"type":"t","recipientType":"customer","channels":["email"]}`},
		{"bad email", `{"type":"t","recipientType":"customer","recipientEmail":"nope","channels":["email"],"body":"Hi"}`},
		{"bad phone", `{"type":"t","recipientType":"customer","recipientPhone":"123","channels":["sms"],"body":"Hi"}`},
		{"not json", `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/notifications/send", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

// ==========================
// Log Query Endpoint Tests
// ==========================

func TestListLogs(t *testing.T) {
	srv, mock := newTestServer(t, nil)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM delivery_logs WHERE").
		WithArgs("sent").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT (.+) FROM delivery_logs WHERE").
		WithArgs("sent", 10, 0).
		WillReturnRows(sqlmock.NewRows(logColumns).
			AddRow("log-1", "order_placed", "customer", "sms", nil, "+15551234567", "msg_1", "sent", nil, nil, now))
	mock.ExpectQuery("SELECT(.+)FROM delivery_logs(.+)24 hours").
		WillReturnRows(sqlmock.NewRows([]string{"total", "sent", "delivered", "failed"}).
			AddRow(3, 1, 1, 1))

	resp, err := http.Get(srv.URL + "/api/notifications/logs?status=sent&limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed struct {
		Logs    []models.DeliveryLog `json:"logs"`
		Total   int                  `json:"total"`
		Limit   int                  `json:"limit"`
		Summary models.LogSummary    `json:"summary"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.Equal(t, 1, parsed.Total)
	assert.Equal(t, 10, parsed.Limit)
	require.Len(t, parsed.Logs, 1)
	assert.Equal(t, models.LogSummary{Total: 3, Sent: 1, Delivered: 1, Failed: 1}, parsed.Summary)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLogs_BadFilter(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/notifications/logs?status=bounced")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/notifications/logs?startDate=yesterday")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPurgeLogs(t *testing.T) {
	srv, mock := newTestServer(t, nil)

	mock.ExpectExec("DELETE FROM delivery_logs").
		WithArgs(60).
		WillReturnResult(sqlmock.NewResult(0, 12))

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/notifications/logs?olderThanDays=60", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.Equal(t, int64(12), parsed["deleted"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeLogs_BadThreshold(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/notifications/logs?olderThanDays=-1", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ==========================
// Webhook and Health Routes
// ==========================

func TestWebhookChallengeRoute(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/webhooks/sms?challenge=tok-1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var parsed map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.Equal(t, "tok-1", parsed["challenge"])
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// ==========================
// Middleware Tests
// ==========================

func TestRateLimitMiddleware(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_ = mock

	log := logger.NewNoOpLogger()
	logs := deliverylog.NewStore(db, log)
	dispatcher := dispatch.New(stubTemplates{}, logs, nil, log)
	reconciler := webhook.NewReconciler(logs, "", "X-Provider-Signature", log)
	handlers := NewHandlers(dispatcher, logs, reconciler, func(context.Context) error { return nil }, log)

	limiter := ratelimit.NewMemoryLimiter(1, time.Minute)
	srv := httptest.NewServer(NewRouter(handlers, limiter, log))
	t.Cleanup(srv.Close)

	body := `{"type":"t","recipientType":"customer","channels":[],"body":"x"}`

	resp, err := http.Post(srv.URL+"/api/notifications/send", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/notifications/send", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Health endpoints stay outside the throttled subrouter.
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
