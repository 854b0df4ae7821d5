// internal/server/router.go
package server

import (
	"net/http"

	"notification-service/internal/common/logger"
	"notification-service/internal/ratelimit"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the full HTTP surface. limiter may be nil, which disables
// throttling on the dispatch API.
func NewRouter(h *Handlers, limiter ratelimit.Limiter, log logger.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestLogging(log))

	api := r.PathPrefix("/api/notifications").Subrouter()
	if limiter != nil {
		api.Use(RateLimit(limiter, log))
	}
	api.HandleFunc("/send", h.SendNotification).Methods(http.MethodPost)
	api.HandleFunc("/logs", h.ListLogs).Methods(http.MethodGet)
	api.HandleFunc("/logs", h.PurgeLogs).Methods(http.MethodDelete)

	// Webhooks are authenticated by signature, not rate limited; carriers
	// burst redeliveries and a 429 would only make them retry harder.
	r.HandleFunc("/webhooks/sms", h.SMSWebhook).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/sms", h.SMSWebhookChallenge).Methods(http.MethodGet)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}
