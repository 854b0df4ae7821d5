// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_send_total",
			Help: "Total number of notification send attempts by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	NotificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "notification_send_duration_seconds",
			Help: "Duration of provider send calls in seconds",
		},
		[]string{"channel"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of carrier webhook events by event and result",
		},
		[]string{"event", "result"},
	)

	DeliveryLogsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_log_purged_total",
			Help: "Total number of delivery log rows removed by maintenance purges",
		},
	)
)
