// internal/models/deliverylog.go
package models

import "time"

// Channel is a delivery medium for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// RecipientType distinguishes admin-facing from customer-facing notifications.
type RecipientType string

const (
	RecipientAdmin    RecipientType = "admin"
	RecipientCustomer RecipientType = "customer"
)

// DeliveryStatus is the lifecycle state of one delivery attempt.
// Transitions are monotonic: pending -> sent -> {delivered | failed}.
// delivered and failed are terminal.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

// Valid reports whether s is a known delivery status.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// DeliveryLog records one send attempt on one channel to one recipient.
// Exactly one of RecipientEmail/RecipientPhone is populated, matching Channel.
type DeliveryLog struct {
	ID               string         `json:"id"`
	NotificationType string         `json:"notification_type"`
	RecipientType    RecipientType  `json:"recipient_type"`
	Channel          Channel        `json:"channel"`
	RecipientEmail   string         `json:"recipient_email,omitempty"`
	RecipientPhone   string         `json:"recipient_phone,omitempty"`
	ExternalID       string         `json:"external_id,omitempty"`
	Status           DeliveryStatus `json:"status"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	DeliveredAt      *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// LogFilter narrows a delivery-log listing. Zero values mean "no filter".
type LogFilter struct {
	Type          string
	Status        DeliveryStatus
	RecipientType RecipientType
	Channel       Channel
	StartDate     *time.Time
	EndDate       *time.Time
	Limit         int
	Offset        int
}

// LogSummary buckets the trailing 24 hours of delivery logs by status.
type LogSummary struct {
	Total     int `json:"total_24h"`
	Sent      int `json:"sent_24h"`
	Delivered int `json:"delivered_24h"`
	Failed    int `json:"failed_24h"`
}
