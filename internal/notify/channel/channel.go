// internal/notify/channel/channel.go
package channel

import (
	"context"

	"notification-service/internal/models"
)

// Result is the per-channel outcome of one send attempt. Senders never panic
// or return Go errors past their boundary — provider failures are captured
// here so the dispatcher can log precisely.
type Result struct {
	Success    bool
	ProviderID string
	Err        string
}

// Sender delivers one fully rendered message to one recipient on one channel.
type Sender interface {
	Channel() models.Channel
	Send(ctx context.Context, recipient, subject, body string) Result
}
