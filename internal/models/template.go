// internal/models/template.go
package models

// NotificationTemplate is a named subject/body pair with {{variable}}
// placeholders. Templates are keyed by "{event_type}_{channel}", e.g.
// "admin_new_order_email". SMS templates carry no subject.
type NotificationTemplate struct {
	Key     string `json:"key"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body_template"`
}

// TemplateKey builds the lookup key for an event type and channel.
func TemplateKey(eventType string, channel Channel) string {
	return eventType + "_" + string(channel)
}
