// Package queue defines message payloads exchanged over the message broker.
package queue

// ServiceInvokedEvent is published after an authorized, quota-checked
// service invocation has been recorded. It carries enough detail for
// downstream consumers to audit or alert without touching the primary
// database; the usage_records table, not this event, remains the source of
// truth for quota decisions.
type ServiceInvokedEvent struct {
	UserID      uint64 `json:"user_id"`
	Username    string `json:"username"`
	ServiceID   uint64 `json:"service_id"`
	ServiceName string `json:"service_name"`
	Permission  string `json:"permission"`
	WindowCount int    `json:"window_count"`
	WindowLimit int    `json:"window_limit"`
	InvokedAt   string `json:"invoked_at"`
}
