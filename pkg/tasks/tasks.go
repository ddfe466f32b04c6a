// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// CleanupTask asks a consumer to remove a user's conversations that are past the retention window.
type CleanupTask struct {
	TaskID      string    `json:"task_id"`
	UserID      string    `json:"user_id"`
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}
