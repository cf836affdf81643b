package models

import (
	"time"
)

// NotificationType distinguishes routing alerts from assignment notices
type NotificationType string

const (
	NotificationSpikeAlert NotificationType = "spike_alert"
	NotificationAssignment NotificationType = "assignment"
)

// Notification is written by the routing engine and drained asynchronously by
// the notify queue worker. Delivery (email) is an external collaborator.
type Notification struct {
	ID             string           `gorm:"primaryKey;column:id"`
	OrganizationID string           `gorm:"column:organization_id;not null;index"`
	RecipientID    string           `gorm:"column:recipient_id;not null"`
	Type           NotificationType `gorm:"column:type;not null"`
	Title          string           `gorm:"column:title"`
	Body           string           `gorm:"column:body"`
	InteractionID  string           `gorm:"column:interaction_id"`
	Read           bool             `gorm:"column:read;default:false"`
	SentAt         *time.Time       `gorm:"column:sent_at"`
	CreatedAt      time.Time        `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for the Notification model
func (Notification) TableName() string {
	return "notifications"
}

// TaskFailure records a queue task that exhausted its retries. Kept for
// operator visibility, never silently dropped.
type TaskFailure struct {
	ID        string    `gorm:"primaryKey;column:id"`
	Queue     string    `gorm:"column:queue;not null"`
	Payload   string    `gorm:"column:payload;type:text"`
	Error     string    `gorm:"column:error"`
	Attempts  int       `gorm:"column:attempts"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for the TaskFailure model
func (TaskFailure) TableName() string {
	return "task_failures"
}
