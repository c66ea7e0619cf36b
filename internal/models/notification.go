package models

import "time"

// NotificationKind classifies lifecycle notifications.
type NotificationKind string

const (
	NotificationRequestCreated  NotificationKind = "request_created"
	NotificationRequestApproved NotificationKind = "request_approved"
	NotificationRequestRejected NotificationKind = "request_rejected"
)

// Notification is a human-readable lifecycle event shown on the dashboard.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	ChurchID  string           `db:"church_id" json:"churchId"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	RequestID string           `db:"request_id" json:"requestId"`
	Entity    EntityKind       `db:"entity" json:"entity"`
	Action    EditAction       `db:"action" json:"action"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}
