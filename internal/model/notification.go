package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType enumerates notification kinds.
type NotificationType string

const (
	NotificationExamAssigned NotificationType = "exam_assigned"
)

// Notification is a stored, fire-and-forget message to a user.
// Delivery beyond storage (email, push) is out of scope for this service.
type Notification struct {
	ID          int64            `json:"id"`
	RecipientID int              `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	ExamID      *uuid.UUID       `json:"exam_id,omitempty"`
	IsRead      bool             `json:"is_read"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
