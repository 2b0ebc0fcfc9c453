package model

import "time"

// ChangeNotification links a user, a monitored document and a detected change.
// It is created only when the change clears the notifiable threshold, the
// document has notifications enabled and an owning user exists.
// This shall match the message model consumed by the notification service.
type ChangeNotification struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	DocumentID string    `json:"document_id"`
	ChangeID   string    `json:"change_id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"created_at"`
}
