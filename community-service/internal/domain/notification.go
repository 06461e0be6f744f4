package domain

import "time"

// Notification categories.
const (
	CategoryPodcastInvite = "PODCAST_INVITE"
	CategoryPodcastFund   = "PODCAST_FUND"
	CategoryMessage       = "MESSAGE"
	CategoryLike          = "LIKE"
	CategoryComment       = "COMMENT"
)

// Notification is the durable in-app record of one notification to one recipient.
type Notification struct {
	ID          string                 `json:"id"`
	RecipientID string                 `json:"recipient_id"`
	SenderID    string                 `json:"sender_id,omitempty"`
	Title       string                 `json:"title"`
	Body        string                 `json:"body"`
	Category    string                 `json:"category"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NotificationRequest describes one fan-out.
type NotificationRequest struct {
	RecipientIDs []string
	Title        string
	Body         string
	Category     string
	Payload      map[string]interface{}
	SenderID     string // optional
}

// ListNotificationsRequest represents a list notifications request.
type ListNotificationsRequest struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}
