package domain

import "time"

// Message is a persisted private chat message.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Body       string    `json:"message"`
	MediaURL   string    `json:"media,omitempty"`
	CreatedAt  time.Time `json:"timestamp"`
}

// Conversation is one peer of a user's inbox with the latest message exchanged.
type Conversation struct {
	PeerID      string  `json:"peer_id"`
	LastMessage Message `json:"last_message"`
}

// ListMessagesRequest represents a chat history request.
type ListMessagesRequest struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}
