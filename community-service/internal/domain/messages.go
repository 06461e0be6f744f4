package domain

// WebSocket event types from client.
const (
	MsgTypePrivateMessage = "private_message"
	MsgTypePing           = "ping"
)

// WebSocket event types to client.
const (
	MsgTypeReceiveMessage = "receive_message"
	MsgTypeErrorMessage   = "error_message"
	MsgTypePong           = "pong"
)

// Error codes carried by error_message.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type PrivateMessageIn struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	Media      string `json:"media,omitempty"`
}

// Server -> Client messages

type ReceiveMessageOut struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	Media      string `json:"media,omitempty"`
	Timestamp  int64  `json:"timestamp"` // unix millis
}

func NewReceiveMessage(m *Message) *ReceiveMessageOut {
	return &ReceiveMessageOut{
		Type:       MsgTypeReceiveMessage,
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Message:    m.Body,
		Media:      m.MediaURL,
		Timestamp:  m.CreatedAt.UnixMilli(),
	}
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func NewErrorMessage(code, message, detail string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeErrorMessage,
		Code:    code,
		Message: message,
		Error:   detail,
	}
}
