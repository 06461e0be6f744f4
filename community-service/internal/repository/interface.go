package repository

import (
	"context"
	"errors"
	"time"

	"github.com/chys-app/chys-live/community-service/internal/domain"
)

var (
	ErrBroadcastNotFound        = errors.New("broadcast not found")
	ErrStatusConflict           = errors.New("broadcast status changed concurrently")
	ErrRecordingSessionNotFound = errors.New("recording session not found")
	ErrUserNotFound             = errors.New("user not found")
	ErrAlreadyBlocked           = errors.New("user already blocked")
	ErrBlockNotFound            = errors.New("block not found")
)

// BroadcastRepository defines the interface for broadcast persistence.
// Status-changing writes are compare-and-swap on the persisted status.
type BroadcastRepository interface {
	Create(ctx context.Context, b *domain.Broadcast) error
	GetByID(ctx context.Context, id string) (*domain.Broadcast, error)
	ListHosted(ctx context.Context, userID string) ([]domain.Broadcast, error)
	ListAsGuest(ctx context.Context, userID string) ([]domain.Broadcast, error)
	// MarkLive moves a scheduled broadcast to live.
	MarkLive(ctx context.Context, id string, at time.Time) error
	// SetRecordingSession stores the vendor handle of a live broadcast.
	SetRecordingSession(ctx context.Context, id string, rs *domain.RecordingSession) error
	GetRecordingSession(ctx context.Context, id string) (*domain.RecordingSession, error)
	// MarkEnded moves a non-ended broadcast to ended and clears its recording handle.
	MarkEnded(ctx context.Context, id string, recordingURL *string, at time.Time) error
	AddFund(ctx context.Context, fund *domain.Fund) error
	ListFunds(ctx context.Context, broadcastID string) ([]domain.Fund, error)
}

// NotificationRepository defines the interface for notification records.
type NotificationRepository interface {
	CreateBatch(ctx context.Context, notifications []domain.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, page, pageSize int) ([]domain.Notification, int64, error)
}

// MessageRepository defines the interface for chat message persistence.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListBetween(ctx context.Context, userID, peerID string, page, pageSize int) ([]domain.Message, int64, error)
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
}

// UserRepository is the user directory: numeric ids, device tokens and blocks.
type UserRepository interface {
	Ensure(ctx context.Context, id, name string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	SetDeviceToken(ctx context.Context, id string, token *string) error
	DeviceTokens(ctx context.Context, ids []string) (map[string]string, error)
	Block(ctx context.Context, blockerID, blockedID string) error
	Unblock(ctx context.Context, blockerID, blockedID string) error
	ListBlocked(ctx context.Context, blockerID string) ([]string, error)
	ListBlockers(ctx context.Context, blockedID string) ([]string, error)
	IsBlockedEitherWay(ctx context.Context, a, b string) (bool, error)
}
