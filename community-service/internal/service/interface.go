package service

import (
	"context"
	"time"

	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/community-service/internal/notification"
	"github.com/chys-app/chys-live/community-service/internal/recording"
)

// BroadcastService drives the scheduled -> live -> ended lifecycle of broadcasts.
type BroadcastService interface {
	Create(ctx context.Context, hostID, hostName string, req *domain.CreateBroadcastRequest) (*domain.BroadcastResponse, error)
	Get(ctx context.Context, broadcastID, requesterID string) (*domain.BroadcastResponse, error)
	ListForUser(ctx context.Context, userID string) (*domain.UserBroadcastsResponse, error)
	RequestJoinToken(ctx context.Context, broadcastID, requesterID string) (*domain.JoinTokenResponse, error)
	End(ctx context.Context, broadcastID, requesterID string) (*domain.EndBroadcastResponse, error)
	Fund(ctx context.Context, broadcastID, userID string, req *domain.FundBroadcastRequest) (*domain.Fund, error)
	ListFunds(ctx context.Context, broadcastID string) (*domain.FundsResponse, error)
}

// ChatService handles private messages between users.
type ChatService interface {
	SendPrivateMessage(ctx context.Context, senderID string, in *domain.PrivateMessageIn) (*domain.Message, error)
	History(ctx context.Context, userID, peerID string, page, pageSize int) ([]domain.Message, int64, error)
	Conversations(ctx context.Context, userID string) ([]domain.Conversation, error)
}

// UserService manages the parts of a user this service owns.
type UserService interface {
	Ensure(ctx context.Context, userID, name string) (*domain.User, error)
	RegisterDeviceToken(ctx context.Context, userID, token string) error
	ClearDeviceToken(ctx context.Context, userID string) error
	Block(ctx context.Context, blockerID, blockedID string) error
	Unblock(ctx context.Context, blockerID, blockedID string) error
	ListBlocked(ctx context.Context, userID string) ([]string, error)
}

// NotificationService reads the in-app notification history.
type NotificationService interface {
	List(ctx context.Context, userID string, page, pageSize int) ([]domain.Notification, int64, error)
}

// Recorder is the recording side of a broadcast.
type Recorder interface {
	Start(ctx context.Context, broadcastID string, uid uint32) (*domain.RecordingSession, error)
	Finish(ctx context.Context, b *domain.Broadcast, commit recording.CommitFunc) (*recording.StopOutcome, error)
}

// TokenIssuer mints channel join credentials.
type TokenIssuer interface {
	Issue(channel string, uid uint32) (string, time.Time, error)
}

// Notifier fans a notification out to its recipients.
type Notifier interface {
	Send(ctx context.Context, req domain.NotificationRequest) (*notification.Summary, error)
}
