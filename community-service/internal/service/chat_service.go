package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/chys-app/chys-live/community-service/internal/audit"
	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/community-service/internal/kafka"
	"github.com/chys-app/chys-live/community-service/internal/metrics"
	"github.com/chys-app/chys-live/community-service/internal/presence"
	"github.com/chys-app/chys-live/community-service/internal/repository"
	"github.com/chys-app/chys-live/pkg/log"
)

const (
	maxMessageLength = 4000
	previewLength    = 100
)

var (
	ErrInvalidMessage = errors.New("receiverId and a non-empty message are required")
	ErrBlocked        = errors.New("messaging between these users is blocked")
)

// chatServiceImpl implements ChatService interface.
type chatServiceImpl struct {
	messages repository.MessageRepository
	users    repository.UserRepository
	registry *presence.Registry
	notifier Notifier
	events   kafka.EventProducer
	now      func() time.Time
}

// NewChatService creates a new chat service delivering through registry.
func NewChatService(
	messages repository.MessageRepository,
	users repository.UserRepository,
	registry *presence.Registry,
	notifier Notifier,
	events kafka.EventProducer,
) ChatService {
	if events == nil {
		events = kafka.NoopProducer{}
	}
	return &chatServiceImpl{
		messages: messages,
		users:    users,
		registry: registry,
		notifier: notifier,
		events:   events,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SendPrivateMessage checks the block list, persists the message, emits it to
// whichever of the two parties is connected and notifies the receiver.
func (s *chatServiceImpl) SendPrivateMessage(ctx context.Context, senderID string, in *domain.PrivateMessageIn) (*domain.Message, error) {
	receiverID := strings.TrimSpace(in.ReceiverID)
	body := strings.TrimSpace(in.Message)
	if receiverID == "" || receiverID == senderID || body == "" || utf8.RuneCountInString(body) > maxMessageLength {
		metrics.ChatMessages.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidMessage
	}

	ctx = log.WithStr(ctx, log.FieldReceiverID, receiverID)
	l := log.Ctx(ctx)

	blocked, err := s.users.IsBlockedEitherWay(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if blocked {
		metrics.ChatMessages.WithLabelValues("blocked").Inc()
		audit.Log(ctx, audit.ActionChatRejected, senderID, receiverID, "private message rejected, users blocked")
		return nil, ErrBlocked
	}

	msg := &domain.Message{
		ID:         ulid.Make().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		MediaURL:   in.Media,
		CreatedAt:  s.now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		metrics.ChatMessages.WithLabelValues("error").Inc()
		return nil, err
	}

	out := domain.NewReceiveMessage(msg)
	if conn, ok := s.registry.Lookup(senderID); ok {
		conn.Send(out)
	}
	if conn, ok := s.registry.Lookup(receiverID); ok {
		conn.Send(out)
	}
	metrics.ChatMessages.WithLabelValues("delivered").Inc()

	_, err = s.notifier.Send(ctx, domain.NotificationRequest{
		RecipientIDs: []string{receiverID},
		Title:        "New message",
		Body:         preview(body),
		Category:     domain.CategoryMessage,
		Payload: map[string]interface{}{
			"messageId": msg.ID,
		},
		SenderID: senderID,
	})
	if err != nil {
		l.Error().Err(err).Str("message_id", msg.ID).Msg("failed to notify message receiver")
	}

	evt := kafka.NewEvent(kafka.EventMessageSent, conversationKey(senderID, receiverID), senderID, map[string]interface{}{
		"message_id":  msg.ID,
		"receiver_id": receiverID,
	})
	if err := s.events.Publish(ctx, evt); err != nil {
		l.Warn().Err(err).Msg("failed to publish message event")
	}

	return msg, nil
}

// History returns the messages between userID and peerID, oldest first.
func (s *chatServiceImpl) History(ctx context.Context, userID, peerID string, page, pageSize int) ([]domain.Message, int64, error) {
	if strings.TrimSpace(peerID) == "" {
		return nil, 0, ErrInvalidMessage
	}
	return s.messages.ListBetween(ctx, userID, peerID, page, pageSize)
}

// Conversations lists userID's peers with the last message exchanged.
func (s *chatServiceImpl) Conversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	return s.messages.ListConversations(ctx, userID)
}

func preview(body string) string {
	if utf8.RuneCountInString(body) <= previewLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewLength]) + "…"
}

// conversationKey is the same for both directions of a conversation.
func conversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
