package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/pkg/log"
)

// conversationScanLimit bounds how many recent messages are scanned to build the inbox.
const conversationScanLimit = 2000

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-backed message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create persists a message. The caller assigns ID and CreatedAt.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	model := &domain.MessageModel{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Body:       msg.Body,
		MediaURL:   msg.MediaURL,
		CreatedAt:  msg.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldReceiverID, msg.ReceiverID).Msg("failed to persist message")
		return err
	}
	return nil
}

// ListBetween returns the conversation between userID and peerID, oldest first.
func (r *GormMessageRepository) ListBetween(ctx context.Context, userID, peerID string, page, pageSize int) ([]domain.Message, int64, error) {
	page, pageSize = normalizePage(page, pageSize)

	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&domain.MessageModel{}).
			Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
				userID, peerID, peerID, userID)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []domain.MessageModel
	err := base().Order("created_at ASC, id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list messages")
		return nil, 0, err
	}

	out := make([]domain.Message, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, total, nil
}

// ListConversations returns one entry per peer with the latest message, newest first.
func (r *GormMessageRepository) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	var models []domain.MessageModel
	err := r.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Limit(conversationScanLimit).
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list conversations")
		return nil, err
	}

	seen := make(map[string]struct{})
	conversations := make([]domain.Conversation, 0)
	for i := range models {
		m := models[i].ToDomain()
		peer := m.ReceiverID
		if peer == userID {
			peer = m.SenderID
		}
		if _, ok := seen[peer]; ok {
			continue
		}
		seen[peer] = struct{}{}
		conversations = append(conversations, domain.Conversation{PeerID: peer, LastMessage: m})
	}
	return conversations, nil
}

var _ MessageRepository = (*GormMessageRepository)(nil)
