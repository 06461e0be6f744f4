package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/pkg/log"
)

const notificationBatchSize = 200

// GormNotificationRepository implements NotificationRepository using GORM.
type GormNotificationRepository struct {
	db *gorm.DB
}

// NewGormNotificationRepository creates a new GORM-backed notification repository.
func NewGormNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

// CreateBatch inserts all notifications in one statement per batch.
// IDs and timestamps are assigned here and written back to the slice.
func (r *GormNotificationRepository) CreateBatch(ctx context.Context, notifications []domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	now := time.Now().UTC()
	models := make([]*domain.NotificationModel, len(notifications))
	for i := range notifications {
		n := &notifications[i]
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		models[i] = domain.NotificationToModel(n)
	}

	if err := r.db.WithContext(ctx).CreateInBatches(models, notificationBatchSize).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Int("count", len(models)).Msg("failed to insert notifications")
		return err
	}
	return nil
}

// ListByRecipient returns a page of notifications for recipientID, newest first.
func (r *GormNotificationRepository) ListByRecipient(ctx context.Context, recipientID string, page, pageSize int) ([]domain.Notification, int64, error) {
	page, pageSize = normalizePage(page, pageSize)

	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&domain.NotificationModel{}).Where("recipient_id = ?", recipientID)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []domain.NotificationModel
	err := base().Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, recipientID).Msg("failed to list notifications")
		return nil, 0, err
	}

	out := make([]domain.Notification, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, total, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

var _ NotificationRepository = (*GormNotificationRepository)(nil)
