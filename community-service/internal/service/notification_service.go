package service

import (
	"context"

	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/community-service/internal/repository"
)

type notificationServiceImpl struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationServiceImpl{repo: repo}
}

// List returns a page of userID's notifications, newest first.
func (s *notificationServiceImpl) List(ctx context.Context, userID string, page, pageSize int) ([]domain.Notification, int64, error) {
	return s.repo.ListByRecipient(ctx, userID, page, pageSize)
}
