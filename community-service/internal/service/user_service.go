package service

import (
	"context"
	"errors"
	"strings"

	"github.com/chys-app/chys-live/community-service/internal/audit"
	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/community-service/internal/repository"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrCannotBlockSelf  = errors.New("you cannot block yourself")
	ErrAlreadyBlocked   = errors.New("user is already blocked")
	ErrNotBlocked       = errors.New("user is not blocked")
	ErrInvalidUserInput = errors.New("user id is required")
)

// userServiceImpl implements UserService interface.
type userServiceImpl struct {
	repo repository.UserRepository
}

// NewUserService creates a new user service.
func NewUserService(repo repository.UserRepository) UserService {
	return &userServiceImpl{repo: repo}
}

func (s *userServiceImpl) Ensure(ctx context.Context, userID, name string) (*domain.User, error) {
	if userID == "" {
		return nil, ErrInvalidUserInput
	}
	return s.repo.Ensure(ctx, userID, name)
}

// RegisterDeviceToken stores the push token of userID, replacing any earlier one.
func (s *userServiceImpl) RegisterDeviceToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidUserInput
	}
	if _, err := s.repo.Ensure(ctx, userID, ""); err != nil {
		return err
	}
	if err := s.repo.SetDeviceToken(ctx, userID, &token); err != nil {
		return mapUserError(err)
	}
	audit.Log(ctx, audit.ActionDeviceToken, userID, "", "device token registered")
	return nil
}

func (s *userServiceImpl) ClearDeviceToken(ctx context.Context, userID string) error {
	if err := s.repo.SetDeviceToken(ctx, userID, nil); err != nil {
		return mapUserError(err)
	}
	audit.Log(ctx, audit.ActionDeviceToken, userID, "", "device token cleared")
	return nil
}

func (s *userServiceImpl) Block(ctx context.Context, blockerID, blockedID string) error {
	blockedID = strings.TrimSpace(blockedID)
	if blockedID == "" {
		return ErrInvalidUserInput
	}
	if blockerID == blockedID {
		return ErrCannotBlockSelf
	}
	if err := s.repo.Block(ctx, blockerID, blockedID); err != nil {
		if errors.Is(err, repository.ErrAlreadyBlocked) {
			return ErrAlreadyBlocked
		}
		return err
	}
	audit.Log(ctx, audit.ActionBlock, blockerID, blockedID, "user blocked")
	return nil
}

func (s *userServiceImpl) Unblock(ctx context.Context, blockerID, blockedID string) error {
	if err := s.repo.Unblock(ctx, blockerID, blockedID); err != nil {
		if errors.Is(err, repository.ErrBlockNotFound) {
			return ErrNotBlocked
		}
		return err
	}
	audit.Log(ctx, audit.ActionUnblock, blockerID, blockedID, "user unblocked")
	return nil
}

func (s *userServiceImpl) ListBlocked(ctx context.Context, userID string) ([]string, error) {
	return s.repo.ListBlocked(ctx, userID)
}

func mapUserError(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}
