package repository

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"

	"gorm.io/gorm"

	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/pkg/log"
)

const numericUIDAttempts = 4

// GormUserRepository implements UserRepository using GORM.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-backed user repository.
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// numericUID derives the RTC uid for a user id. Zero is reserved by the RTC
// vendor for "assign one for me", so it is never returned.
func numericUID(id string, attempt int) uint32 {
	key := id
	if attempt > 0 {
		key = id + "#" + strconv.Itoa(attempt)
	}
	uid := crc32.ChecksumIEEE([]byte(key))
	if uid == 0 {
		uid = 1
	}
	return uid
}

// Ensure returns the user row for id, creating it (and its numeric uid) on first sight.
func (r *GormUserRepository) Ensure(ctx context.Context, id, name string) (*domain.User, error) {
	u, err := r.GetByID(ctx, id)
	if err == nil {
		if name != "" && u.Name != name {
			if err := r.db.WithContext(ctx).Model(&domain.UserModel{}).Where("id = ?", id).Update("name", name).Error; err != nil {
				return nil, err
			}
			u.Name = name
		}
		return u, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < numericUIDAttempts; attempt++ {
		model := &domain.UserModel{ID: id, Name: name, NumericUID: numericUID(id, attempt)}
		lastErr = r.db.WithContext(ctx).Create(model).Error
		if lastErr == nil {
			return model.ToDomain(), nil
		}
		// A concurrent Ensure may have inserted the row first.
		if u, err := r.GetByID(ctx, id); err == nil {
			return u, nil
		}
	}

	l := log.Ctx(ctx)
	l.Error().Err(lastErr).Str(log.FieldUserID, id).Msg("failed to create user")
	return nil, fmt.Errorf("ensure user %s: %w", id, lastErr)
}

// GetByID retrieves a user by ID.
func (r *GormUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var model domain.UserModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// SetDeviceToken stores (or clears, when token is nil) the push token of a user.
func (r *GormUserRepository) SetDeviceToken(ctx context.Context, id string, token *string) error {
	result := r.db.WithContext(ctx).Model(&domain.UserModel{}).
		Where("id = ?", id).
		Update("device_token", token)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeviceTokens returns the push token of every user in ids that has one.
func (r *GormUserRepository) DeviceTokens(ctx context.Context, ids []string) (map[string]string, error) {
	tokens := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return tokens, nil
	}

	var models []domain.UserModel
	err := r.db.WithContext(ctx).
		Select("id", "device_token").
		Where("id IN ? AND device_token IS NOT NULL AND device_token <> ''", ids).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	for _, m := range models {
		if m.DeviceToken != nil {
			tokens[m.ID] = *m.DeviceToken
		}
	}
	return tokens, nil
}

// Block records that blockerID blocked blockedID. A previously lifted block is restored.
func (r *GormUserRepository) Block(ctx context.Context, blockerID, blockedID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Unscoped().
			Model(&domain.BlockModel{}).
			Where("blocker_id = ? AND blocked_id = ? AND deleted_at IS NOT NULL", blockerID, blockedID).
			Update("deleted_at", nil)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}

		var count int64
		if err := tx.Model(&domain.BlockModel{}).
			Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyBlocked
		}

		return tx.Create(&domain.BlockModel{BlockerID: blockerID, BlockedID: blockedID}).Error
	})
}

// Unblock lifts a block.
func (r *GormUserRepository) Unblock(ctx context.Context, blockerID, blockedID string) error {
	result := r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&domain.BlockModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBlockNotFound
	}
	return nil
}

// ListBlocked returns the ids blockerID has blocked.
func (r *GormUserRepository) ListBlocked(ctx context.Context, blockerID string) ([]string, error) {
	ids := make([]string, 0)
	err := r.db.WithContext(ctx).Model(&domain.BlockModel{}).
		Where("blocker_id = ?", blockerID).
		Order("created_at ASC").
		Pluck("blocked_id", &ids).Error
	return ids, err
}

// ListBlockers returns the ids that have blocked blockedID.
func (r *GormUserRepository) ListBlockers(ctx context.Context, blockedID string) ([]string, error) {
	ids := make([]string, 0)
	err := r.db.WithContext(ctx).Model(&domain.BlockModel{}).
		Where("blocked_id = ?", blockedID).
		Pluck("blocker_id", &ids).Error
	return ids, err
}

// IsBlockedEitherWay reports whether a blocked b or b blocked a.
func (r *GormUserRepository) IsBlockedEitherWay(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.BlockModel{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

var _ UserRepository = (*GormUserRepository)(nil)
