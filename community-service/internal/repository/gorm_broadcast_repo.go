package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/pkg/log"
)

// GormBroadcastRepository implements BroadcastRepository using GORM.
type GormBroadcastRepository struct {
	db *gorm.DB
}

// NewGormBroadcastRepository creates a new GORM-based broadcast repository.
func NewGormBroadcastRepository(db *gorm.DB) *GormBroadcastRepository {
	return &GormBroadcastRepository{db: db}
}

// Create persists a new broadcast in the scheduled state.
func (r *GormBroadcastRepository) Create(ctx context.Context, b *domain.Broadcast) error {
	l := log.Ctx(ctx)

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.Status = domain.BroadcastStatusScheduled
	b.RecordingSession = nil
	b.RecordingURL = nil

	model := domain.BroadcastToModel(b)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Msg("failed to create broadcast in db")
		return err
	}

	b.CreatedAt = model.CreatedAt
	b.UpdatedAt = model.UpdatedAt
	l.Debug().Str(log.FieldBroadcastID, b.ID).Msg("broadcast created in db")
	return nil
}

// GetByID retrieves a broadcast by ID.
func (r *GormBroadcastRepository) GetByID(ctx context.Context, id string) (*domain.Broadcast, error) {
	var model domain.BroadcastModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBroadcastNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldBroadcastID, id).Msg("failed to get broadcast by id")
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListHosted returns broadcasts hosted by userID, newest schedule first.
func (r *GormBroadcastRepository) ListHosted(ctx context.Context, userID string) ([]domain.Broadcast, error) {
	var models []domain.BroadcastModel
	err := r.db.WithContext(ctx).
		Where("host_id = ?", userID).
		Order("scheduled_at DESC").
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list hosted broadcasts")
		return nil, err
	}
	return toBroadcasts(models, nil), nil
}

// ListAsGuest returns broadcasts userID is invited to.
func (r *GormBroadcastRepository) ListAsGuest(ctx context.Context, userID string) ([]domain.Broadcast, error) {
	var models []domain.BroadcastModel
	// participants is a JSON array column; the LIKE narrows, the filter below decides.
	err := r.db.WithContext(ctx).
		Where("participants LIKE ?", `%"`+userID+`"%`).
		Order("scheduled_at DESC").
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list guest broadcasts")
		return nil, err
	}
	return toBroadcasts(models, func(b *domain.Broadcast) bool { return b.IsParticipant(userID) }), nil
}

func toBroadcasts(models []domain.BroadcastModel, keep func(*domain.Broadcast) bool) []domain.Broadcast {
	out := make([]domain.Broadcast, 0, len(models))
	for i := range models {
		b := models[i].ToDomain()
		if keep != nil && !keep(b) {
			continue
		}
		out = append(out, *b)
	}
	return out
}

// MarkLive moves a scheduled broadcast to live.
func (r *GormBroadcastRepository) MarkLive(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.BroadcastModel{}).
		Where("id = ? AND status = ?", id, string(domain.BroadcastStatusScheduled)).
		Updates(map[string]interface{}{
			"status":     string(domain.BroadcastStatusLive),
			"started_at": at,
		})
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldBroadcastID, id).Msg("failed to mark broadcast live")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

// SetRecordingSession stores the vendor handle of a live broadcast.
func (r *GormBroadcastRepository) SetRecordingSession(ctx context.Context, id string, rs *domain.RecordingSession) error {
	result := r.db.WithContext(ctx).Model(&domain.BroadcastModel{}).
		Where("id = ? AND status = ?", id, string(domain.BroadcastStatusLive)).
		Updates(map[string]interface{}{
			"recording_resource_id": rs.ResourceID,
			"recording_sid":         rs.SID,
			"recording_uid":         rs.UID,
		})
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldBroadcastID, id).Msg("failed to store recording session")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

// GetRecordingSession returns the persisted recording handle of a broadcast.
func (r *GormBroadcastRepository) GetRecordingSession(ctx context.Context, id string) (*domain.RecordingSession, error) {
	b, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.RecordingSession == nil {
		return nil, ErrRecordingSessionNotFound
	}
	return b.RecordingSession, nil
}

// MarkEnded moves a non-ended broadcast to ended and clears its recording handle.
func (r *GormBroadcastRepository) MarkEnded(ctx context.Context, id string, recordingURL *string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.BroadcastModel{}).
		Where("id = ? AND status <> ?", id, string(domain.BroadcastStatusEnded)).
		Updates(map[string]interface{}{
			"status":                string(domain.BroadcastStatusEnded),
			"ended_at":              at,
			"recording_url":         recordingURL,
			"recording_resource_id": nil,
			"recording_sid":         nil,
			"recording_uid":         nil,
		})
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldBroadcastID, id).Msg("failed to mark broadcast ended")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.missOrConflict(ctx, id)
	}
	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldBroadcastID, id).Msg("broadcast ended in db")
	return nil
}

// missOrConflict explains a conditional update that touched no rows.
func (r *GormBroadcastRepository) missOrConflict(ctx context.Context, id string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.BroadcastModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrBroadcastNotFound
	}
	return ErrStatusConflict
}

// AddFund records a contribution.
func (r *GormBroadcastRepository) AddFund(ctx context.Context, fund *domain.Fund) error {
	model := &domain.FundModel{
		BroadcastID: fund.BroadcastID,
		UserID:      fund.UserID,
		Amount:      fund.Amount,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldBroadcastID, fund.BroadcastID).Msg("failed to add fund")
		return err
	}
	*fund = model.ToDomain()
	return nil
}

// ListFunds returns the contributions of a broadcast, oldest first.
func (r *GormBroadcastRepository) ListFunds(ctx context.Context, broadcastID string) ([]domain.Fund, error) {
	var models []domain.FundModel
	err := r.db.WithContext(ctx).
		Where("broadcast_id = ?", broadcastID).
		Order("created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	funds := make([]domain.Fund, len(models))
	for i := range models {
		funds[i] = models[i].ToDomain()
	}
	return funds, nil
}

var _ BroadcastRepository = (*GormBroadcastRepository)(nil)
