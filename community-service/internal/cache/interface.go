package cache

import (
	"context"
	"errors"
	"time"

	"github.com/chys-app/chys-live/community-service/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// RecordingCache holds the vendor handle of running recordings by broadcast id.
// It is a read-through optimisation; the persisted broadcast stays authoritative.
type RecordingCache interface {
	Get(ctx context.Context, broadcastID string) (*domain.RecordingSession, error)
	Set(ctx context.Context, broadcastID string, rs *domain.RecordingSession, ttl time.Duration) error
	Delete(ctx context.Context, broadcastIDs ...string) error
	Close() error
}
