package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chys-app/chys-live/community-service/internal/domain"
)

func TestMemoryRecordingCache(t *testing.T) {
	c := NewMemoryRecordingCache()
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if _, err := c.Get(ctx, "b1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get() on empty cache error = %v, want ErrCacheMiss", err)
	}

	rs := &domain.RecordingSession{ResourceID: "res", SID: "sid", UID: 7}
	if err := c.Set(ctx, "b1", rs, time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "b2", rs, 0); err != nil {
		t.Fatal(err)
	}

	got, err := c.Get(ctx, "b1")
	if err != nil || *got != *rs {
		t.Fatalf("Get() = %+v, %v", got, err)
	}
	got.SID = "mutated"
	if again, _ := c.Get(ctx, "b1"); again.SID != "sid" {
		t.Error("cached handle was mutated through a returned copy")
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.Get(ctx, "b1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after ttl error = %v, want ErrCacheMiss", err)
	}
	if _, err := c.Get(ctx, "b2"); err != nil {
		t.Errorf("Get() without ttl error = %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after expired entry was dropped", c.Len())
	}

	if err := c.Delete(ctx, "b2", "unknown"); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after delete", c.Len())
	}
}
