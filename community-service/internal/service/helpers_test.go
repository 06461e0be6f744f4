package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/chys-app/chys-live/community-service/internal/agora"
	"github.com/chys-app/chys-live/community-service/internal/cache"
	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/community-service/internal/notification"
	"github.com/chys-app/chys-live/community-service/internal/presence"
	"github.com/chys-app/chys-live/community-service/internal/recording"
	"github.com/chys-app/chys-live/community-service/internal/repository"
	"github.com/chys-app/chys-live/pkg/database"
)

type stubVendor struct {
	mu sync.Mutex

	acquireCalls int
	startCalls   int
	stopCalls    int
	queryCalls   int

	startDelay time.Duration
	acquireErr error
	stopErr    error
	fileList   agora.FileList
}

func (s *stubVendor) Acquire(ctx context.Context, channel string, uid uint32) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquireCalls++
	if s.acquireErr != nil {
		return "", s.acquireErr
	}
	return "res-" + channel, nil
}

func (s *stubVendor) Start(ctx context.Context, resourceID, channel string, uid uint32, prefix []string) (string, error) {
	time.Sleep(s.startDelay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	return "sid-" + prefix[len(prefix)-1], nil
}

func (s *stubVendor) Stop(ctx context.Context, resourceID, sid, channel string, uid uint32) (*agora.StopResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	if s.stopErr != nil {
		return nil, s.stopErr
	}
	return &agora.StopResult{ResourceID: resourceID, SID: sid, FileList: s.fileList}, nil
}

func (s *stubVendor) Query(ctx context.Context, resourceID, sid, channel string, uid uint32) (*agora.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCalls++
	return &agora.QueryResult{Status: agora.StatusRecording}, nil
}

func (s *stubVendor) set(fn func(*stubVendor)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *stubVendor) counts() (acquire, start, stop, query int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquireCalls, s.startCalls, s.stopCalls, s.queryCalls
}

type stubPush struct {
	mu   sync.Mutex
	sent []*notification.PushMessage
}

func (s *stubPush) Send(ctx context.Context, msg *notification.PushMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubPush) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type recordingConn struct {
	id   string
	mu   sync.Mutex
	sent []interface{}
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(v interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, v)
	return true
}

func (c *recordingConn) messages() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]interface{}(nil), c.sent...)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     ":memory:",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

type env struct {
	db            *gorm.DB
	broadcasts    *repository.GormBroadcastRepository
	users         *repository.GormUserRepository
	notifications *repository.GormNotificationRepository
	messages      *repository.GormMessageRepository
	vendor        *stubVendor
	push          *stubPush
	coord         *recording.Coordinator
	registry      *presence.Registry
	fanout        *notification.Service

	broadcast BroadcastService
	chat      ChatService
	user      UserService
}

func newEnv(t *testing.T, recCfg recording.Config) *env {
	t.Helper()
	if recCfg.VerifyDelay == 0 {
		recCfg.VerifyDelay = time.Hour
	}

	db := newTestDB(t)
	e := &env{
		db:            db,
		broadcasts:    repository.NewGormBroadcastRepository(db),
		users:         repository.NewGormUserRepository(db),
		notifications: repository.NewGormNotificationRepository(db),
		messages:      repository.NewGormMessageRepository(db),
		vendor:        &stubVendor{fileList: agora.FileList{"podcasts/rec.m3u8"}},
		push:          &stubPush{},
		registry:      presence.NewRegistry(),
	}
	e.coord = recording.NewCoordinator(e.broadcasts, cache.NewMemoryRecordingCache(), e.vendor, nil, recCfg)
	t.Cleanup(e.coord.Shutdown)

	tokens, err := agora.NewTokenIssuer("app", "cert", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	e.fanout = notification.NewService(e.users, e.notifications, e.push, 4)
	e.broadcast = NewBroadcastService(e.broadcasts, e.users, e.coord, tokens, e.fanout, nil, 0)
	e.chat = NewChatService(e.messages, e.users, e.registry, e.fanout, nil)
	e.user = NewUserService(e.users)
	return e
}

func (e *env) create(t *testing.T, host string, guests ...string) *domain.BroadcastResponse {
	t.Helper()
	resp, err := e.broadcast.Create(context.Background(), host, host, &domain.CreateBroadcastRequest{
		Title:        "Puppy training Q&A",
		Participants: guests,
		ScheduledAt:  time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return resp
}

func (e *env) stored(t *testing.T, id string) *domain.Broadcast {
	t.Helper()
	b, err := e.broadcasts.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	return b
}

func (e *env) notificationCount(t *testing.T, userID string) int64 {
	t.Helper()
	_, total, err := e.notifications.ListByRecipient(context.Background(), userID, 1, 100)
	if err != nil {
		t.Fatal(err)
	}
	return total
}
