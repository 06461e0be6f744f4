package recording

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/chys-app/chys-live/community-service/internal/agora"
	"github.com/chys-app/chys-live/community-service/internal/cache"
	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/community-service/internal/repository"
	"github.com/chys-app/chys-live/pkg/database"
	"github.com/chys-app/chys-live/pkg/storage"
)

type stubVendor struct {
	mu sync.Mutex

	acquireCalls int
	startCalls   int
	stopCalls    int
	queryCalls   int

	startDelay  time.Duration
	acquireErr  error
	startErr    error
	stopErr     error
	queryErr    error
	queryStatus int
	fileList    agora.FileList
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
	if s.startErr != nil {
		return "", s.startErr
	}
	return "sid-" + prefix[1], nil
}

func (s *stubVendor) Stop(ctx context.Context, resourceID, sid, channel string, uid uint32) (*agora.StopResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	if s.stopErr != nil {
		return nil, s.stopErr
	}
	return &agora.StopResult{ResourceID: resourceID, SID: sid, FileList: s.fileList, UploadingStatus: "uploaded"}, nil
}

func (s *stubVendor) Query(ctx context.Context, resourceID, sid, channel string, uid uint32) (*agora.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCalls++
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return &agora.QueryResult{Status: s.queryStatus}, nil
}

func (s *stubVendor) calls() (acquire, start, stop, query int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquireCalls, s.startCalls, s.stopCalls, s.queryCalls
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

type fixture struct {
	repo   *repository.GormBroadcastRepository
	cache  *cache.MemoryRecordingCache
	vendor *stubVendor
	coord  *Coordinator
}

func newFixture(t *testing.T, store storage.Storage, cfg Config) *fixture {
	t.Helper()
	if cfg.VerifyDelay == 0 {
		cfg.VerifyDelay = time.Hour
	}
	f := &fixture{
		repo:   repository.NewGormBroadcastRepository(newTestDB(t)),
		cache:  cache.NewMemoryRecordingCache(),
		vendor: &stubVendor{queryStatus: agora.StatusRecording},
	}
	f.coord = NewCoordinator(f.repo, f.cache, f.vendor, store, cfg)
	t.Cleanup(f.coord.Shutdown)
	return f
}

func (f *fixture) liveBroadcast(t *testing.T) *domain.Broadcast {
	t.Helper()
	ctx := context.Background()
	b := &domain.Broadcast{
		HostID:      "host",
		Title:       "Morning walk",
		ChannelName: "chan-" + time.Now().Format("150405.000000000"),
		ScheduledAt: time.Now().UTC(),
	}
	if err := f.repo.Create(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.repo.MarkLive(ctx, b.ID, time.Now().UTC()); err != nil {
		t.Fatalf("mark live: %v", err)
	}
	got, err := f.repo.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return got
}

func TestStartIsIdempotent(t *testing.T) {
	f := newFixture(t, nil, Config{})
	b := f.liveBroadcast(t)
	ctx := context.Background()

	first, err := f.coord.Start(ctx, b.ID, 7)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	second, err := f.coord.Start(ctx, b.ID, 7)
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if *first != *second {
		t.Errorf("handles differ: %+v vs %+v", first, second)
	}
	if acquire, start, _, _ := f.vendor.calls(); acquire != 1 || start != 1 {
		t.Errorf("acquire/start calls = %d/%d, want 1/1", acquire, start)
	}

	stored, err := f.repo.GetRecordingSession(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetRecordingSession() error = %v", err)
	}
	if *stored != *first {
		t.Errorf("stored = %+v, want %+v", stored, first)
	}
	if cached, err := f.cache.Get(ctx, b.ID); err != nil || *cached != *first {
		t.Errorf("cached = %+v, %v", cached, err)
	}
	if !f.coord.Verifying(b.ID) {
		t.Error("expected a pending verification")
	}
}

func TestConcurrentStartCallsVendorOnce(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.vendor.startDelay = 20 * time.Millisecond
	b := f.liveBroadcast(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.coord.Start(context.Background(), b.ID, 7); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Start() error = %v", err)
	}
	if _, start, _, _ := f.vendor.calls(); start != 1 {
		t.Errorf("start calls = %d, want 1", start)
	}
	if n := f.coord.locks.size(); n != 0 {
		t.Errorf("lock table size = %d, want 0", n)
	}
}

func TestStartRequiresLiveBroadcast(t *testing.T) {
	f := newFixture(t, nil, Config{})
	ctx := context.Background()
	b := &domain.Broadcast{HostID: "host", Title: "t", ChannelName: "chan-scheduled", ScheduledAt: time.Now().UTC()}
	if err := f.repo.Create(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.coord.Start(ctx, b.ID, 7); !errors.Is(err, ErrNotLive) {
		t.Fatalf("Start() error = %v, want ErrNotLive", err)
	}
	if _, err := f.coord.Start(ctx, "missing", 7); !errors.Is(err, repository.ErrBroadcastNotFound) {
		t.Fatalf("Start() error = %v, want ErrBroadcastNotFound", err)
	}
	if acquire, _, _, _ := f.vendor.calls(); acquire != 0 {
		t.Errorf("acquire calls = %d, want 0", acquire)
	}
}

func TestStartVendorFailureIsExternal(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*stubVendor)
	}{
		{name: "acquire", configure: func(v *stubVendor) { v.acquireErr = errors.New("quota exceeded") }},
		{name: "missing sid", configure: func(v *stubVendor) { v.startErr = agora.ErrMissingSID }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, Config{})
			tt.configure(f.vendor)
			b := f.liveBroadcast(t)
			ctx := context.Background()

			_, err := f.coord.Start(ctx, b.ID, 7)
			if !errors.Is(err, ErrExternalService) {
				t.Fatalf("Start() error = %v, want ErrExternalService", err)
			}
			if _, err := f.repo.GetRecordingSession(ctx, b.ID); !errors.Is(err, repository.ErrRecordingSessionNotFound) {
				t.Errorf("handle persisted after failure: %v", err)
			}
			if f.coord.Verifying(b.ID) {
				t.Error("verification scheduled after failure")
			}
		})
	}
}

func TestLookupFallsBackToStore(t *testing.T) {
	f := newFixture(t, nil, Config{})
	b := f.liveBroadcast(t)
	ctx := context.Background()

	rs, err := f.coord.Start(ctx, b.ID, 7)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// A restarted process starts with an empty cache.
	fresh := cache.NewMemoryRecordingCache()
	restarted := NewCoordinator(f.repo, fresh, f.vendor, nil, Config{})
	defer restarted.Shutdown()

	got, err := restarted.Lookup(ctx, b.ID)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if *got != *rs {
		t.Errorf("Lookup() = %+v, want %+v", got, rs)
	}
	if fresh.Len() != 1 {
		t.Errorf("cache not refilled, len = %d", fresh.Len())
	}

	if _, err := restarted.Lookup(ctx, "missing"); !errors.Is(err, ErrNoRecordingSession) {
		t.Errorf("Lookup(missing) error = %v, want ErrNoRecordingSession", err)
	}
}

func TestStopResolvesRecordingURL(t *testing.T) {
	base := t.TempDir()
	store, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: base, BaseURL: "https://cdn.example.com"})
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}

	t.Run("vendor file list", func(t *testing.T) {
		f := newFixture(t, store, Config{})
		b := f.liveBroadcast(t)
		f.vendor.fileList = agora.FileList{"podcasts/" + b.ID + "/a_0.ts", "podcasts/" + b.ID + "/a.m3u8"}
		ctx := context.Background()

		if _, err := f.coord.Start(ctx, b.ID, 7); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		out, err := f.coord.Finish(ctx, b, nil)
		if err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
		want := "https://cdn.example.com/podcasts/" + b.ID + "/a.m3u8"
		if out.RecordingURL == nil || *out.RecordingURL != want {
			t.Errorf("RecordingURL = %v, want %s", out.RecordingURL, want)
		}
		if f.cache.Len() != 0 {
			t.Error("cache entry not evicted")
		}
		if f.coord.Verifying(b.ID) {
			t.Error("verification not cancelled")
		}
	})

	t.Run("bucket listing", func(t *testing.T) {
		f := newFixture(t, store, Config{})
		b := f.liveBroadcast(t)
		dir := filepath.Join(base, "podcasts", b.ID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "rec.m3u8"), []byte("#EXTM3U"), 0o644); err != nil {
			t.Fatal(err)
		}
		ctx := context.Background()

		if _, err := f.coord.Start(ctx, b.ID, 7); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		out, err := f.coord.Finish(ctx, b, nil)
		if err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
		want := "https://cdn.example.com/podcasts/" + b.ID + "/rec.m3u8"
		if out.RecordingURL == nil || *out.RecordingURL != want {
			t.Errorf("RecordingURL = %v, want %s", out.RecordingURL, want)
		}
	})

	t.Run("reported key not in bucket", func(t *testing.T) {
		f := newFixture(t, store, Config{})
		b := f.liveBroadcast(t)
		dir := filepath.Join(base, "podcasts", b.ID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "uploaded.m3u8"), []byte("#EXTM3U"), 0o644); err != nil {
			t.Fatal(err)
		}
		f.vendor.fileList = agora.FileList{"podcasts/" + b.ID + "/renamed.m3u8"}
		ctx := context.Background()

		if _, err := f.coord.Start(ctx, b.ID, 7); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		out, err := f.coord.Finish(ctx, b, nil)
		if err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
		want := "https://cdn.example.com/podcasts/" + b.ID + "/uploaded.m3u8"
		if out.RecordingURL == nil || *out.RecordingURL != want {
			t.Errorf("RecordingURL = %v, want %s", out.RecordingURL, want)
		}
	})

	t.Run("nothing uploaded", func(t *testing.T) {
		f := newFixture(t, store, Config{})
		b := f.liveBroadcast(t)
		ctx := context.Background()

		if _, err := f.coord.Start(ctx, b.ID, 7); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		out, err := f.coord.Finish(ctx, b, nil)
		if err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
		if out.RecordingURL != nil {
			t.Errorf("RecordingURL = %q, want nil", *out.RecordingURL)
		}
	})
}

func TestStopFailureKeepsHandle(t *testing.T) {
	f := newFixture(t, nil, Config{})
	b := f.liveBroadcast(t)
	ctx := context.Background()

	rs, err := f.coord.Start(ctx, b.ID, 7)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.vendor.mu.Lock()
	f.vendor.stopErr = errors.New("agora stop: status 500")
	f.vendor.mu.Unlock()

	if _, err := f.coord.Finish(ctx, b, nil); !errors.Is(err, ErrExternalService) {
		t.Fatalf("Finish() error = %v, want ErrExternalService", err)
	}
	got, err := f.coord.Lookup(ctx, b.ID)
	if err != nil || *got != *rs {
		t.Errorf("Lookup() after failed stop = %+v, %v", got, err)
	}
	if !f.coord.Verifying(b.ID) {
		t.Error("verification cancelled by a failed stop")
	}
}

func TestFinishWithoutHandle(t *testing.T) {
	f := newFixture(t, nil, Config{})
	b := f.liveBroadcast(t)

	var committed bool
	out, err := f.coord.Finish(context.Background(), b, func(ctx context.Context, out *StopOutcome) error {
		committed = out == nil
		return nil
	})
	if err != nil || out != nil {
		t.Fatalf("Finish() = %+v, %v", out, err)
	}
	if !committed {
		t.Error("commit not called with a nil outcome")
	}
	if _, _, stop, _ := f.vendor.calls(); stop != 0 {
		t.Errorf("stop calls = %d, want 0", stop)
	}
}

func TestFinishCommitFailureIsRetriedWithoutSecondStop(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.vendor.fileList = agora.FileList{"podcasts/x/rec.m3u8"}
	b := f.liveBroadcast(t)
	ctx := context.Background()

	if _, err := f.coord.Start(ctx, b.ID, 7); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	dbDown := errors.New("connection reset")
	if _, err := f.coord.Finish(ctx, b, func(ctx context.Context, out *StopOutcome) error {
		return dbDown
	}); !errors.Is(err, dbDown) {
		t.Fatalf("Finish() error = %v, want %v", err, dbDown)
	}
	if f.coord.Verifying(b.ID) {
		t.Error("verification still pending for a stopped recording")
	}

	var url *string
	out, err := f.coord.Finish(ctx, b, func(ctx context.Context, out *StopOutcome) error {
		url = out.RecordingURL
		return f.repo.MarkEnded(ctx, b.ID, url, time.Now().UTC())
	})
	if err != nil {
		t.Fatalf("Finish() retry error = %v", err)
	}
	if url == nil || *url != "podcasts/x/rec.m3u8" || out.Session.SID != "sid-"+b.ID {
		t.Errorf("retry outcome = %+v", out)
	}
	if _, _, stop, _ := f.vendor.calls(); stop != 1 {
		t.Errorf("stop calls = %d, want 1", stop)
	}
	if f.cache.Len() != 0 {
		t.Error("cache entry not evicted after commit")
	}
}

func TestFinishOnEndedBroadcast(t *testing.T) {
	f := newFixture(t, nil, Config{})
	b := f.liveBroadcast(t)
	ctx := context.Background()

	if _, err := f.coord.Start(ctx, b.ID, 7); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	end := func(ctx context.Context, out *StopOutcome) error {
		return f.repo.MarkEnded(ctx, b.ID, nil, time.Now().UTC())
	}
	if _, err := f.coord.Finish(ctx, b, end); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	// b is the snapshot taken while live; the second call must see the stored end.
	if _, err := f.coord.Finish(ctx, b, end); !errors.Is(err, repository.ErrStatusConflict) {
		t.Fatalf("second Finish() error = %v, want ErrStatusConflict", err)
	}
	if _, _, stop, _ := f.vendor.calls(); stop != 1 {
		t.Errorf("stop calls = %d, want 1", stop)
	}
}

func TestConcurrentFinishStopsOnce(t *testing.T) {
	f := newFixture(t, nil, Config{})
	b := f.liveBroadcast(t)
	ctx := context.Background()

	if _, err := f.coord.Start(ctx, b.ID, 7); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.Finish(ctx, b, func(ctx context.Context, out *StopOutcome) error {
				return f.repo.MarkEnded(ctx, b.ID, nil, time.Now().UTC())
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, repository.ErrStatusConflict):
			t.Errorf("Finish() error = %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("%d calls ended the broadcast, want 1", ok)
	}
	if _, _, stop, _ := f.vendor.calls(); stop != 1 {
		t.Errorf("stop calls = %d, want 1", stop)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestVerification(t *testing.T) {
	t.Run("confirmed on first query", func(t *testing.T) {
		f := newFixture(t, nil, Config{VerifyDelay: 10 * time.Millisecond, VerifyAttempts: 3})
		b := f.liveBroadcast(t)
		if _, err := f.coord.Start(context.Background(), b.ID, 7); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		waitFor(t, time.Second, func() bool { return !f.coord.Verifying(b.ID) })
		if _, _, _, query := f.vendor.calls(); query != 1 {
			t.Errorf("query calls = %d, want 1", query)
		}
	})

	t.Run("gives up after bounded attempts", func(t *testing.T) {
		f := newFixture(t, nil, Config{VerifyDelay: 10 * time.Millisecond, VerifyAttempts: 3})
		f.vendor.queryStatus = 1
		b := f.liveBroadcast(t)
		if _, err := f.coord.Start(context.Background(), b.ID, 7); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		waitFor(t, 2*time.Second, func() bool { return !f.coord.Verifying(b.ID) })
		time.Sleep(50 * time.Millisecond)
		if _, _, _, query := f.vendor.calls(); query != 3 {
			t.Errorf("query calls = %d, want 3", query)
		}

		got, err := f.repo.GetByID(context.Background(), b.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != domain.BroadcastStatusLive {
			t.Errorf("status = %s, want live after failed verification", got.Status)
		}
	})

	t.Run("query errors are retried", func(t *testing.T) {
		f := newFixture(t, nil, Config{VerifyDelay: 10 * time.Millisecond, VerifyAttempts: 2})
		f.vendor.queryErr = errors.New("timeout")
		b := f.liveBroadcast(t)
		if _, err := f.coord.Start(context.Background(), b.ID, 7); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		waitFor(t, 2*time.Second, func() bool { return !f.coord.Verifying(b.ID) })
		if _, _, _, query := f.vendor.calls(); query != 2 {
			t.Errorf("query calls = %d, want 2", query)
		}
	})

	t.Run("cancelled on release", func(t *testing.T) {
		f := newFixture(t, nil, Config{VerifyDelay: 50 * time.Millisecond, VerifyAttempts: 3})
		b := f.liveBroadcast(t)
		ctx := context.Background()
		if _, err := f.coord.Start(ctx, b.ID, 7); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		f.coord.Release(ctx, b.ID)
		if f.coord.Verifying(b.ID) {
			t.Fatal("verification still pending after release")
		}
		time.Sleep(120 * time.Millisecond)
		if _, _, _, query := f.vendor.calls(); query != 0 {
			t.Errorf("query calls = %d, want 0", query)
		}
	})

	t.Run("no-op once the broadcast ended", func(t *testing.T) {
		f := newFixture(t, nil, Config{VerifyDelay: 30 * time.Millisecond, VerifyAttempts: 3})
		b := f.liveBroadcast(t)
		ctx := context.Background()
		if _, err := f.coord.Start(ctx, b.ID, 7); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := f.repo.MarkEnded(ctx, b.ID, nil, time.Now().UTC()); err != nil {
			t.Fatal(err)
		}

		waitFor(t, time.Second, func() bool { return !f.coord.Verifying(b.ID) })
		if _, _, _, query := f.vendor.calls(); query != 0 {
			t.Errorf("query calls = %d, want 0", query)
		}
	})
}
