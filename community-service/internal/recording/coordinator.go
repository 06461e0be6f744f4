package recording

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/chys-app/chys-live/community-service/internal/agora"
	"github.com/chys-app/chys-live/community-service/internal/cache"
	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/community-service/internal/repository"
	"github.com/chys-app/chys-live/pkg/log"
	"github.com/chys-app/chys-live/pkg/storage"
)

var (
	// ErrExternalService wraps every failure of the recording vendor.
	ErrExternalService    = errors.New("recording vendor error")
	ErrNoRecordingSession = errors.New("no recording session found in cache or store")
	ErrNotLive            = errors.New("broadcast is not live")
)

// VendorClient is the cloud-recording API.
type VendorClient interface {
	Acquire(ctx context.Context, channel string, uid uint32) (string, error)
	Start(ctx context.Context, resourceID, channel string, uid uint32, fileNamePrefix []string) (string, error)
	Stop(ctx context.Context, resourceID, sid, channel string, uid uint32) (*agora.StopResult, error)
	Query(ctx context.Context, resourceID, sid, channel string, uid uint32) (*agora.QueryResult, error)
}

// Config tunes the coordinator.
type Config struct {
	VerifyDelay    time.Duration
	VerifyAttempts int
	KeyPrefix      string
	CacheTTL       time.Duration
	URLExpiry      time.Duration
}

// StopOutcome is what a successful stop leaves behind.
type StopOutcome struct {
	Session      domain.RecordingSession
	RecordingURL *string
	Uploading    string
}

// CommitFunc persists the end of a broadcast. out is nil when no recording was running.
type CommitFunc func(ctx context.Context, out *StopOutcome) error

// Coordinator owns the cloud recording of live broadcasts. The persisted
// broadcast holds the handle; the cache only shortcuts reads of it.
type Coordinator struct {
	repo   repository.BroadcastRepository
	cache  cache.RecordingCache
	vendor VendorClient
	store  storage.Storage
	cfg    Config

	locks    *keyedMutex
	verifier *verifier
	sf       singleflight.Group

	// stops the vendor accepted but whose commit failed, by broadcast id
	mu      sync.Mutex
	stopped map[string]*StopOutcome
}

// NewCoordinator creates a coordinator. store may be nil, in which case stop
// results are reported as the raw object key.
func NewCoordinator(
	repo repository.BroadcastRepository,
	recordingCache cache.RecordingCache,
	vendor VendorClient,
	store storage.Storage,
	cfg Config,
) *Coordinator {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "podcasts"
	}
	if cfg.VerifyDelay <= 0 {
		cfg.VerifyDelay = 3 * time.Second
	}
	if cfg.VerifyAttempts <= 0 {
		cfg.VerifyAttempts = 3
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 6 * time.Hour
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 7 * 24 * time.Hour
	}

	c := &Coordinator{
		repo:    repo,
		cache:   recordingCache,
		vendor:  vendor,
		store:   store,
		cfg:     cfg,
		locks:   newKeyedMutex(),
		stopped: make(map[string]*StopOutcome),
	}
	c.verifier = newVerifier(cfg.VerifyDelay, cfg.VerifyAttempts, c.verifyOnce)
	return c
}

// Start records broadcastID unless a recording is already running, in which case
// the existing handle is returned and the vendor is not called. The decision runs
// under a per-broadcast lock against the persisted record.
func (c *Coordinator) Start(ctx context.Context, broadcastID string, uid uint32) (*domain.RecordingSession, error) {
	unlock := c.locks.Lock(broadcastID)
	defer unlock()

	l := log.Ctx(ctx)

	b, err := c.repo.GetByID(ctx, broadcastID)
	if err != nil {
		return nil, err
	}
	if b.Status != domain.BroadcastStatusLive {
		return nil, ErrNotLive
	}
	if b.RecordingSession != nil {
		l.Debug().Str(log.FieldBroadcastID, broadcastID).Msg("recording already running, start skipped")
		return b.RecordingSession, nil
	}

	resourceID, err := c.vendor.Acquire(ctx, b.ChannelName, uid)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire: %v", ErrExternalService, err)
	}

	sid, err := c.vendor.Start(ctx, resourceID, b.ChannelName, uid, []string{c.cfg.KeyPrefix, b.ID})
	if err != nil {
		return nil, fmt.Errorf("%w: start: %v", ErrExternalService, err)
	}

	rs := &domain.RecordingSession{ResourceID: resourceID, SID: sid, UID: uid}
	if err := c.repo.SetRecordingSession(ctx, broadcastID, rs); err != nil {
		l.Error().Err(err).
			Str(log.FieldBroadcastID, broadcastID).
			Str(log.FieldSID, sid).
			Msg("recording started but handle could not be stored")
		return nil, err
	}

	if err := c.cache.Set(ctx, broadcastID, rs, c.cfg.CacheTTL); err != nil {
		l.Warn().Err(err).Str(log.FieldBroadcastID, broadcastID).Msg("failed to cache recording handle")
	}

	c.verifier.Schedule(broadcastID, sid)

	l.Info().
		Str(log.FieldBroadcastID, broadcastID).
		Str(log.FieldChannel, b.ChannelName).
		Str(log.FieldResourceID, resourceID).
		Str(log.FieldSID, sid).
		Msg("recording started")
	return rs, nil
}

// Lookup returns the running recording handle of broadcastID: cache first, then
// the persisted broadcast, refilling the cache on the way out.
func (c *Coordinator) Lookup(ctx context.Context, broadcastID string) (*domain.RecordingSession, error) {
	l := log.Ctx(ctx)

	rs, err := c.cache.Get(ctx, broadcastID)
	if err == nil {
		return rs, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l.Warn().Err(err).Str(log.FieldBroadcastID, broadcastID).Msg("recording cache read failed, using store")
	}

	v, err, _ := c.sf.Do(broadcastID, func() (interface{}, error) {
		stored, err := c.repo.GetRecordingSession(ctx, broadcastID)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(ctx, broadcastID, stored, c.cfg.CacheTTL); err != nil {
			l.Warn().Err(err).Str(log.FieldBroadcastID, broadcastID).Msg("failed to refill recording cache")
		}
		return stored, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrRecordingSessionNotFound) || errors.Is(err, repository.ErrBroadcastNotFound) {
			return nil, ErrNoRecordingSession
		}
		return nil, err
	}

	found := *v.(*domain.RecordingSession)
	return &found, nil
}

// Finish stops the recording of b, if one is running, and hands the outcome to
// commit while b is still locked. On a vendor failure nothing is released and
// commit is not called. A stop the vendor accepted is kept until commit
// succeeds, so retrying after a failed commit does not stop twice.
func (c *Coordinator) Finish(ctx context.Context, b *domain.Broadcast, commit CommitFunc) (*StopOutcome, error) {
	unlock := c.locks.Lock(b.ID)
	defer unlock()

	l := log.Ctx(ctx)

	current, err := c.repo.GetByID(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.BroadcastStatusEnded {
		return nil, repository.ErrStatusConflict
	}

	out, err := c.stop(ctx, b)
	if err != nil && !errors.Is(err, ErrNoRecordingSession) {
		return nil, err
	}

	if commit != nil {
		if err := commit(ctx, out); err != nil {
			if out != nil {
				l.Warn().Err(err).Str(log.FieldSID, out.Session.SID).Msg("recording stopped but end was not stored")
			}
			return nil, err
		}
	}

	c.forgetStop(b.ID)
	c.Release(ctx, b.ID)
	return out, nil
}

// stop asks the vendor to stop the running recording of b, or replays a stop
// it already accepted for the same sid. It returns ErrNoRecordingSession when
// nothing is running.
func (c *Coordinator) stop(ctx context.Context, b *domain.Broadcast) (*StopOutcome, error) {
	l := log.Ctx(ctx)

	rs, err := c.Lookup(ctx, b.ID)
	if err != nil {
		return nil, err
	}

	if out := c.acceptedStop(b.ID, rs.SID); out != nil {
		l.Info().Str(log.FieldSID, rs.SID).Msg("recording already stopped, reusing result")
		return out, nil
	}

	res, err := c.vendor.Stop(ctx, rs.ResourceID, rs.SID, b.ChannelName, rs.UID)
	if err != nil {
		return nil, fmt.Errorf("%w: stop: %v", ErrExternalService, err)
	}
	c.verifier.Cancel(b.ID)

	out := &StopOutcome{
		Session:      *rs,
		RecordingURL: c.resolveURL(ctx, b.ID, res.FileList),
		Uploading:    res.UploadingStatus,
	}
	c.mu.Lock()
	c.stopped[b.ID] = out
	c.mu.Unlock()

	evt := l.Info().
		Str(log.FieldBroadcastID, b.ID).
		Str(log.FieldSID, rs.SID).
		Str(log.FieldUploading, res.UploadingStatus)
	if out.RecordingURL != nil {
		evt = evt.Str(log.FieldRecordingURL, *out.RecordingURL)
	}
	evt.Msg("recording stopped")

	return out, nil
}

func (c *Coordinator) acceptedStop(broadcastID, sid string) *StopOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.stopped[broadcastID]
	if !ok || out.Session.SID != sid {
		return nil
	}
	return out
}

func (c *Coordinator) forgetStop(broadcastID string) {
	c.mu.Lock()
	delete(c.stopped, broadcastID)
	c.mu.Unlock()
}

// Release cancels pending verification and evicts the cached handle of broadcastID.
func (c *Coordinator) Release(ctx context.Context, broadcastID string) {
	c.verifier.Cancel(broadcastID)
	if err := c.cache.Delete(ctx, broadcastID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldBroadcastID, broadcastID).Msg("failed to evict recording handle")
	}
}

// Verifying reports whether a status check is still scheduled for broadcastID.
func (c *Coordinator) Verifying(broadcastID string) bool {
	return c.verifier.Pending(broadcastID)
}

// Shutdown cancels every pending verification.
func (c *Coordinator) Shutdown() {
	c.verifier.StopAll()
}

func (c *Coordinator) verifyOnce(ctx context.Context, broadcastID, sid string, attempt int) verifyOutcome {
	l := log.L().With().
		Str(log.FieldBroadcastID, broadcastID).
		Str(log.FieldSID, sid).
		Int(log.FieldAttempt, attempt).
		Logger()
	ctx = log.WithLogger(ctx, l)

	b, err := c.repo.GetByID(ctx, broadcastID)
	if err != nil {
		if errors.Is(err, repository.ErrBroadcastNotFound) {
			return outcomeSkipped
		}
		l.Warn().Err(err).Msg("verification could not load broadcast")
		return outcomeRetry
	}
	if b.Status != domain.BroadcastStatusLive || b.RecordingSession == nil || b.RecordingSession.SID != sid {
		l.Debug().Msg("verification skipped, recording no longer current")
		return outcomeSkipped
	}

	rs := b.RecordingSession
	res, err := c.vendor.Query(ctx, rs.ResourceID, rs.SID, b.ChannelName, rs.UID)
	if err != nil {
		l.Warn().Err(err).Msg("recording status query failed")
		return outcomeRetry
	}
	if !res.Started() {
		l.Warn().Int(log.FieldVendorStatus, res.Status).Msg("recording not started yet")
		return outcomeRetry
	}

	l.Info().Int(log.FieldVendorStatus, res.Status).Msg("recording confirmed")
	return outcomeStarted
}

// resolveURL picks the playlist out of the vendor file list and turns its key
// into a URL. When the reported key is not in the bucket, or the vendor
// reported nothing, the bucket listing under the broadcast prefix is used.
func (c *Coordinator) resolveURL(ctx context.Context, broadcastID string, files []string) *string {
	l := log.Ctx(ctx)

	key := pickPlaylist(files)
	if c.store != nil && !isURL(key) {
		found := false
		if key != "" {
			ok, err := c.store.Exists(ctx, key)
			if err != nil {
				l.Warn().Err(err).Str(log.FieldObjectKey, key).Msg("failed to check recording object")
			}
			found = ok
		}
		if !found {
			if listed := c.listPlaylist(ctx, broadcastID); listed != "" {
				key = listed
			} else if key != "" {
				l.Info().Str(log.FieldObjectKey, key).Msg("recording not uploaded yet, using reported key")
			}
		}
	}
	if key == "" {
		return nil
	}

	if c.store == nil || isURL(key) {
		return &key
	}

	url, err := c.store.GetURL(ctx, key, c.cfg.URLExpiry)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldObjectKey, key).Msg("failed to build recording url, keeping object key")
		return &key
	}
	return &url
}

func (c *Coordinator) listPlaylist(ctx context.Context, broadcastID string) string {
	prefix := path.Join(c.cfg.KeyPrefix, broadcastID) + "/"
	objects, err := c.store.List(ctx, prefix)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldBroadcastID, broadcastID).Msg("failed to list recording objects")
		return ""
	}
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	return pickPlaylist(keys)
}

func isURL(key string) bool {
	return strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://")
}

// pickPlaylist prefers an HLS playlist and falls back to the first file.
func pickPlaylist(files []string) string {
	for _, f := range files {
		if strings.HasSuffix(f, ".m3u8") {
			return f
		}
	}
	if len(files) > 0 {
		return files[0]
	}
	return ""
}
