package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chys-app/chys-live/community-service/internal/audit"
	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/community-service/internal/kafka"
	"github.com/chys-app/chys-live/community-service/internal/metrics"
	"github.com/chys-app/chys-live/community-service/internal/recording"
	"github.com/chys-app/chys-live/community-service/internal/repository"
	"github.com/chys-app/chys-live/pkg/log"
)

var (
	ErrBroadcastNotFound = errors.New("broadcast not found")
	ErrNotMember         = errors.New("not authorized to join this broadcast")
	ErrNotHost           = errors.New("only the host can do this")
	ErrBroadcastEnded    = errors.New("broadcast has already ended")
	ErrInvalidBroadcast  = errors.New("title and scheduled_at are required")
	ErrInvalidAmount     = errors.New("amount must be positive")

	// ErrExternalService marks a failed call to the recording vendor.
	ErrExternalService = recording.ErrExternalService
)

// broadcastServiceImpl implements BroadcastService interface.
type broadcastServiceImpl struct {
	repo        repository.BroadcastRepository
	users       repository.UserRepository
	recorder    Recorder
	tokens      TokenIssuer
	notifier    Notifier
	events      kafka.EventProducer
	recorderUID uint32
	now         func() time.Time
}

// NewBroadcastService creates a new broadcast service. A zero recorderUID makes
// the recorder join under the host's numeric id.
func NewBroadcastService(
	repo repository.BroadcastRepository,
	users repository.UserRepository,
	recorder Recorder,
	tokens TokenIssuer,
	notifier Notifier,
	events kafka.EventProducer,
	recorderUID uint32,
) BroadcastService {
	if events == nil {
		events = kafka.NoopProducer{}
	}
	return &broadcastServiceImpl{
		repo:        repo,
		users:       users,
		recorder:    recorder,
		tokens:      tokens,
		notifier:    notifier,
		events:      events,
		recorderUID: recorderUID,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create schedules a broadcast and invites its guests.
func (s *broadcastServiceImpl) Create(ctx context.Context, hostID, hostName string, req *domain.CreateBroadcastRequest) (*domain.BroadcastResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || req.ScheduledAt.IsZero() {
		return nil, ErrInvalidBroadcast
	}

	b := &domain.Broadcast{
		HostID:        hostID,
		Participants:  guestList(hostID, req.Participants),
		PetProfileIDs: req.PetProfileIDs,
		Title:         title,
		Description:   req.Description,
		ChannelName:   uuid.New().String(),
		ScheduledAt:   req.ScheduledAt.UTC(),
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}

	ctx = log.WithBroadcast(ctx, b.ID)
	audit.Log(ctx, audit.ActionBroadcastCreate, hostID, b.ID, "broadcast created")
	metrics.BroadcastTransitions.WithLabelValues(string(domain.BroadcastStatusScheduled)).Inc()
	s.publish(ctx, kafka.EventBroadcastCreated, b, hostID)

	if len(b.Participants) > 0 {
		s.invite(ctx, b, hostName)
	}

	resp := b.ToResponse()
	return &resp, nil
}

func (s *broadcastServiceImpl) invite(ctx context.Context, b *domain.Broadcast, hostName string) {
	if hostName == "" {
		hostName = "Someone"
	}
	_, err := s.notifier.Send(ctx, domain.NotificationRequest{
		RecipientIDs: b.Participants,
		Title:        "Podcast Invitation",
		Body:         fmt.Sprintf("%s has invited you to a podcast on %s", hostName, b.ScheduledAt.Format(time.RFC1123)),
		Category:     domain.CategoryPodcastInvite,
		Payload: map[string]interface{}{
			"podcastId":   b.ID,
			"channelName": b.ChannelName,
			"scheduledAt": b.ScheduledAt.Format(time.RFC3339),
		},
		SenderID: b.HostID,
	})
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to notify invited guests")
	}
}

// guestList drops blanks, duplicates and the host.
func guestList(hostID string, ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || id == hostID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Get returns a broadcast to its host or a guest.
func (s *broadcastServiceImpl) Get(ctx context.Context, broadcastID, requesterID string) (*domain.BroadcastResponse, error) {
	b, err := s.load(ctx, broadcastID)
	if err != nil {
		return nil, err
	}
	if !b.IsMember(requesterID) {
		return nil, ErrNotMember
	}
	resp := b.ToResponse()
	return &resp, nil
}

// ListForUser returns the broadcasts userID hosts and the ones it is invited to.
func (s *broadcastServiceImpl) ListForUser(ctx context.Context, userID string) (*domain.UserBroadcastsResponse, error) {
	var hosted, guest []domain.Broadcast

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		hosted, err = s.repo.ListHosted(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		guest, err = s.repo.ListAsGuest(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.UserBroadcastsResponse{
		Hosted: toResponses(hosted),
		Guest:  toResponses(guest),
	}, nil
}

func toResponses(list []domain.Broadcast) []domain.BroadcastResponse {
	out := make([]domain.BroadcastResponse, len(list))
	for i := range list {
		out[i] = list[i].ToResponse()
	}
	return out
}

// RequestJoinToken issues a join token to the host or a guest. The host's first
// request takes the broadcast live and starts the recording; a recording that
// fails to start is logged and the token is issued anyway.
func (s *broadcastServiceImpl) RequestJoinToken(ctx context.Context, broadcastID, requesterID string) (*domain.JoinTokenResponse, error) {
	b, err := s.load(ctx, broadcastID)
	if err != nil {
		return nil, err
	}
	if !b.IsMember(requesterID) {
		return nil, ErrNotMember
	}
	if b.Status == domain.BroadcastStatusEnded {
		return nil, ErrBroadcastEnded
	}

	ctx = log.WithBroadcast(ctx, b.ID)

	requester, err := s.users.Ensure(ctx, requesterID, "")
	if err != nil {
		return nil, err
	}

	hostUID := requester.NumericUID
	if b.IsHost(requesterID) {
		if b, err = s.goLive(ctx, b, requester.NumericUID); err != nil {
			return nil, err
		}
	} else {
		host, err := s.users.Ensure(ctx, b.HostID, "")
		if err != nil {
			return nil, err
		}
		hostUID = host.NumericUID
	}

	token, expiresAt, err := s.tokens.Issue(b.ChannelName, requester.NumericUID)
	if err != nil {
		return nil, fmt.Errorf("issue join token: %w", err)
	}

	audit.Log(ctx, audit.ActionJoinToken, requesterID, b.ID, "join token issued")

	return &domain.JoinTokenResponse{
		Token:       token,
		ChannelName: b.ChannelName,
		UID:         requester.NumericUID,
		HostUID:     hostUID,
		ExpiresAt:   expiresAt,
		Status:      b.Status,
	}, nil
}

// goLive moves a scheduled broadcast to live and makes sure a live broadcast is
// being recorded. It returns the broadcast as persisted afterwards.
func (s *broadcastServiceImpl) goLive(ctx context.Context, b *domain.Broadcast, hostUID uint32) (*domain.Broadcast, error) {
	l := log.Ctx(ctx)

	if b.Status == domain.BroadcastStatusScheduled {
		now := s.now()
		err := s.repo.MarkLive(ctx, b.ID, now)
		switch {
		case err == nil:
			b.Status = domain.BroadcastStatusLive
			b.StartedAt = &now
			metrics.BroadcastTransitions.WithLabelValues(string(domain.BroadcastStatusLive)).Inc()
			audit.Log(ctx, audit.ActionBroadcastLive, b.HostID, b.ID, "broadcast went live")
			s.publish(ctx, kafka.EventBroadcastLive, b, b.HostID)
		case errors.Is(err, repository.ErrStatusConflict):
			// Another request moved it first; continue from what is stored.
			if b, err = s.load(ctx, b.ID); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}

	switch b.Status {
	case domain.BroadcastStatusEnded:
		return nil, ErrBroadcastEnded
	case domain.BroadcastStatusLive:
	default:
		return b, nil
	}

	if b.RecordingSession != nil {
		return b, nil
	}

	uid := s.recorderUID
	if uid == 0 {
		uid = hostUID
	}
	rs, err := s.recorder.Start(ctx, b.ID, uid)
	if err != nil {
		l.Error().Err(err).Msg("recording failed to start, broadcast continues without recording")
		return b, nil
	}
	b.RecordingSession = rs
	return b, nil
}

// End stops the recording and ends the broadcast. When the vendor refuses to
// stop, the broadcast stays live and the error is returned.
func (s *broadcastServiceImpl) End(ctx context.Context, broadcastID, requesterID string) (*domain.EndBroadcastResponse, error) {
	b, err := s.load(ctx, broadcastID)
	if err != nil {
		return nil, err
	}
	if !b.IsHost(requesterID) {
		return nil, ErrNotHost
	}
	if b.Status == domain.BroadcastStatusEnded {
		return nil, ErrBroadcastEnded
	}

	ctx = log.WithBroadcast(ctx, b.ID)
	l := log.Ctx(ctx)

	var recordingURL *string
	endedAt := s.now()
	_, err = s.recorder.Finish(ctx, b, func(ctx context.Context, out *recording.StopOutcome) error {
		if out == nil {
			l.Info().Msg("no recording running, ending without recording")
		} else {
			recordingURL = out.RecordingURL
		}
		return s.repo.MarkEnded(ctx, b.ID, recordingURL, endedAt)
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStatusConflict):
			return nil, ErrBroadcastEnded
		case errors.Is(err, repository.ErrBroadcastNotFound):
			return nil, ErrBroadcastNotFound
		case errors.Is(err, recording.ErrExternalService):
			l.Error().Err(err).Msg("failed to stop recording, broadcast stays live")
		}
		return nil, err
	}

	b.Status = domain.BroadcastStatusEnded
	b.RecordingURL = recordingURL
	b.EndedAt = &endedAt

	metrics.BroadcastTransitions.WithLabelValues(string(domain.BroadcastStatusEnded)).Inc()
	audit.Log(ctx, audit.ActionBroadcastEnd, requesterID, b.ID, "broadcast ended")
	s.publish(ctx, kafka.EventBroadcastEnded, b, requesterID)

	return &domain.EndBroadcastResponse{
		ID:           b.ID,
		Status:       b.Status,
		RecordingURL: recordingURL,
		EndedAt:      b.EndedAt,
	}, nil
}

// Fund records a contribution and tells the host about it.
func (s *broadcastServiceImpl) Fund(ctx context.Context, broadcastID, userID string, req *domain.FundBroadcastRequest) (*domain.Fund, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	b, err := s.load(ctx, broadcastID)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BroadcastStatusEnded {
		return nil, ErrBroadcastEnded
	}

	fund := &domain.Fund{BroadcastID: b.ID, UserID: userID, Amount: req.Amount}
	if err := s.repo.AddFund(ctx, fund); err != nil {
		return nil, err
	}

	ctx = log.WithBroadcast(ctx, b.ID)
	audit.LogWithDetail(ctx, audit.ActionBroadcastFund, userID, b.ID, fmt.Sprintf("amount=%d", req.Amount), "broadcast funded")

	if userID != b.HostID {
		_, err := s.notifier.Send(ctx, domain.NotificationRequest{
			RecipientIDs: []string{b.HostID},
			Title:        "New podcast contribution",
			Body:         fmt.Sprintf("Your podcast \"%s\" received a contribution", b.Title),
			Category:     domain.CategoryPodcastFund,
			Payload: map[string]interface{}{
				"podcastId": b.ID,
				"amount":    req.Amount,
			},
			SenderID: userID,
		})
		if err != nil {
			l := log.Ctx(ctx)
			l.Error().Err(err).Msg("failed to notify host about contribution")
		}
	}

	return fund, nil
}

// ListFunds returns every contribution of a broadcast with their total.
func (s *broadcastServiceImpl) ListFunds(ctx context.Context, broadcastID string) (*domain.FundsResponse, error) {
	if _, err := s.load(ctx, broadcastID); err != nil {
		return nil, err
	}
	funds, err := s.repo.ListFunds(ctx, broadcastID)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, f := range funds {
		total += f.Amount
	}
	return &domain.FundsResponse{Funds: funds, Total: total}, nil
}

func (s *broadcastServiceImpl) load(ctx context.Context, broadcastID string) (*domain.Broadcast, error) {
	b, err := s.repo.GetByID(ctx, broadcastID)
	if err != nil {
		if errors.Is(err, repository.ErrBroadcastNotFound) {
			return nil, ErrBroadcastNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *broadcastServiceImpl) publish(ctx context.Context, eventType string, b *domain.Broadcast, actorID string) {
	data := map[string]interface{}{
		"status":       string(b.Status),
		"host_id":      b.HostID,
		"channel_name": b.ChannelName,
	}
	if b.RecordingURL != nil {
		data["recording_url"] = *b.RecordingURL
	}
	if err := s.events.Publish(ctx, kafka.NewEvent(eventType, b.ID, actorID, data)); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("event", eventType).Msg("failed to publish broadcast event")
	}
}
