package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/chys-app/chys-live/community-service/internal/domain"
	"github.com/chys-app/chys-live/community-service/internal/metrics"
	"github.com/chys-app/chys-live/community-service/internal/repository"
	"github.com/chys-app/chys-live/pkg/log"
)

var ErrInvalidRequest = errors.New("notification requires a title and a category")

// Summary reports what one fan-out did. Push counts are best-effort results;
// Recorded is the number of durable records written.
type Summary struct {
	Eligible      int `json:"eligible"`
	Excluded      int `json:"excluded"`
	Recorded      int `json:"recorded"`
	PushAttempted int `json:"push_attempted"`
	PushSucceeded int `json:"push_succeeded"`
	PushFailed    int `json:"push_failed"`
}

// Service resolves recipients, pushes to their devices and records the notification.
type Service struct {
	users       repository.UserRepository
	records     repository.NotificationRepository
	push        PushSender
	concurrency int
}

// NewService creates a fan-out service. concurrency bounds in-flight pushes.
func NewService(users repository.UserRepository, records repository.NotificationRepository, push PushSender, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Service{
		users:       users,
		records:     records,
		push:        push,
		concurrency: concurrency,
	}
}

// Send fans req out. Recipients blocked by or blocking the sender are dropped;
// push failures are counted, never returned. Only the record write can fail.
func (s *Service) Send(ctx context.Context, req domain.NotificationRequest) (*Summary, error) {
	if req.Title == "" || req.Category == "" {
		return nil, ErrInvalidRequest
	}

	l := log.Ctx(ctx).With().Str(log.FieldCategory, req.Category).Logger()
	ctx = log.WithLogger(ctx, l)

	excluded, err := s.exclusionSet(ctx, req.SenderID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	eligible := make([]string, 0, len(req.RecipientIDs))
	seen := make(map[string]struct{}, len(req.RecipientIDs))
	for _, id := range req.RecipientIDs {
		if id == "" || id == req.SenderID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, blocked := excluded[id]; blocked {
			summary.Excluded++
			continue
		}
		eligible = append(eligible, id)
	}
	summary.Eligible = len(eligible)
	metrics.NotificationsExcluded.Add(float64(summary.Excluded))

	if len(eligible) == 0 {
		l.Debug().Int("excluded", summary.Excluded).Msg("no eligible recipients")
		return summary, nil
	}

	s.dispatch(ctx, req, eligible, summary)

	records := make([]domain.Notification, len(eligible))
	for i, id := range eligible {
		records[i] = domain.Notification{
			RecipientID: id,
			SenderID:    req.SenderID,
			Title:       req.Title,
			Body:        req.Body,
			Category:    req.Category,
			Payload:     req.Payload,
		}
	}
	if err := s.records.CreateBatch(ctx, records); err != nil {
		l.Error().Err(err).Int("recipients", len(records)).Msg("failed to record notifications")
		return summary, fmt.Errorf("record notifications: %w", err)
	}
	summary.Recorded = len(records)
	metrics.NotificationsRecorded.WithLabelValues(req.Category).Add(float64(len(records)))

	l.Info().
		Int("eligible", summary.Eligible).
		Int("excluded", summary.Excluded).
		Int("push_succeeded", summary.PushSucceeded).
		Int("push_failed", summary.PushFailed).
		Msg("notification fan-out completed")
	return summary, nil
}

// exclusionSet is everyone senderID blocked plus everyone who blocked senderID.
func (s *Service) exclusionSet(ctx context.Context, senderID string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	if senderID == "" {
		return set, nil
	}

	blocked, err := s.users.ListBlocked(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("list blocked: %w", err)
	}
	blockers, err := s.users.ListBlockers(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("list blockers: %w", err)
	}
	for _, id := range blocked {
		set[id] = struct{}{}
	}
	for _, id := range blockers {
		set[id] = struct{}{}
	}
	return set, nil
}

func (s *Service) dispatch(ctx context.Context, req domain.NotificationRequest, recipients []string, summary *Summary) {
	l := log.Ctx(ctx)

	tokens, err := s.users.DeviceTokens(ctx, recipients)
	if err != nil {
		l.Warn().Err(err).Msg("device token lookup failed, skipping push")
		return
	}
	if len(tokens) == 0 {
		return
	}

	data := pushData(req)
	var succeeded, failed int64

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, id := range recipients {
		token, ok := tokens[id]
		if !ok || token == "" {
			continue
		}
		summary.PushAttempted++
		recipient := id
		g.Go(func() error {
			err := s.push.Send(ctx, &PushMessage{
				Token: token,
				Title: req.Title,
				Body:  req.Body,
				Data:  data,
			})
			if err != nil {
				atomic.AddInt64(&failed, 1)
				metrics.PushDeliveries.WithLabelValues("failed").Inc()
				l.Warn().Err(err).Str(log.FieldReceiverID, recipient).Msg("push delivery failed")
				return nil
			}
			atomic.AddInt64(&succeeded, 1)
			metrics.PushDeliveries.WithLabelValues("sent").Inc()
			return nil
		})
	}
	_ = g.Wait()

	summary.PushSucceeded = int(succeeded)
	summary.PushFailed = int(failed)
}

// pushData renders the payload as the string map push providers accept.
func pushData(req domain.NotificationRequest) map[string]string {
	data := make(map[string]string, len(req.Payload)+2)
	for k, v := range req.Payload {
		switch val := v.(type) {
		case string:
			data[k] = val
		case nil:
		default:
			raw, err := json.Marshal(val)
			if err != nil {
				data[k] = fmt.Sprint(val)
				continue
			}
			data[k] = string(raw)
		}
	}
	data["type"] = req.Category
	if req.SenderID != "" {
		data["senderId"] = req.SenderID
	}
	return data
}
