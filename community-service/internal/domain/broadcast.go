package domain

import (
	"time"
)

// BroadcastStatus is the lifecycle state of a broadcast.
type BroadcastStatus string

const (
	BroadcastStatusScheduled BroadcastStatus = "scheduled"
	BroadcastStatusLive      BroadcastStatus = "live"
	BroadcastStatusEnded     BroadcastStatus = "ended"
)

// rank orders statuses; a status may only move to a higher rank.
func (s BroadcastStatus) rank() int {
	switch s {
	case BroadcastStatusScheduled:
		return 0
	case BroadcastStatusLive:
		return 1
	case BroadcastStatusEnded:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s BroadcastStatus) Valid() bool {
	return s.rank() >= 0
}

// CanTransitionTo reports whether moving from s to next keeps the status monotonic.
func (s BroadcastStatus) CanTransitionTo(next BroadcastStatus) bool {
	return s.Valid() && next.Valid() && next.rank() > s.rank()
}

// RecordingSession is the vendor handle pair of a running cloud recording.
type RecordingSession struct {
	ResourceID string `json:"resource_id"`
	SID        string `json:"sid"`
	UID        uint32 `json:"uid"`
}

// Broadcast is a scheduled live audio session with one host and invited guests.
type Broadcast struct {
	ID               string            `json:"id"`
	HostID           string            `json:"host_id"`
	Participants     []string          `json:"participants"`
	PetProfileIDs    []string          `json:"pet_profile_ids,omitempty"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Status           BroadcastStatus   `json:"status"`
	ChannelName      string            `json:"channel_name"`
	RecordingSession *RecordingSession `json:"recording_session,omitempty"`
	RecordingURL     *string           `json:"recording_url,omitempty"`
	ScheduledAt      time.Time         `json:"scheduled_at"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	EndedAt          *time.Time        `json:"ended_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// IsHost reports whether userID hosts the broadcast.
func (b *Broadcast) IsHost(userID string) bool {
	return userID != "" && b.HostID == userID
}

// IsParticipant reports whether userID is an invited guest.
func (b *Broadcast) IsParticipant(userID string) bool {
	for _, p := range b.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// IsMember reports whether userID is the host or a guest.
func (b *Broadcast) IsMember(userID string) bool {
	return b.IsHost(userID) || b.IsParticipant(userID)
}

// CreateBroadcastRequest represents a create broadcast request.
type CreateBroadcastRequest struct {
	Title         string    `json:"title" binding:"required,min=1,max=200"`
	Description   string    `json:"description" binding:"max=2000"`
	Participants  []string  `json:"participants"`
	PetProfileIDs []string  `json:"pet_profile_ids"`
	ScheduledAt   time.Time `json:"scheduled_at" binding:"required"`
}

// FundBroadcastRequest represents a fund request; amount is in cents.
type FundBroadcastRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// BroadcastResponse represents a broadcast in API responses. Vendor handles stay internal.
type BroadcastResponse struct {
	ID            string          `json:"id"`
	HostID        string          `json:"host_id"`
	Participants  []string        `json:"participants"`
	PetProfileIDs []string        `json:"pet_profile_ids,omitempty"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Status        BroadcastStatus `json:"status"`
	ChannelName   string          `json:"channel_name"`
	Recording     bool            `json:"recording"`
	RecordingURL  *string         `json:"recording_url,omitempty"`
	ScheduledAt   time.Time       `json:"scheduled_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ToResponse converts Broadcast to BroadcastResponse.
func (b *Broadcast) ToResponse() BroadcastResponse {
	participants := b.Participants
	if participants == nil {
		participants = []string{}
	}
	return BroadcastResponse{
		ID:            b.ID,
		HostID:        b.HostID,
		Participants:  participants,
		PetProfileIDs: b.PetProfileIDs,
		Title:         b.Title,
		Description:   b.Description,
		Status:        b.Status,
		ChannelName:   b.ChannelName,
		Recording:     b.RecordingSession != nil,
		RecordingURL:  b.RecordingURL,
		ScheduledAt:   b.ScheduledAt,
		StartedAt:     b.StartedAt,
		EndedAt:       b.EndedAt,
		CreatedAt:     b.CreatedAt,
	}
}

// UserBroadcastsResponse lists a user's broadcasts split by role.
type UserBroadcastsResponse struct {
	Hosted []BroadcastResponse `json:"hosted"`
	Guest  []BroadcastResponse `json:"guest"`
}

// JoinTokenResponse is returned by the join-token endpoint.
type JoinTokenResponse struct {
	Token       string          `json:"token"`
	ChannelName string          `json:"channel_name"`
	UID         uint32          `json:"uid"`
	HostUID     uint32          `json:"host_uid"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Status      BroadcastStatus `json:"status"`
}

// EndBroadcastResponse is returned by the end endpoint.
type EndBroadcastResponse struct {
	ID           string          `json:"id"`
	Status       BroadcastStatus `json:"status"`
	RecordingURL *string         `json:"recording_url"`
	EndedAt      *time.Time      `json:"ended_at,omitempty"`
}

// Fund is a single contribution to a broadcast.
type Fund struct {
	ID          uint      `json:"id"`
	BroadcastID string    `json:"broadcast_id"`
	UserID      string    `json:"user_id"`
	Amount      int64     `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

// FundsResponse lists contributions with their total.
type FundsResponse struct {
	Funds []Fund `json:"funds"`
	Total int64  `json:"total"`
}
