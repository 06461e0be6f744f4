package domain

import (
	"time"

	"gorm.io/gorm"

	"github.com/chys-app/chys-live/pkg/database"
)

// BroadcastModel is the GORM model for broadcasts table.
type BroadcastModel struct {
	ID                  string               `gorm:"type:varchar(36);primaryKey"`
	HostID              string               `gorm:"type:varchar(64);index;not null"`
	Participants        database.StringArray `gorm:"type:text"`
	PetProfileIDs       database.StringArray `gorm:"type:text"`
	Title               string               `gorm:"type:varchar(200);not null"`
	Description         string               `gorm:"type:text"`
	Status              string               `gorm:"type:varchar(20);index;not null;default:'scheduled'"`
	ChannelName         string               `gorm:"type:varchar(64);uniqueIndex;not null"`
	RecordingResourceID *string              `gorm:"column:recording_resource_id;type:varchar(512)"`
	RecordingSID        *string              `gorm:"column:recording_sid;type:varchar(128)"`
	RecordingUID        *uint32              `gorm:"column:recording_uid"`
	RecordingURL        *string              `gorm:"column:recording_url;type:text"`
	ScheduledAt         time.Time            `gorm:"not null"`
	StartedAt           *time.Time
	EndedAt             *time.Time
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for BroadcastModel.
func (BroadcastModel) TableName() string {
	return "broadcasts"
}

// ToDomain converts BroadcastModel to domain Broadcast.
func (m *BroadcastModel) ToDomain() *Broadcast {
	b := &Broadcast{
		ID:            m.ID,
		HostID:        m.HostID,
		Participants:  []string(m.Participants),
		PetProfileIDs: []string(m.PetProfileIDs),
		Title:         m.Title,
		Description:   m.Description,
		Status:        BroadcastStatus(m.Status),
		ChannelName:   m.ChannelName,
		RecordingURL:  m.RecordingURL,
		ScheduledAt:   m.ScheduledAt,
		StartedAt:     m.StartedAt,
		EndedAt:       m.EndedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.RecordingResourceID != nil && m.RecordingSID != nil {
		rs := &RecordingSession{ResourceID: *m.RecordingResourceID, SID: *m.RecordingSID}
		if m.RecordingUID != nil {
			rs.UID = *m.RecordingUID
		}
		b.RecordingSession = rs
	}
	return b
}

// BroadcastToModel converts domain Broadcast to BroadcastModel.
func BroadcastToModel(b *Broadcast) *BroadcastModel {
	m := &BroadcastModel{
		ID:            b.ID,
		HostID:        b.HostID,
		Participants:  database.StringArray(b.Participants),
		PetProfileIDs: database.StringArray(b.PetProfileIDs),
		Title:         b.Title,
		Description:   b.Description,
		Status:        string(b.Status),
		ChannelName:   b.ChannelName,
		RecordingURL:  b.RecordingURL,
		ScheduledAt:   b.ScheduledAt,
		StartedAt:     b.StartedAt,
		EndedAt:       b.EndedAt,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
	if rs := b.RecordingSession; rs != nil {
		resourceID, sid, uid := rs.ResourceID, rs.SID, rs.UID
		m.RecordingResourceID = &resourceID
		m.RecordingSID = &sid
		m.RecordingUID = &uid
	}
	return m
}

// FundModel is the GORM model for broadcast_funds table.
type FundModel struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	BroadcastID string    `gorm:"type:varchar(36);index;not null"`
	UserID      string    `gorm:"type:varchar(64);not null"`
	Amount      int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (FundModel) TableName() string { return "broadcast_funds" }

func (m *FundModel) ToDomain() Fund {
	return Fund{
		ID:          m.ID,
		BroadcastID: m.BroadcastID,
		UserID:      m.UserID,
		Amount:      m.Amount,
		CreatedAt:   m.CreatedAt,
	}
}

// NotificationModel is the GORM model for notifications table.
type NotificationModel struct {
	ID          string           `gorm:"type:varchar(36);primaryKey"`
	RecipientID string           `gorm:"type:varchar(64);index:idx_notifications_recipient_created,priority:1;not null"`
	SenderID    *string          `gorm:"type:varchar(64)"`
	Title       string           `gorm:"type:varchar(200);not null"`
	Body        string           `gorm:"type:text"`
	Category    string           `gorm:"type:varchar(40);index;not null"`
	Payload     database.JSONMap `gorm:"type:text"`
	CreatedAt   time.Time        `gorm:"index:idx_notifications_recipient_created,priority:2"`
}

func (NotificationModel) TableName() string { return "notifications" }

func (m *NotificationModel) ToDomain() Notification {
	n := Notification{
		ID:          m.ID,
		RecipientID: m.RecipientID,
		Title:       m.Title,
		Body:        m.Body,
		Category:    m.Category,
		Payload:     map[string]interface{}(m.Payload),
		CreatedAt:   m.CreatedAt,
	}
	if m.SenderID != nil {
		n.SenderID = *m.SenderID
	}
	return n
}

func NotificationToModel(n *Notification) *NotificationModel {
	m := &NotificationModel{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Title:       n.Title,
		Body:        n.Body,
		Category:    n.Category,
		Payload:     database.JSONMap(n.Payload),
		CreatedAt:   n.CreatedAt,
	}
	if n.SenderID != "" {
		sender := n.SenderID
		m.SenderID = &sender
	}
	return m
}

// MessageModel is the GORM model for messages table.
type MessageModel struct {
	ID         string    `gorm:"type:char(26);primaryKey"`
	SenderID   string    `gorm:"type:varchar(64);index:idx_messages_pair,priority:1;not null"`
	ReceiverID string    `gorm:"type:varchar(64);index:idx_messages_pair,priority:2;index;not null"`
	Body       string    `gorm:"type:text;not null"`
	MediaURL   string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

func (MessageModel) TableName() string { return "messages" }

func (m *MessageModel) ToDomain() Message {
	return Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Body:       m.Body,
		MediaURL:   m.MediaURL,
		CreatedAt:  m.CreatedAt,
	}
}

// UserModel is the GORM model for users table. Profile data lives in the user
// directory; only what this service needs is mirrored here.
type UserModel struct {
	ID          string    `gorm:"type:varchar(64);primaryKey"`
	Name        string    `gorm:"type:varchar(100)"`
	NumericUID  uint32    `gorm:"uniqueIndex;not null"`
	DeviceToken *string   `gorm:"type:varchar(512)"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string { return "users" }

func (m *UserModel) ToDomain() *User {
	u := &User{
		ID:         m.ID,
		Name:       m.Name,
		NumericUID: m.NumericUID,
	}
	if m.DeviceToken != nil {
		u.DeviceToken = *m.DeviceToken
	}
	return u
}

// BlockModel is the GORM model for user_blocks table.
type BlockModel struct {
	ID        uint           `gorm:"primaryKey;autoIncrement"`
	BlockerID string         `gorm:"column:blocker_id;type:varchar(64);uniqueIndex:idx_user_blocks_pair;not null"`
	BlockedID string         `gorm:"column:blocked_id;type:varchar(64);uniqueIndex:idx_user_blocks_pair;index;not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (BlockModel) TableName() string { return "user_blocks" }

// Models returns every GORM model owned by the service, for migration.
func Models() []interface{} {
	return []interface{}{
		&BroadcastModel{},
		&FundModel{},
		&NotificationModel{},
		&MessageModel{},
		&UserModel{},
		&BlockModel{},
	}
}
