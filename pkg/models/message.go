package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus is the delivery state of one outbound message attempt.
// Transitions: queued → sent | failed; failed → queued (explicit retry).
// Sent and cancelled are terminal.
type MessageStatus string

const (
	MessageQueued    MessageStatus = "queued"
	MessageSent      MessageStatus = "sent"
	MessageFailed    MessageStatus = "failed"
	MessageCancelled MessageStatus = "cancelled"
)

// MessageType is the payload kind of an outbound message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeMedia MessageType = "media"
)

// MessageHistory is one outbound message attempt. The row doubles as the
// queue entry: the dispatcher claims rows whose ScheduledAt is due, so the
// job-to-record link is the primary key rather than a content match.
type MessageHistory struct {
	BaseModel
	SessionID  uuid.UUID     `gorm:"type:uuid;not null;index;constraint:OnDelete:RESTRICT" json:"session_id"`
	SenderID   uuid.UUID     `gorm:"type:uuid;not null;constraint:OnDelete:RESTRICT" json:"sender_id"`
	Recipient  string        `gorm:"not null;index" json:"recipient"` // canonical digits, no plus
	Type       MessageType   `gorm:"not null;default:'text'" json:"type"`
	Content    string        `gorm:"type:text" json:"content"`
	MediaURL   string        `json:"media_url,omitempty"`
	MediaMime  string        `json:"media_mime,omitempty"`
	Caption    string        `json:"caption,omitempty"`
	Status     MessageStatus `gorm:"default:'queued';index" json:"status"`
	ExternalID *string       `gorm:"index" json:"external_id,omitempty"`
	LastError  *string       `gorm:"type:text" json:"last_error,omitempty"`
	Attempts   int           `gorm:"default:0" json:"attempts"`
	ScheduledAt time.Time    `gorm:"not null;index" json:"scheduled_at"`
	SentAt      *time.Time   `json:"sent_at,omitempty"`

	Session *Session `gorm:"foreignKey:SessionID" json:"session,omitempty"`
	Sender  *User    `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}
