package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a paired WhatsApp account.
type SessionStatus string

const (
	SessionDisconnected SessionStatus = "disconnected"
	SessionCreating     SessionStatus = "creating"
	SessionConnecting   SessionStatus = "connecting"
	SessionPending      SessionStatus = "pending"
	SessionGeneratingQR SessionStatus = "generating_qr"
	SessionConnected    SessionStatus = "connected"
)

// IsActive reports whether the session holds (or is acquiring) a gateway
// instance. At most one active session per user is allowed.
func (s SessionStatus) IsActive() bool {
	return s != SessionDisconnected
}

// ShouldPoll reports whether the session is in a pairing state whose
// gateway-side progress must be polled.
func (s SessionStatus) ShouldPoll() bool {
	switch s {
	case SessionCreating, SessionConnecting, SessionPending, SessionGeneratingQR:
		return true
	}
	return false
}

// CanShowQR reports whether a QR code may be displayed for the session.
// Same set of states as ShouldPoll: while pairing, the QR is the way in.
func (s SessionStatus) CanShowQR() bool {
	return s.ShouldPoll()
}

// CanStart reports whether a new pairing attempt may be started.
func (s SessionStatus) CanStart() bool {
	return s == SessionDisconnected
}

// StatusFromAPI maps the gateway's connection-state vocabulary onto the
// local status enum. The mapping is total: unknown strings map to
// disconnected, the conservative state. The raw string is kept on the
// session's LastAPIResponse so new gateway vocabulary stays observable.
func StatusFromAPI(state string) SessionStatus {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "open", "connected":
		return SessionConnected
	case "connecting":
		return SessionConnecting
	case "pending", "pairing":
		return SessionPending
	case "qr", "qrcode", "generating_qr":
		return SessionGeneratingQR
	case "creating", "created":
		return SessionCreating
	default:
		return SessionDisconnected
	}
}

// Session represents one paired WhatsApp account. Name maps 1:1 to the
// gateway instance name and must be unique at the gateway.
type Session struct {
	BaseModel
	UserID          uuid.UUID     `gorm:"type:uuid;not null;index;constraint:OnDelete:RESTRICT" json:"user_id"`
	Name            string        `gorm:"unique;not null" json:"name" validate:"required"`
	Status          SessionStatus `gorm:"default:'disconnected'" json:"status"`
	QRCode          *string       `gorm:"type:text" json:"qr_code,omitempty"`
	LastAPIResponse *string       `gorm:"type:text" json:"-"`
	LastActivityAt  *time.Time    `json:"last_activity_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
