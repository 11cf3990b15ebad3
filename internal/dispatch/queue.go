// Package dispatch queues outbound WhatsApp messages and delivers them
// asynchronously. The message-history row doubles as the queue entry:
// enqueue creates the row with a staggered delivery time, and the
// dispatcher claims due rows and drives them to sent or failed. The
// row's primary key is the job-to-record link, so no content matching
// is ever needed to reconcile a result.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tahfidh/internal/gateway"
	"tahfidh/pkg/models"
	"tahfidh/pkg/phone"

	"github.com/google/uuid"
)

// ErrInvalidPhone is returned at enqueue time for unparseable recipients.
var ErrInvalidPhone = errors.New("dispatch: recipient phone number is not valid")

// ErrSessionNotConnected is returned when delivering through a session
// that is no longer connected.
var ErrSessionNotConnected = errors.New("dispatch: session is not connected")

// DefaultStagger spaces successive sends for one session so the account
// does not burst in a way WhatsApp flags as spam.
const DefaultStagger = 8 * time.Second

// MessageStore is the message-history persistence the queue needs.
type MessageStore interface {
	Create(message *models.MessageHistory) error
	GetByID(id uuid.UUID) (*models.MessageHistory, error)
	CountPending(sessionID uuid.UUID) (int64, error)
	ListDue(now time.Time, limit int) ([]models.MessageHistory, error)
	Reschedule(id uuid.UUID, at time.Time) error
	MarkSent(id uuid.UUID, externalID string, at time.Time) error
	MarkFailed(id uuid.UUID, errText string, attempts int) error
	RequeueFailed(id uuid.UUID, at time.Time) error
	Cancel(id uuid.UUID) error
}

// SessionStore resolves the owning session at delivery time.
type SessionStore interface {
	GetByID(id uuid.UUID) (*models.Session, error)
}

// Sender is the subset of the gateway client the dispatcher needs.
type Sender interface {
	SendText(ctx context.Context, instance, number, text string) (*gateway.SendResult, error)
	SendMedia(ctx context.Context, instance, number string, media gateway.Media) (*gateway.SendResult, error)
}

// Config tunes the queue.
type Config struct {
	// Stagger is the per-pending-message spacing for one session.
	Stagger time.Duration
	// MaxAttempts is how many delivery attempts a message gets before it
	// stays failed. 1 means failures wait for an explicit retry.
	MaxAttempts int
	// RetryBackoff is the base delay before an automatic re-attempt.
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Stagger <= 0 {
		c.Stagger = DefaultStagger
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 30 * time.Second
	}
	return c
}

// Queue enqueues messages and exposes the explicit retry/cancel surface.
type Queue struct {
	messages MessageStore
	cfg      Config
	nowFunc  func() time.Time
}

// NewQueue creates a message queue
func NewQueue(messages MessageStore, cfg Config) *Queue {
	return &Queue{
		messages: messages,
		cfg:      cfg.withDefaults(),
		nowFunc:  time.Now,
	}
}

// StaggerDelay computes the delivery delay for a message enqueued while
// pending messages already wait on the same session. Strictly increasing
// in the number of pending messages.
func StaggerDelay(pending int64, stagger time.Duration) time.Duration {
	if pending < 0 {
		pending = 0
	}
	return time.Duration(pending) * stagger
}

// TextRequest describes a text enqueue.
type TextRequest struct {
	Session  *models.Session
	SenderID uuid.UUID
	To       string
	Content  string
}

// MediaRequest describes a media enqueue.
type MediaRequest struct {
	Session  *models.Session
	SenderID uuid.UUID
	To       string
	MediaURL string
	MimeType string
	Caption  string
}

// QueueText validates the recipient, persists a queued history row and
// schedules it with the session's current stagger. Fails fast on an
// unparseable phone, before anything is persisted.
func (q *Queue) QueueText(ctx context.Context, req TextRequest) (*models.MessageHistory, error) {
	return q.enqueue(ctx, req.Session, req.SenderID, req.To, func(m *models.MessageHistory) {
		m.Type = models.MessageTypeText
		m.Content = req.Content
	})
}

// QueueMedia is QueueText for media payloads.
func (q *Queue) QueueMedia(ctx context.Context, req MediaRequest) (*models.MessageHistory, error) {
	return q.enqueue(ctx, req.Session, req.SenderID, req.To, func(m *models.MessageHistory) {
		m.Type = models.MessageTypeMedia
		m.MediaURL = req.MediaURL
		m.MediaMime = req.MimeType
		m.Caption = req.Caption
	})
}

func (q *Queue) enqueue(ctx context.Context, sess *models.Session, senderID uuid.UUID, to string, fill func(*models.MessageHistory)) (*models.MessageHistory, error) {
	recipient := phone.Clean(to)
	if recipient == "" {
		recipient = phone.CleanInternational(to)
	}
	if recipient == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPhone, to)
	}

	pending, err := q.messages.CountPending(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("dispatch: pending count failed: %w", err)
	}

	message := &models.MessageHistory{
		SessionID:   sess.ID,
		SenderID:    senderID,
		Recipient:   recipient,
		Status:      models.MessageQueued,
		ScheduledAt: q.nowFunc().Add(StaggerDelay(pending, q.cfg.Stagger)),
	}
	fill(message)

	if err := q.messages.Create(message); err != nil {
		return nil, fmt.Errorf("dispatch: failed to persist message: %w", err)
	}
	return message, nil
}

// Retry moves a failed message back to queued for immediate delivery.
func (q *Queue) Retry(id uuid.UUID) error {
	return q.messages.RequeueFailed(id, q.nowFunc())
}

// Cancel marks a still-queued message cancelled.
func (q *Queue) Cancel(id uuid.UUID) error {
	return q.messages.Cancel(id)
}
