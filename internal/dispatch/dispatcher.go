package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tahfidh/internal/gateway"
	"tahfidh/internal/ratelimit"
	"tahfidh/pkg/models"

	"github.com/bsm/redislock"
	"github.com/rs/zerolog/log"
)

const (
	dispatchLockKey = "tahfidh:dispatch:leader"
	defaultBatch    = 25
)

// Dispatcher drains due messages on a ticker. When a redislock client is
// present, a short leader lock keeps multiple API replicas from draining
// the same batch twice.
type Dispatcher struct {
	messages MessageStore
	sessions SessionStore
	sender   Sender
	limiter  ratelimit.Limiter
	locker   *redislock.Client
	cfg      Config

	interval time.Duration
	stopChan chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewDispatcher creates a dispatcher. locker may be nil for
// single-replica deployments.
func NewDispatcher(messages MessageStore, sessions SessionStore, sender Sender, limiter ratelimit.Limiter, locker *redislock.Client, cfg Config) *Dispatcher {
	return &Dispatcher{
		messages: messages,
		sessions: sessions,
		sender:   sender,
		limiter:  limiter,
		locker:   locker,
		cfg:      cfg.withDefaults(),
		interval: 2 * time.Second,
		stopChan: make(chan struct{}),
	}
}

// Start begins the dispatch loop
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		log.Warn().Msg("Message dispatcher already running")
		return
	}

	d.running = true
	log.Info().Dur("interval", d.interval).Msg("Starting message dispatcher")
	go d.loop()
}

// Stop stops the dispatch loop
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}

	d.running = false
	close(d.stopChan)
	log.Info().Msg("Message dispatcher stopped")
}

func (d *Dispatcher) loop() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.drain(context.Background())
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	if d.locker != nil {
		lock, err := d.locker.Obtain(ctx, dispatchLockKey, d.interval, nil)
		if err != nil {
			if !errors.Is(err, redislock.ErrNotObtained) {
				log.Warn().Err(err).Msg("Failed to obtain dispatch lock")
			}
			return
		}
		defer lock.Release(ctx)
	}

	due, err := d.messages.ListDue(time.Now(), defaultBatch)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list due messages")
		return
	}
	if len(due) == 0 {
		return
	}

	var wg sync.WaitGroup
	for i := range due {
		wg.Add(1)
		go func(message models.MessageHistory) {
			defer wg.Done()
			if err := d.Deliver(ctx, &message); err != nil {
				log.Warn().Err(err).
					Str("message_id", message.ID.String()).
					Str("recipient", message.Recipient).
					Msg("Message delivery attempt failed")
			}
		}(due[i])
	}
	wg.Wait()
}

// Deliver executes one due message: re-checks the session, consults the
// rate limiter, sends, and transitions the row by its ID. A throttled
// message is pushed back by one window with no status change.
func (d *Dispatcher) Deliver(ctx context.Context, message *models.MessageHistory) error {
	sess, err := d.sessions.GetByID(message.SessionID)
	if err != nil {
		return d.fail(message, fmt.Errorf("session lookup failed: %w", err))
	}
	if sess.Status != models.SessionConnected {
		return d.fail(message, fmt.Errorf("%w: %s is %s", ErrSessionNotConnected, sess.Name, sess.Status))
	}

	if d.limiter != nil {
		allowed, err := d.limiter.Allow(ctx, sess.ID.String())
		if err != nil {
			// Limiter backend trouble must not stall the queue.
			log.Warn().Err(err).Str("session", sess.Name).Msg("Rate limiter check failed, allowing send")
		} else if !allowed {
			log.Info().
				Str("session", sess.Name).
				Str("message_id", message.ID.String()).
				Msg("Session throttled, rescheduling message")
			return d.messages.Reschedule(message.ID, time.Now().Add(d.limiter.Window()))
		}
	}

	result, err := d.send(ctx, sess, message)
	if err != nil {
		return d.fail(message, err)
	}

	externalID := ""
	if result != nil {
		externalID = result.Key.ID
	}
	if err := d.messages.MarkSent(message.ID, externalID, time.Now()); err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, sess *models.Session, message *models.MessageHistory) (*gateway.SendResult, error) {
	switch message.Type {
	case models.MessageTypeMedia:
		return d.sender.SendMedia(ctx, sess.Name, message.Recipient, gateway.Media{
			URL:      message.MediaURL,
			MimeType: message.MediaMime,
			Caption:  message.Caption,
		})
	default:
		return d.sender.SendText(ctx, sess.Name, message.Recipient, message.Content)
	}
}

func (d *Dispatcher) fail(message *models.MessageHistory, cause error) error {
	attempts := message.Attempts + 1
	if err := d.messages.MarkFailed(message.ID, cause.Error(), attempts); err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}
	if attempts < d.cfg.MaxAttempts {
		// Exponential backoff: base, 2x, 4x, ...
		at := time.Now().Add(d.cfg.RetryBackoff << (attempts - 1))
		if err := d.messages.RequeueFailed(message.ID, at); err != nil {
			return fmt.Errorf("failed to requeue message: %w", err)
		}
	}
	return cause
}
