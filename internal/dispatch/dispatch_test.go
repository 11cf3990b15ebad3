package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tahfidh/internal/gateway"
	"tahfidh/pkg/models"

	"github.com/google/uuid"
)

type fakeMessages struct {
	created []*models.MessageHistory
	pending int64

	sentID       uuid.UUID
	sentExternal string
	failedID     uuid.UUID
	failedErr    string
	failedTries  int
	rescheduled  uuid.UUID
	rescheduleAt time.Time
	requeued     uuid.UUID
	cancelled    uuid.UUID
}

func (f *fakeMessages) Create(m *models.MessageHistory) error {
	m.ID = uuid.New()
	f.created = append(f.created, m)
	f.pending++
	return nil
}

func (f *fakeMessages) GetByID(id uuid.UUID) (*models.MessageHistory, error) {
	for _, m := range f.created {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeMessages) CountPending(uuid.UUID) (int64, error) { return f.pending, nil }

func (f *fakeMessages) ListDue(time.Time, int) ([]models.MessageHistory, error) { return nil, nil }

func (f *fakeMessages) Reschedule(id uuid.UUID, at time.Time) error {
	f.rescheduled = id
	f.rescheduleAt = at
	return nil
}

func (f *fakeMessages) MarkSent(id uuid.UUID, externalID string, _ time.Time) error {
	f.sentID = id
	f.sentExternal = externalID
	return nil
}

func (f *fakeMessages) MarkFailed(id uuid.UUID, errText string, attempts int) error {
	f.failedID = id
	f.failedErr = errText
	f.failedTries = attempts
	return nil
}

func (f *fakeMessages) RequeueFailed(id uuid.UUID, _ time.Time) error {
	f.requeued = id
	return nil
}

func (f *fakeMessages) Cancel(id uuid.UUID) error {
	f.cancelled = id
	return nil
}

type fakeSessions struct {
	sess *models.Session
	err  error
}

func (f *fakeSessions) GetByID(uuid.UUID) (*models.Session, error) { return f.sess, f.err }

type fakeSender struct {
	textCalls  int
	mediaCalls int
	lastNumber string
	lastText   string
	result     *gateway.SendResult
	err        error
}

func (f *fakeSender) SendText(_ context.Context, _, number, text string) (*gateway.SendResult, error) {
	f.textCalls++
	f.lastNumber = number
	f.lastText = text
	return f.result, f.err
}

func (f *fakeSender) SendMedia(_ context.Context, _, number string, _ gateway.Media) (*gateway.SendResult, error) {
	f.mediaCalls++
	f.lastNumber = number
	return f.result, f.err
}

type fakeLimiter struct {
	allowed bool
	err     error
	window  time.Duration
}

func (f *fakeLimiter) Allow(context.Context, string) (bool, error) { return f.allowed, f.err }
func (f *fakeLimiter) Window() time.Duration                       { return f.window }

func connectedSession() *models.Session {
	s := &models.Session{Name: "school-main", Status: models.SessionConnected}
	s.ID = uuid.New()
	return s
}

func ackResult(id string) *gateway.SendResult {
	var r gateway.SendResult
	r.Key.ID = id
	return &r
}

func TestStaggerDelayStrictlyIncreasing(t *testing.T) {
	stagger := 8 * time.Second
	prev := time.Duration(-1)
	for pending := int64(0); pending < 5; pending++ {
		d := StaggerDelay(pending, stagger)
		if d <= prev {
			t.Fatalf("delay for %d pending = %v, want > %v", pending, d, prev)
		}
		if want := time.Duration(pending) * stagger; d != want {
			t.Errorf("delay for %d pending = %v, want %v", pending, d, want)
		}
		prev = d
	}
}

func TestQueueTextRejectsInvalidPhone(t *testing.T) {
	messages := &fakeMessages{}
	q := NewQueue(messages, Config{})

	_, err := q.QueueText(context.Background(), TextRequest{
		Session: connectedSession(),
		To:      "12345",
		Content: "assalamu alaikum",
	})
	if !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("err = %v, want ErrInvalidPhone", err)
	}
	if len(messages.created) != 0 {
		t.Errorf("invalid phone persisted a row")
	}
}

func TestQueueTextNormalizesAndStaggers(t *testing.T) {
	messages := &fakeMessages{}
	q := NewQueue(messages, Config{Stagger: 10 * time.Second})
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	q.nowFunc = func() time.Time { return base }

	sess := connectedSession()
	for n := 0; n < 3; n++ {
		if _, err := q.QueueText(context.Background(), TextRequest{
			Session: sess,
			To:      "0612345678",
			Content: "reminder",
		}); err != nil {
			t.Fatalf("QueueText: %v", err)
		}
	}

	if len(messages.created) != 3 {
		t.Fatalf("created %d rows, want 3", len(messages.created))
	}
	prev := base.Add(-time.Second)
	for i, m := range messages.created {
		if m.Recipient != "212612345678" {
			t.Errorf("row %d recipient = %q, want 212612345678", i, m.Recipient)
		}
		if m.Status != models.MessageQueued {
			t.Errorf("row %d status = %q, want queued", i, m.Status)
		}
		if want := base.Add(time.Duration(i) * 10 * time.Second); !m.ScheduledAt.Equal(want) {
			t.Errorf("row %d scheduled at %v, want %v", i, m.ScheduledAt, want)
		}
		if !m.ScheduledAt.After(prev) {
			t.Errorf("row %d not scheduled strictly after row %d", i, i-1)
		}
		prev = m.ScheduledAt
	}
}

func TestDeliverMarksSent(t *testing.T) {
	messages := &fakeMessages{}
	sess := connectedSession()
	sender := &fakeSender{result: ackResult("WAMID.123")}
	d := NewDispatcher(messages, &fakeSessions{sess: sess}, sender, nil, nil, Config{})

	message := &models.MessageHistory{
		SessionID: sess.ID,
		Recipient: "212612345678",
		Type:      models.MessageTypeText,
		Content:   "hifz session at 5pm",
		Status:    models.MessageQueued,
	}
	message.ID = uuid.New()

	if err := d.Deliver(context.Background(), message); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if sender.textCalls != 1 {
		t.Errorf("SendText called %d times, want 1", sender.textCalls)
	}
	if sender.lastNumber != "212612345678" {
		t.Errorf("sent to %q", sender.lastNumber)
	}
	if messages.sentID != message.ID {
		t.Errorf("MarkSent on %v, want %v", messages.sentID, message.ID)
	}
	if messages.sentExternal != "WAMID.123" {
		t.Errorf("external id = %q, want WAMID.123", messages.sentExternal)
	}
	if messages.failedID != uuid.Nil {
		t.Errorf("unexpected MarkFailed call")
	}
}

func TestDeliverFailsWhenSessionNotConnected(t *testing.T) {
	messages := &fakeMessages{}
	sess := connectedSession()
	sess.Status = models.SessionDisconnected
	sender := &fakeSender{}
	d := NewDispatcher(messages, &fakeSessions{sess: sess}, sender, nil, nil, Config{})

	message := &models.MessageHistory{SessionID: sess.ID, Status: models.MessageQueued}
	message.ID = uuid.New()

	err := d.Deliver(context.Background(), message)
	if !errors.Is(err, ErrSessionNotConnected) {
		t.Fatalf("err = %v, want ErrSessionNotConnected", err)
	}
	if sender.textCalls != 0 {
		t.Errorf("send attempted on a disconnected session")
	}
	if messages.failedID != message.ID {
		t.Errorf("message not marked failed")
	}
	if messages.failedTries != 1 {
		t.Errorf("attempts = %d, want 1", messages.failedTries)
	}
}

func TestDeliverRecordsSendError(t *testing.T) {
	messages := &fakeMessages{}
	sess := connectedSession()
	sender := &fakeSender{err: errors.New("gateway returned 500")}
	d := NewDispatcher(messages, &fakeSessions{sess: sess}, sender, nil, nil, Config{})

	message := &models.MessageHistory{SessionID: sess.ID, Status: models.MessageQueued}
	message.ID = uuid.New()

	if err := d.Deliver(context.Background(), message); err == nil {
		t.Fatal("expected delivery error")
	}
	if messages.failedID != message.ID {
		t.Fatalf("message not marked failed")
	}
	if !strings.Contains(messages.failedErr, "gateway returned 500") {
		t.Errorf("recorded error = %q, want the gateway cause", messages.failedErr)
	}
	if messages.sentID != uuid.Nil {
		t.Errorf("failed message was also marked sent")
	}
	if messages.requeued != uuid.Nil {
		t.Errorf("single-attempt config should not auto requeue")
	}
}

func TestDeliverAutoRequeuesUnderMaxAttempts(t *testing.T) {
	messages := &fakeMessages{}
	sess := connectedSession()
	sender := &fakeSender{err: errors.New("timeout")}
	d := NewDispatcher(messages, &fakeSessions{sess: sess}, sender, nil, nil, Config{MaxAttempts: 3})

	message := &models.MessageHistory{SessionID: sess.ID, Status: models.MessageQueued}
	message.ID = uuid.New()

	if err := d.Deliver(context.Background(), message); err == nil {
		t.Fatal("expected delivery error")
	}
	if messages.requeued != message.ID {
		t.Errorf("message with attempts left was not requeued")
	}
}

func TestDeliverThrottledReschedulesWithoutStatusChange(t *testing.T) {
	messages := &fakeMessages{}
	sess := connectedSession()
	sender := &fakeSender{result: ackResult("x")}
	limiter := &fakeLimiter{allowed: false, window: time.Minute}
	d := NewDispatcher(messages, &fakeSessions{sess: sess}, sender, limiter, nil, Config{})

	message := &models.MessageHistory{SessionID: sess.ID, Status: models.MessageQueued}
	message.ID = uuid.New()

	before := time.Now()
	if err := d.Deliver(context.Background(), message); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if sender.textCalls != 0 {
		t.Errorf("throttled message was sent anyway")
	}
	if messages.rescheduled != message.ID {
		t.Fatalf("throttled message was not rescheduled")
	}
	if messages.rescheduleAt.Before(before.Add(limiter.window)) {
		t.Errorf("rescheduled at %v, want at least one window out", messages.rescheduleAt)
	}
	if messages.failedID != uuid.Nil || messages.sentID != uuid.Nil {
		t.Errorf("throttle changed the message status")
	}
}

func TestDeliverFailsOpenOnLimiterError(t *testing.T) {
	messages := &fakeMessages{}
	sess := connectedSession()
	sender := &fakeSender{result: ackResult("x")}
	limiter := &fakeLimiter{err: errors.New("redis down"), window: time.Minute}
	d := NewDispatcher(messages, &fakeSessions{sess: sess}, sender, limiter, nil, Config{})

	message := &models.MessageHistory{SessionID: sess.ID, Status: models.MessageQueued}
	message.ID = uuid.New()

	if err := d.Deliver(context.Background(), message); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if sender.textCalls != 1 {
		t.Errorf("limiter outage blocked the send")
	}
}

func TestRetryAndCancelDelegate(t *testing.T) {
	messages := &fakeMessages{}
	q := NewQueue(messages, Config{})

	id := uuid.New()
	if err := q.Retry(id); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if messages.requeued != id {
		t.Errorf("Retry did not requeue %v", id)
	}

	other := uuid.New()
	if err := q.Cancel(other); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if messages.cancelled != other {
		t.Errorf("Cancel did not cancel %v", other)
	}
}
