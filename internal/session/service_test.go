package session

import (
	"context"
	"errors"
	"testing"

	"tahfidh/internal/gateway"
	"tahfidh/pkg/models"

	"github.com/google/uuid"
)

type fakeGateway struct {
	instances     []gateway.FetchedInstance
	fetchErr      error
	createCalls   int
	connectCalls  int
	connectQR     *gateway.QRCode
	connectErr    error
	state         string
	stateQR       *gateway.QRCode
	stateErr      error
	logoutErr     error
	deleteErr     error
	logoutCalled  bool
	deleteCalled  bool
}

func (f *fakeGateway) FetchInstances(ctx context.Context, instance string) ([]gateway.FetchedInstance, error) {
	return f.instances, f.fetchErr
}

func (f *fakeGateway) CreateInstance(ctx context.Context, instance string) (*gateway.CreateInstanceResponse, error) {
	f.createCalls++
	return &gateway.CreateInstanceResponse{}, nil
}

func (f *fakeGateway) ConnectInstance(ctx context.Context, instance string) (*gateway.QRCode, error) {
	f.connectCalls++
	return f.connectQR, f.connectErr
}

func (f *fakeGateway) ConnectionState(ctx context.Context, instance string) (*gateway.ConnectionStateResponse, error) {
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	resp := &gateway.ConnectionStateResponse{QRCode: f.stateQR}
	resp.Instance.InstanceName = instance
	resp.Instance.State = f.state
	return resp, nil
}

func (f *fakeGateway) LogoutInstance(ctx context.Context, instance string) error {
	f.logoutCalled = true
	return f.logoutErr
}

func (f *fakeGateway) DeleteInstance(ctx context.Context, instance string) error {
	f.deleteCalled = true
	return f.deleteErr
}

type fakeStore struct {
	updates   int
	hasActive bool
}

func (f *fakeStore) Update(sess *models.Session) error {
	f.updates++
	return nil
}

func (f *fakeStore) HasActiveForUser(userID, excludeID uuid.UUID) (bool, error) {
	return f.hasActive, nil
}

func newTestSession() *models.Session {
	return &models.Session{
		BaseModel: models.BaseModel{ID: uuid.New()},
		UserID:    uuid.New(),
		Name:      "school-main",
		Status:    models.SessionDisconnected,
	}
}

func TestStatusPredicates(t *testing.T) {
	pollStates := []models.SessionStatus{
		models.SessionCreating,
		models.SessionConnecting,
		models.SessionPending,
		models.SessionGeneratingQR,
	}
	for _, s := range pollStates {
		if !s.ShouldPoll() {
			t.Errorf("%s.ShouldPoll() = false, expected true", s)
		}
		if !s.IsActive() {
			t.Errorf("%s.IsActive() = false, expected true", s)
		}
		if s.CanStart() {
			t.Errorf("%s.CanStart() = true, expected false", s)
		}
	}

	for _, s := range []models.SessionStatus{models.SessionDisconnected, models.SessionConnected} {
		if s.ShouldPoll() {
			t.Errorf("%s.ShouldPoll() = true, expected false", s)
		}
	}

	if !models.SessionDisconnected.CanStart() {
		t.Error("disconnected session should be startable")
	}
	if models.SessionConnected.CanStart() {
		t.Error("connected session should not be startable")
	}
	if models.SessionDisconnected.IsActive() {
		t.Error("disconnected session should not be active")
	}
}

func TestStatusFromAPI(t *testing.T) {
	tests := []struct {
		state    string
		expected models.SessionStatus
	}{
		{"open", models.SessionConnected},
		{"CONNECTED", models.SessionConnected},
		{"connecting", models.SessionConnecting},
		{"pending", models.SessionPending},
		{"close", models.SessionDisconnected},
		{"", models.SessionDisconnected},
		{"some-new-state", models.SessionDisconnected},
	}

	for _, test := range tests {
		if got := models.StatusFromAPI(test.state); got != test.expected {
			t.Errorf("StatusFromAPI(%q) = %s, expected %s", test.state, got, test.expected)
		}
	}
}

func TestCleanQRPayload(t *testing.T) {
	if got := CleanQRPayload(""); got != nil {
		t.Errorf("empty payload should be discarded, got %q", *got)
	}

	uri := "data:image/png;base64,aGVsbG8="
	if got := CleanQRPayload(uri); got == nil || *got != uri {
		t.Errorf("data URI should pass through unchanged")
	}

	if got := CleanQRPayload("aGVsbG8="); got == nil || *got != "data:image/png;base64,aGVsbG8=" {
		t.Error("bare base64 should be wrapped in a data URI")
	}

	if got := CleanQRPayload("not base64 !!"); got != nil {
		t.Errorf("invalid payload should be discarded, got %q", *got)
	}
}

func TestStartSessionCreatesUnknownInstance(t *testing.T) {
	gw := &fakeGateway{
		fetchErr:  errors.New("boom"),
		connectQR: &gateway.QRCode{Base64: "aGVsbG8="},
	}
	store := &fakeStore{}
	svc := NewService(gw, store)
	sess := newTestSession()

	if err := svc.StartSession(context.Background(), sess); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if gw.createCalls != 1 {
		t.Errorf("create calls = %d, expected 1", gw.createCalls)
	}
	if gw.connectCalls != 1 {
		t.Errorf("connect calls = %d, expected 1", gw.connectCalls)
	}
	if sess.Status != models.SessionPending && sess.Status != models.SessionCreating {
		t.Errorf("status = %s, expected pending or creating", sess.Status)
	}
	if sess.QRCode == nil {
		t.Error("expected QR code to be populated")
	}
	if store.updates == 0 {
		t.Error("expected session to be persisted")
	}
}

func TestStartSessionAdoptsConnectedInstance(t *testing.T) {
	gw := &fakeGateway{}
	inst := gateway.FetchedInstance{}
	inst.Instance.InstanceName = "school-main"
	inst.Instance.ConnectionStatus = "open"
	gw.instances = []gateway.FetchedInstance{inst}

	store := &fakeStore{}
	svc := NewService(gw, store)
	sess := newTestSession()

	if err := svc.StartSession(context.Background(), sess); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if sess.Status != models.SessionConnected {
		t.Errorf("status = %s, expected connected", sess.Status)
	}
	if gw.createCalls != 0 || gw.connectCalls != 0 {
		t.Error("adopting a connected instance must not create or connect")
	}
}

func TestStartSessionRevertsOnConnectFailure(t *testing.T) {
	gw := &fakeGateway{connectErr: errors.New("gateway down")}
	store := &fakeStore{}
	svc := NewService(gw, store)
	sess := newTestSession()

	if err := svc.StartSession(context.Background(), sess); err == nil {
		t.Fatal("expected error")
	}
	if sess.Status != models.SessionDisconnected {
		t.Errorf("status = %s, expected disconnected after failure", sess.Status)
	}
	if sess.QRCode != nil {
		t.Error("QR code should be cleared after failure")
	}
}

func TestStartSessionRejectsSecondActive(t *testing.T) {
	svc := NewService(&fakeGateway{}, &fakeStore{hasActive: true})
	sess := newTestSession()

	if err := svc.StartSession(context.Background(), sess); !errors.Is(err, ErrSessionActive) {
		t.Errorf("err = %v, expected ErrSessionActive", err)
	}
}

func TestStartSessionRejectsNonDisconnected(t *testing.T) {
	svc := NewService(&fakeGateway{}, &fakeStore{})
	sess := newTestSession()
	sess.Status = models.SessionConnected

	if err := svc.StartSession(context.Background(), sess); !errors.Is(err, ErrNotStartable) {
		t.Errorf("err = %v, expected ErrNotStartable", err)
	}
}

func TestPollStatusConnectedClearsQR(t *testing.T) {
	gw := &fakeGateway{state: "CONNECTED"}
	store := &fakeStore{}
	svc := NewService(gw, store)

	sess := newTestSession()
	sess.Status = models.SessionPending
	qr := "data:image/png;base64,aGVsbG8="
	sess.QRCode = &qr

	if err := svc.PollStatus(context.Background(), sess); err != nil {
		t.Fatalf("PollStatus: %v", err)
	}
	if sess.Status != models.SessionConnected {
		t.Errorf("status = %s, expected connected", sess.Status)
	}
	if sess.QRCode != nil {
		t.Error("QR code should be cleared once connected")
	}
}

func TestPollStatusKeepsQRWhenUnchanged(t *testing.T) {
	qr := "data:image/png;base64,aGVsbG8="
	gw := &fakeGateway{state: "connecting", stateQR: &gateway.QRCode{Base64: qr}}
	store := &fakeStore{}
	svc := NewService(gw, store)

	sess := newTestSession()
	sess.Status = models.SessionPending
	sess.QRCode = &qr

	if err := svc.PollStatus(context.Background(), sess); err != nil {
		t.Fatalf("PollStatus: %v", err)
	}
	if sess.Status != models.SessionConnecting {
		t.Errorf("status = %s, expected connecting", sess.Status)
	}
	if sess.QRCode == nil || *sess.QRCode != qr {
		t.Error("unchanged QR should stay in place")
	}
}

func TestMarkConnectedAlwaysClearsQR(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(&fakeGateway{}, store)

	for _, status := range []models.SessionStatus{
		models.SessionDisconnected,
		models.SessionPending,
		models.SessionGeneratingQR,
	} {
		sess := newTestSession()
		sess.Status = status
		qr := "data:image/png;base64,aGVsbG8="
		sess.QRCode = &qr

		if err := svc.MarkConnected(sess, map[string]string{"state": "open"}); err != nil {
			t.Fatalf("MarkConnected: %v", err)
		}
		if sess.Status != models.SessionConnected {
			t.Errorf("from %s: status = %s, expected connected", status, sess.Status)
		}
		if sess.QRCode != nil {
			t.Errorf("from %s: QR code should be nil", status)
		}
	}
}

func TestLogoutBestEffort(t *testing.T) {
	gw := &fakeGateway{
		logoutErr: errors.New("logout failed"),
		deleteErr: errors.New("delete failed"),
	}
	store := &fakeStore{}
	svc := NewService(gw, store)

	sess := newTestSession()
	sess.Status = models.SessionConnected

	if err := svc.Logout(context.Background(), sess); err != nil {
		t.Fatalf("Logout must not propagate gateway failures, got %v", err)
	}
	if sess.Status != models.SessionDisconnected {
		t.Errorf("status = %s, expected disconnected", sess.Status)
	}
	if !gw.logoutCalled || !gw.deleteCalled {
		t.Error("both gateway calls should be attempted despite failures")
	}
}
