// Package session manages the lifecycle of a paired WhatsApp account:
// creation, QR pairing against the gateway, connection tracking and
// logout. Local state mirrors gateway truth and is re-derivable from it
// at any time, so concurrent updates are resolved last-write-wins.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tahfidh/internal/gateway"
	"tahfidh/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrSessionActive is returned when starting a session while the user
// already has an active one.
var ErrSessionActive = errors.New("session: user already has an active session")

// ErrNotStartable is returned when starting a session that is not in the
// disconnected state.
var ErrNotStartable = errors.New("session: session is not in a startable state")

// Gateway is the subset of the gateway client the session service needs.
type Gateway interface {
	FetchInstances(ctx context.Context, instance string) ([]gateway.FetchedInstance, error)
	CreateInstance(ctx context.Context, instance string) (*gateway.CreateInstanceResponse, error)
	ConnectInstance(ctx context.Context, instance string) (*gateway.QRCode, error)
	ConnectionState(ctx context.Context, instance string) (*gateway.ConnectionStateResponse, error)
	LogoutInstance(ctx context.Context, instance string) error
	DeleteInstance(ctx context.Context, instance string) error
}

// Store is the session persistence the service needs.
type Store interface {
	Update(session *models.Session) error
	HasActiveForUser(userID, excludeID uuid.UUID) (bool, error)
}

// Service drives session state transitions.
type Service struct {
	gw    Gateway
	store Store
}

// NewService creates a new session service
func NewService(gw Gateway, store Store) *Service {
	return &Service{gw: gw, store: store}
}

// StartSession begins pairing: adopt the gateway instance if it is already
// connected, otherwise connect (creating the instance first when the
// gateway does not know it) and store the fresh QR code. On gateway
// failure the session is reverted to disconnected and the error returned.
func (s *Service) StartSession(ctx context.Context, sess *models.Session) error {
	if !sess.Status.CanStart() {
		return ErrNotStartable
	}

	active, err := s.store.HasActiveForUser(sess.UserID, sess.ID)
	if err != nil {
		return fmt.Errorf("session: active check failed: %w", err)
	}
	if active {
		return ErrSessionActive
	}

	if err := s.start(ctx, sess); err != nil {
		s.MarkDisconnected(sess)
		return err
	}
	return nil
}

func (s *Service) start(ctx context.Context, sess *models.Session) error {
	// A failed instance lookup is treated as "instance does not exist
	// yet": the create path below covers both cases.
	existing := ""
	if instances, err := s.gw.FetchInstances(ctx, sess.Name); err == nil {
		for _, inst := range instances {
			if inst.Instance.InstanceName == sess.Name {
				existing = inst.Instance.ConnectionStatus
				break
			}
		}
	} else {
		log.Warn().Err(err).Str("instance", sess.Name).Msg("instance lookup failed, assuming it does not exist")
	}

	if models.StatusFromAPI(existing) == models.SessionConnected {
		s.MarkConnected(sess, map[string]string{"state": existing})
		return nil
	}

	if existing == "" {
		created, err := s.gw.CreateInstance(ctx, sess.Name)
		if err != nil {
			return err
		}
		log.Info().Str("instance", sess.Name).Str("state", created.Instance.State).Msg("gateway instance created")
	}

	qr, err := s.gw.ConnectInstance(ctx, sess.Name)
	if err != nil {
		return err
	}

	now := time.Now()
	sess.QRCode = nil
	if qr != nil {
		sess.QRCode = CleanQRPayload(qr.Base64)
	}
	if sess.QRCode != nil {
		sess.Status = models.SessionPending
	} else {
		sess.Status = models.SessionCreating
	}
	sess.LastAPIResponse = marshalRaw(qr)
	sess.LastActivityAt = &now

	return s.store.Update(sess)
}

// PollStatus fetches the gateway state and reconciles the local session.
// A connected gateway state finalizes the session; otherwise the status
// and activity stamp are updated, and the QR code only when the gateway
// returned a payload different from the stored one.
func (s *Service) PollStatus(ctx context.Context, sess *models.Session) error {
	state, err := s.gw.ConnectionState(ctx, sess.Name)
	if err != nil {
		return err
	}

	status := models.StatusFromAPI(state.Instance.State)
	if status == models.SessionConnected {
		return s.MarkConnected(sess, state)
	}

	if status == models.SessionDisconnected && state.Instance.State != "" {
		log.Warn().Str("instance", sess.Name).Str("state", state.Instance.State).Msg("gateway state mapped to disconnected")
	}

	now := time.Now()
	sess.Status = status
	sess.LastAPIResponse = marshalRaw(state)
	sess.LastActivityAt = &now

	if state.QRCode != nil {
		if fresh := CleanQRPayload(state.QRCode.Base64); fresh != nil {
			if sess.QRCode == nil || *sess.QRCode != *fresh {
				sess.QRCode = fresh
			}
		}
	}

	return s.store.Update(sess)
}

// MarkConnected finalizes a session: connected status, QR cleared, raw
// gateway result stored, activity stamped.
func (s *Service) MarkConnected(sess *models.Session, apiResult interface{}) error {
	now := time.Now()
	sess.Status = models.SessionConnected
	sess.QRCode = nil
	sess.LastAPIResponse = marshalRaw(apiResult)
	sess.LastActivityAt = &now
	return s.store.Update(sess)
}

// MarkDisconnected resets a session to the terminal disconnected state.
func (s *Service) MarkDisconnected(sess *models.Session) error {
	sess.Status = models.SessionDisconnected
	sess.QRCode = nil
	sess.LastAPIResponse = nil
	return s.store.Update(sess)
}

// Logout disconnects locally first so the UI reflects the user's intent,
// then makes two independent best-effort gateway calls (logout, delete).
// Gateway failures are logged, never propagated: local state is
// authoritative here.
func (s *Service) Logout(ctx context.Context, sess *models.Session) error {
	if err := s.MarkDisconnected(sess); err != nil {
		return err
	}

	if err := s.gw.LogoutInstance(ctx, sess.Name); err != nil {
		log.Warn().Err(err).Str("instance", sess.Name).Msg("gateway logout failed")
	}
	if err := s.gw.DeleteInstance(ctx, sess.Name); err != nil {
		log.Warn().Err(err).Str("instance", sess.Name).Msg("gateway instance delete failed")
	}
	return nil
}

func marshalRaw(v interface{}) *string {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}
