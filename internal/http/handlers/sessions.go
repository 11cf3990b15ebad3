package handlers

import (
	"errors"
	"net/http"

	"tahfidh/internal/gateway"
	"tahfidh/internal/repo"
	"tahfidh/internal/session"
	"tahfidh/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// SessionHandler handles WhatsApp session endpoints
type SessionHandler struct {
	sessionService *session.Service
	sessionRepo    *repo.SessionRepository
	gw             *gateway.Client
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService *session.Service, sessionRepo *repo.SessionRepository, gw *gateway.Client) *SessionHandler {
	return &SessionHandler{sessionService: sessionService, sessionRepo: sessionRepo, gw: gw}
}

// List returns the authenticated user's sessions
func (h *SessionHandler) List(c echo.Context) error {
	userID := c.Get("user_id").(uuid.UUID)

	sessions, err := h.sessionRepo.ListByUser(userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list sessions"})
	}

	return c.JSON(http.StatusOK, sessions)
}

// Create registers a new, disconnected session
func (h *SessionHandler) Create(c echo.Context) error {
	var req struct {
		Name string `json:"name" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	sess := &models.Session{
		UserID: c.Get("user_id").(uuid.UUID),
		Name:   req.Name,
		Status: models.SessionDisconnected,
	}
	if err := h.sessionRepo.Create(sess); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Session name already in use"})
	}

	return c.JSON(http.StatusCreated, sess)
}

// Get returns one session, polling the gateway first when the session is
// in a pairing state so the response carries a fresh status and QR.
func (h *SessionHandler) Get(c echo.Context) error {
	sess, err := h.ownedSession(c)
	if err != nil {
		return err
	}

	if sess.Status.ShouldPoll() {
		if err := h.sessionService.PollStatus(c.Request().Context(), sess); err != nil {
			// Stale data beats a failed read.
			log.Warn().Err(err).Str("session", sess.Name).Msg("Status poll failed")
		}
	}

	return c.JSON(http.StatusOK, sess)
}

// Start begins pairing the session with the gateway
func (h *SessionHandler) Start(c echo.Context) error {
	sess, err := h.ownedSession(c)
	if err != nil {
		return err
	}

	if err := h.sessionService.StartSession(c.Request().Context(), sess); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionActive):
			return c.JSON(http.StatusConflict, map[string]string{"error": "Another session is already active"})
		case errors.Is(err, session.ErrNotStartable):
			return c.JSON(http.StatusConflict, map[string]string{"error": "Session is not in a startable state"})
		default:
			return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
		}
	}

	return c.JSON(http.StatusOK, sess)
}

// QR returns the session's pairing QR code
func (h *SessionHandler) QR(c echo.Context) error {
	sess, err := h.ownedSession(c)
	if err != nil {
		return err
	}

	if !sess.Status.CanShowQR() || sess.QRCode == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No QR code available"})
	}

	return c.JSON(http.StatusOK, map[string]string{"qr_code": *sess.QRCode})
}

// Logout disconnects the session, best-effort on the gateway side
func (h *SessionHandler) Logout(c echo.Context) error {
	sess, err := h.ownedSession(c)
	if err != nil {
		return err
	}

	if err := h.sessionService.Logout(c.Request().Context(), sess); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to log out session"})
	}

	return c.JSON(http.StatusOK, sess)
}

// Delete logs the session out and removes it
func (h *SessionHandler) Delete(c echo.Context) error {
	sess, err := h.ownedSession(c)
	if err != nil {
		return err
	}

	if sess.Status.IsActive() {
		if err := h.sessionService.Logout(c.Request().Context(), sess); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to log out session"})
		}
	}
	if err := h.sessionRepo.Delete(sess.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete session"})
	}

	return c.NoContent(http.StatusNoContent)
}

// Groups lists the WhatsApp groups the session participates in, for
// linking a class to its group chat.
func (h *SessionHandler) Groups(c echo.Context) error {
	sess, err := h.ownedSession(c)
	if err != nil {
		return err
	}
	if sess.Status != models.SessionConnected {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Session is not connected"})
	}

	groups, err := h.gw.FetchGroups(c.Request().Context(), sess.Name)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to fetch groups from gateway"})
	}

	return c.JSON(http.StatusOK, groups)
}

func (h *SessionHandler) ownedSession(c echo.Context) (*models.Session, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid session id")
	}

	sess, err := h.sessionRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "Session not found")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "Failed to load session")
	}

	userID := c.Get("user_id").(uuid.UUID)
	role, _ := c.Get("user_role").(string)
	if sess.UserID != userID && role != "admin" {
		return nil, echo.NewHTTPError(http.StatusForbidden, "Session belongs to another user")
	}
	return sess, nil
}
