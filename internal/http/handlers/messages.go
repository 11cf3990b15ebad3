package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"tahfidh/internal/dispatch"
	"tahfidh/internal/repo"
	"tahfidh/internal/storage"
	"tahfidh/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// MessageHandler handles message queueing and history endpoints
type MessageHandler struct {
	queue       *dispatch.Queue
	messageRepo *repo.MessageHistoryRepository
	sessionRepo *repo.SessionRepository
	studentRepo *repo.StudentRepository
	storage     *storage.Service
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(queue *dispatch.Queue, messageRepo *repo.MessageHistoryRepository, sessionRepo *repo.SessionRepository, studentRepo *repo.StudentRepository, storageService *storage.Service) *MessageHandler {
	return &MessageHandler{
		queue:       queue,
		messageRepo: messageRepo,
		sessionRepo: sessionRepo,
		studentRepo: studentRepo,
		storage:     storageService,
	}
}

type sendTextRequest struct {
	SessionID uuid.UUID `json:"session_id" validate:"required"`
	To        string    `json:"to" validate:"required"`
	Content   string    `json:"content" validate:"required"`
}

// SendText queues a text message for delivery
func (h *MessageHandler) SendText(c echo.Context) error {
	var req sendTextRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	sess, httpErr := h.sessionForSend(c, req.SessionID)
	if httpErr != nil {
		return httpErr
	}

	message, err := h.queue.QueueText(c.Request().Context(), dispatch.TextRequest{
		Session:  sess,
		SenderID: c.Get("user_id").(uuid.UUID),
		To:       req.To,
		Content:  req.Content,
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidPhone) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid recipient phone number"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to queue message"})
	}

	return c.JSON(http.StatusAccepted, message)
}

type sendMediaRequest struct {
	SessionID uuid.UUID `json:"session_id" validate:"required"`
	To        string    `json:"to" validate:"required"`
	MediaURL  string    `json:"media_url" validate:"required,url"`
	MimeType  string    `json:"mime_type" validate:"required"`
	Caption   string    `json:"caption"`
}

// SendMedia queues a media message. The media must already be reachable
// by URL; use Upload first for local files.
func (h *MessageHandler) SendMedia(c echo.Context) error {
	var req sendMediaRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	sess, httpErr := h.sessionForSend(c, req.SessionID)
	if httpErr != nil {
		return httpErr
	}

	message, err := h.queue.QueueMedia(c.Request().Context(), dispatch.MediaRequest{
		Session:  sess,
		SenderID: c.Get("user_id").(uuid.UUID),
		To:       req.To,
		MediaURL: req.MediaURL,
		MimeType: req.MimeType,
		Caption:  req.Caption,
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidPhone) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid recipient phone number"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to queue message"})
	}

	return c.JSON(http.StatusAccepted, message)
}

type broadcastRequest struct {
	SessionID uuid.UUID `json:"session_id" validate:"required"`
	GroupID   uuid.UUID `json:"group_id" validate:"required"`
	Content   string    `json:"content" validate:"required"`
}

// Broadcast queues the same text to every active student of a class.
// The per-session stagger spaces the sends automatically.
func (h *MessageHandler) Broadcast(c echo.Context) error {
	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	sess, httpErr := h.sessionForSend(c, req.SessionID)
	if httpErr != nil {
		return httpErr
	}

	students, err := h.studentRepo.ListActiveByGroup(req.GroupID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list students"})
	}

	senderID := c.Get("user_id").(uuid.UUID)
	queued := make([]models.MessageHistory, 0, len(students))
	var skipped []string
	for _, student := range students {
		message, err := h.queue.QueueText(c.Request().Context(), dispatch.TextRequest{
			Session:  sess,
			SenderID: senderID,
			To:       student.Phone,
			Content:  req.Content,
		})
		if err != nil {
			skipped = append(skipped, student.Name)
			continue
		}
		queued = append(queued, *message)
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"queued":  queued,
		"skipped": skipped,
	})
}

// Upload stores a media file and returns its public URL for SendMedia
func (h *MessageHandler) Upload(c echo.Context) error {
	if h.storage == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Media storage is not configured"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing file"})
	}

	upload, err := h.storage.UploadMedia(fileHeader)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to store media"})
	}

	return c.JSON(http.StatusCreated, upload)
}

// Retry moves a failed message back into the queue
func (h *MessageHandler) Retry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid message id"})
	}

	if err := h.queue.Retry(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusConflict, map[string]string{"error": "Message is not in a failed state"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to retry message"})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "queued"})
}

// Cancel marks a queued message cancelled before it is sent
func (h *MessageHandler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid message id"})
	}

	if err := h.queue.Cancel(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusConflict, map[string]string{"error": "Message is not in a cancellable state"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to cancel message"})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

// History returns a session's message history, newest first
func (h *MessageHandler) History(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid session id"})
	}

	limit, offset := paginationParams(c)
	result, err := h.messageRepo.ListBySession(sessionID, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load history"})
	}

	return c.JSON(http.StatusOK, result)
}

func (h *MessageHandler) sessionForSend(c echo.Context, sessionID uuid.UUID) (*models.Session, error) {
	sess, err := h.sessionRepo.GetByID(sessionID)
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
	if sess.Status != models.SessionConnected {
		return nil, echo.NewHTTPError(http.StatusConflict, "Session is not connected")
	}
	return sess, nil
}

func paginationParams(c echo.Context) (limit, offset int) {
	limit = 20
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
