package handlers

import (
	"errors"
	"net/http"
	"time"

	"tahfidh/internal/attendance"
	"tahfidh/internal/repo"
	"tahfidh/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// AttendanceHandler handles attendance extraction and records
type AttendanceHandler struct {
	attendanceService *attendance.Service
	attendanceRepo    *repo.AttendanceRepository
	groupRepo         *repo.GroupRepository
	sessionRepo       *repo.SessionRepository
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(attendanceService *attendance.Service, attendanceRepo *repo.AttendanceRepository, groupRepo *repo.GroupRepository, sessionRepo *repo.SessionRepository) *AttendanceHandler {
	return &AttendanceHandler{
		attendanceService: attendanceService,
		attendanceRepo:    attendanceRepo,
		groupRepo:         groupRepo,
		sessionRepo:       sessionRepo,
	}
}

// Report extracts the day's attendees from the group's WhatsApp history
// without persisting anything.
func (h *AttendanceHandler) Report(c echo.Context) error {
	sess, group, date, err := h.extractionParams(c)
	if err != nil {
		return err
	}

	report, reportErr := h.attendanceService.AttendeesForDate(c.Request().Context(), sess.Name, group.WhatsAppJID, date)
	if reportErr != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": reportErr.Error()})
	}

	return c.JSON(http.StatusOK, report)
}

// Mark extracts attendees and records a presence for every matched
// enrolled student.
func (h *AttendanceHandler) Mark(c echo.Context) error {
	sess, group, date, err := h.extractionParams(c)
	if err != nil {
		return err
	}

	present, markErr := h.attendanceService.MarkAttendance(c.Request().Context(), sess, group, date)
	if markErr != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": markErr.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"date":    date.Format("2006-01-02"),
		"present": present,
	})
}

// List returns recorded attendance for a group and date
func (h *AttendanceHandler) List(c echo.Context) error {
	groupID, err := uuid.Parse(c.QueryParam("group_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid group id"})
	}
	date, err := parseDate(c.QueryParam("date"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid date, want YYYY-MM-DD"})
	}

	records, err := h.attendanceRepo.ListByGroupAndDate(groupID, date)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list attendance"})
	}

	return c.JSON(http.StatusOK, records)
}

func (h *AttendanceHandler) extractionParams(c echo.Context) (*models.Session, *models.Group, time.Time, error) {
	zero := time.Time{}

	sessionID, err := uuid.Parse(c.QueryParam("session_id"))
	if err != nil {
		return nil, nil, zero, echo.NewHTTPError(http.StatusBadRequest, "Invalid session id")
	}
	groupID, err := uuid.Parse(c.QueryParam("group_id"))
	if err != nil {
		return nil, nil, zero, echo.NewHTTPError(http.StatusBadRequest, "Invalid group id")
	}
	date, err := parseDate(c.QueryParam("date"))
	if err != nil {
		return nil, nil, zero, echo.NewHTTPError(http.StatusBadRequest, "Invalid date, want YYYY-MM-DD")
	}

	sess, err := h.sessionRepo.GetByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, zero, echo.NewHTTPError(http.StatusNotFound, "Session not found")
		}
		return nil, nil, zero, echo.NewHTTPError(http.StatusInternalServerError, "Failed to load session")
	}
	if sess.Status != models.SessionConnected {
		return nil, nil, zero, echo.NewHTTPError(http.StatusConflict, "Session is not connected")
	}

	group, err := h.groupRepo.GetByID(groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, zero, echo.NewHTTPError(http.StatusNotFound, "Group not found")
		}
		return nil, nil, zero, echo.NewHTTPError(http.StatusInternalServerError, "Failed to load group")
	}
	if group.WhatsAppJID == "" {
		return nil, nil, zero, echo.NewHTTPError(http.StatusConflict, "Group has no WhatsApp group linked")
	}

	return sess, group, date, nil
}

// parseDate parses YYYY-MM-DD, defaulting to today when empty.
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	}
	return time.Parse("2006-01-02", raw)
}
