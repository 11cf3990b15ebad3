package handlers

import (
	"errors"
	"net/http"

	"tahfidh/internal/repo"
	"tahfidh/pkg/models"
	"tahfidh/pkg/phone"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// StudentHandler handles student and class-group management
type StudentHandler struct {
	studentRepo *repo.StudentRepository
	groupRepo   *repo.GroupRepository
}

// NewStudentHandler creates a new student handler
func NewStudentHandler(studentRepo *repo.StudentRepository, groupRepo *repo.GroupRepository) *StudentHandler {
	return &StudentHandler{studentRepo: studentRepo, groupRepo: groupRepo}
}

type studentRequest struct {
	Name    string     `json:"name" validate:"required"`
	Phone   string     `json:"phone" validate:"required"`
	GroupID *uuid.UUID `json:"group_id"`
}

// List returns students, paginated
func (h *StudentHandler) List(c echo.Context) error {
	limit, offset := paginationParams(c)
	result, err := h.studentRepo.List(limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list students"})
	}
	return c.JSON(http.StatusOK, result)
}

// Create registers a student. The phone is stored in canonical form so
// sends and attendance matching never re-normalize.
func (h *StudentHandler) Create(c echo.Context) error {
	var req studentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	canonical := phone.Clean(req.Phone)
	if canonical == "" {
		canonical = phone.CleanInternational(req.Phone)
	}
	if canonical == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid phone number"})
	}

	student := &models.Student{
		Name:     req.Name,
		Phone:    canonical,
		GroupID:  req.GroupID,
		IsActive: true,
	}
	if err := h.studentRepo.Create(student); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create student"})
	}

	return c.JSON(http.StatusCreated, student)
}

// Update modifies a student
func (h *StudentHandler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid student id"})
	}

	student, err := h.studentRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Student not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load student"})
	}

	var req struct {
		Name     *string    `json:"name"`
		Phone    *string    `json:"phone"`
		GroupID  *uuid.UUID `json:"group_id"`
		IsActive *bool      `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if req.Name != nil {
		student.Name = *req.Name
	}
	if req.Phone != nil {
		canonical := phone.Clean(*req.Phone)
		if canonical == "" {
			canonical = phone.CleanInternational(*req.Phone)
		}
		if canonical == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid phone number"})
		}
		student.Phone = canonical
	}
	if req.GroupID != nil {
		student.GroupID = req.GroupID
	}
	if req.IsActive != nil {
		student.IsActive = *req.IsActive
	}

	if err := h.studentRepo.Update(student); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update student"})
	}
	return c.JSON(http.StatusOK, student)
}

// Delete removes a student
func (h *StudentHandler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid student id"})
	}
	if err := h.studentRepo.Delete(id); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete student"})
	}
	return c.NoContent(http.StatusNoContent)
}

type groupRequest struct {
	Name        string `json:"name" validate:"required"`
	WhatsAppJID string `json:"whatsapp_jid"`
	TeacherName string `json:"teacher_name"`
}

// ListGroups returns all class groups
func (h *StudentHandler) ListGroups(c echo.Context) error {
	groups, err := h.groupRepo.List()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list groups"})
	}
	return c.JSON(http.StatusOK, groups)
}

// CreateGroup registers a class group
func (h *StudentHandler) CreateGroup(c echo.Context) error {
	var req groupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	group := &models.Group{
		Name:        req.Name,
		WhatsAppJID: req.WhatsAppJID,
		TeacherName: req.TeacherName,
		IsActive:    true,
	}
	if err := h.groupRepo.Create(group); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create group"})
	}
	return c.JSON(http.StatusCreated, group)
}

// UpdateGroup modifies a class group
func (h *StudentHandler) UpdateGroup(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid group id"})
	}

	group, err := h.groupRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Group not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load group"})
	}

	var req struct {
		Name        *string `json:"name"`
		WhatsAppJID *string `json:"whatsapp_jid"`
		TeacherName *string `json:"teacher_name"`
		IsActive    *bool   `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if req.Name != nil {
		group.Name = *req.Name
	}
	if req.WhatsAppJID != nil {
		group.WhatsAppJID = *req.WhatsAppJID
	}
	if req.TeacherName != nil {
		group.TeacherName = *req.TeacherName
	}
	if req.IsActive != nil {
		group.IsActive = *req.IsActive
	}

	if err := h.groupRepo.Update(group); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update group"})
	}
	return c.JSON(http.StatusOK, group)
}
