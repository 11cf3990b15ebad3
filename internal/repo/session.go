package repo

import (
	"time"

	"tahfidh/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionRepository handles WhatsApp session data access
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// GetByID gets a session by ID
func (r *SessionRepository) GetByID(id uuid.UUID) (*models.Session, error) {
	var session models.Session
	err := r.db.Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetByName gets a session by its gateway instance name
func (r *SessionRepository) GetByName(name string) (*models.Session, error) {
	var session models.Session
	err := r.db.Where("name = ?", name).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Create creates a new session
func (r *SessionRepository) Create(session *models.Session) error {
	return r.db.Create(session).Error
}

// Update updates a session
func (r *SessionRepository) Update(session *models.Session) error {
	return r.db.Save(session).Error
}

// Delete deletes a session (soft delete)
func (r *SessionRepository) Delete(id uuid.UUID) error {
	result := r.db.Where("id = ?", id).Delete(&models.Session{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListByUser lists sessions owned by one user
func (r *SessionRepository) ListByUser(userID uuid.UUID) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&sessions).Error
	return sessions, err
}

// HasActiveForUser reports whether the user already has a session in an
// active status, excluding the given session ID.
func (r *SessionRepository) HasActiveForUser(userID, excludeID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&models.Session{}).
		Where("user_id = ? AND id != ? AND status != ?", userID, excludeID, models.SessionDisconnected).
		Count(&count).Error
	return count > 0, err
}

// ListPolling lists sessions sitting in a pairing state, for the
// background status poller.
func (r *SessionRepository) ListPolling() ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.Where("status IN ?", []models.SessionStatus{
		models.SessionCreating,
		models.SessionConnecting,
		models.SessionPending,
		models.SessionGeneratingQR,
	}).Find(&sessions).Error
	return sessions, err
}

// ListConnected lists sessions believed to be connected, for health checks.
func (r *SessionRepository) ListConnected() ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.Where("status = ?", models.SessionConnected).Find(&sessions).Error
	return sessions, err
}

// TouchActivity stamps the session's last activity time.
func (r *SessionRepository) TouchActivity(id uuid.UUID) error {
	now := time.Now()
	return r.db.Model(&models.Session{}).Where("id = ?", id).
		Update("last_activity_at", &now).Error
}
