package repo

import (
	"time"

	"tahfidh/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageHistoryRepository handles outbound message history data access.
// The history rows double as the dispatch queue, so this repository also
// exposes the claim/reschedule operations the dispatcher needs.
type MessageHistoryRepository struct {
	db *gorm.DB
}

// NewMessageHistoryRepository creates a new message history repository
func NewMessageHistoryRepository(db *gorm.DB) *MessageHistoryRepository {
	return &MessageHistoryRepository{db: db}
}

// GetByID gets a message by ID
func (r *MessageHistoryRepository) GetByID(id uuid.UUID) (*models.MessageHistory, error) {
	var message models.MessageHistory
	err := r.db.Where("id = ?", id).First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// Create creates a new message record
func (r *MessageHistoryRepository) Create(message *models.MessageHistory) error {
	return r.db.Create(message).Error
}

// Update updates a message record
func (r *MessageHistoryRepository) Update(message *models.MessageHistory) error {
	return r.db.Save(message).Error
}

// CountPending counts queued messages for a session. Used to compute the
// staggered delay of the next enqueue.
func (r *MessageHistoryRepository) CountPending(sessionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Model(&models.MessageHistory{}).
		Where("session_id = ? AND status = ?", sessionID, models.MessageQueued).
		Count(&count).Error
	return count, err
}

// ListDue lists queued messages whose scheduled time has passed, oldest
// first.
func (r *MessageHistoryRepository) ListDue(now time.Time, limit int) ([]models.MessageHistory, error) {
	var messages []models.MessageHistory
	err := r.db.Where("status = ? AND scheduled_at <= ?", models.MessageQueued, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// Reschedule pushes a queued message's delivery time back without touching
// its status. Used when the rate limiter defers a send.
func (r *MessageHistoryRepository) Reschedule(id uuid.UUID, at time.Time) error {
	return r.db.Model(&models.MessageHistory{}).
		Where("id = ? AND status = ?", id, models.MessageQueued).
		Update("scheduled_at", at).Error
}

// MarkSent transitions a queued message to sent. The status guard makes
// the transition a no-op if another worker already finished the row.
func (r *MessageHistoryRepository) MarkSent(id uuid.UUID, externalID string, at time.Time) error {
	return r.db.Model(&models.MessageHistory{}).
		Where("id = ? AND status = ?", id, models.MessageQueued).
		Updates(map[string]interface{}{
			"status":      models.MessageSent,
			"external_id": &externalID,
			"sent_at":     &at,
			"last_error":  nil,
		}).Error
}

// MarkFailed transitions a queued message to failed, recording the error.
func (r *MessageHistoryRepository) MarkFailed(id uuid.UUID, errText string, attempts int) error {
	return r.db.Model(&models.MessageHistory{}).
		Where("id = ? AND status = ?", id, models.MessageQueued).
		Updates(map[string]interface{}{
			"status":     models.MessageFailed,
			"last_error": &errText,
			"attempts":   attempts,
		}).Error
}

// RequeueFailed moves a failed message back to queued for an explicit
// retry. Sent and cancelled rows are terminal and are not touched.
func (r *MessageHistoryRepository) RequeueFailed(id uuid.UUID, at time.Time) error {
	result := r.db.Model(&models.MessageHistory{}).
		Where("id = ? AND status = ?", id, models.MessageFailed).
		Updates(map[string]interface{}{
			"status":       models.MessageQueued,
			"scheduled_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Cancel marks a queued message cancelled before delivery.
func (r *MessageHistoryRepository) Cancel(id uuid.UUID) error {
	result := r.db.Model(&models.MessageHistory{}).
		Where("id = ? AND status = ?", id, models.MessageQueued).
		Update("status", models.MessageCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListBySession lists a session's message history with pagination
func (r *MessageHistoryRepository) ListBySession(sessionID uuid.UUID, limit, offset int) (models.PaginationResult[models.MessageHistory], error) {
	var messages []models.MessageHistory
	var total int64

	if err := r.db.Model(&models.MessageHistory{}).Where("session_id = ?", sessionID).Count(&total).Error; err != nil {
		return models.PaginationResult[models.MessageHistory]{}, err
	}

	err := r.db.Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&messages).Error
	if err != nil {
		return models.PaginationResult[models.MessageHistory]{}, err
	}

	page := 1
	totalPages := 1
	if limit > 0 {
		page = (offset / limit) + 1
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	return models.PaginationResult[models.MessageHistory]{
		Data:       messages,
		Total:      total,
		Page:       page,
		PerPage:    limit,
		TotalPages: totalPages,
	}, nil
}
