package repo

import (
	"time"

	"tahfidh/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StudentRepository handles student data access
type StudentRepository struct {
	db *gorm.DB
}

// NewStudentRepository creates a new student repository
func NewStudentRepository(db *gorm.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// GetByID gets a student by ID
func (r *StudentRepository) GetByID(id uuid.UUID) (*models.Student, error) {
	var student models.Student
	err := r.db.Where("id = ?", id).First(&student).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

// Create creates a new student
func (r *StudentRepository) Create(student *models.Student) error {
	return r.db.Create(student).Error
}

// Update updates a student
func (r *StudentRepository) Update(student *models.Student) error {
	return r.db.Save(student).Error
}

// Delete deletes a student (soft delete)
func (r *StudentRepository) Delete(id uuid.UUID) error {
	result := r.db.Where("id = ?", id).Delete(&models.Student{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List lists students with pagination
func (r *StudentRepository) List(limit, offset int) (models.PaginationResult[models.Student], error) {
	var students []models.Student
	var total int64

	if err := r.db.Model(&models.Student{}).Count(&total).Error; err != nil {
		return models.PaginationResult[models.Student]{}, err
	}

	err := r.db.Preload("Group").Order("name ASC").
		Limit(limit).Offset(offset).
		Find(&students).Error
	if err != nil {
		return models.PaginationResult[models.Student]{}, err
	}

	page := 1
	totalPages := 1
	if limit > 0 {
		page = (offset / limit) + 1
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	return models.PaginationResult[models.Student]{
		Data:       students,
		Total:      total,
		Page:       page,
		PerPage:    limit,
		TotalPages: totalPages,
	}, nil
}

// ListActiveByGroup lists active students in a group
func (r *StudentRepository) ListActiveByGroup(groupID uuid.UUID) ([]models.Student, error) {
	var students []models.Student
	err := r.db.Where("group_id = ? AND is_active = ?", groupID, true).Find(&students).Error
	return students, err
}

// GroupRepository handles memorization group data access
type GroupRepository struct {
	db *gorm.DB
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// GetByID gets a group by ID
func (r *GroupRepository) GetByID(id uuid.UUID) (*models.Group, error) {
	var group models.Group
	err := r.db.Where("id = ?", id).First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// Create creates a new group
func (r *GroupRepository) Create(group *models.Group) error {
	return r.db.Create(group).Error
}

// Update updates a group
func (r *GroupRepository) Update(group *models.Group) error {
	return r.db.Save(group).Error
}

// List lists all groups
func (r *GroupRepository) List() ([]models.Group, error) {
	var groups []models.Group
	err := r.db.Order("name ASC").Find(&groups).Error
	return groups, err
}

// AttendanceRepository handles attendance data access
type AttendanceRepository struct {
	db *gorm.DB
}

// NewAttendanceRepository creates a new attendance repository
func NewAttendanceRepository(db *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert records attendance, ignoring duplicates for the same student and
// date.
func (r *AttendanceRepository) Upsert(attendance *models.Attendance) error {
	var existing models.Attendance
	err := r.db.Where("student_id = ? AND date = ?", attendance.StudentID, attendance.Date).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return r.db.Create(attendance).Error
}

// ListByGroupAndDate lists attendance for a group on one date
func (r *AttendanceRepository) ListByGroupAndDate(groupID uuid.UUID, date time.Time) ([]models.Attendance, error) {
	var records []models.Attendance
	err := r.db.Preload("Student").
		Where("group_id = ? AND date = ?", groupID, date).
		Find(&records).Error
	return records, err
}
