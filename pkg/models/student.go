package models

import (
	"time"

	"github.com/google/uuid"
)

// Student is a phone-number source for message sends and attendance
// matching. Phone is stored in the canonical 212… form.
type Student struct {
	BaseModel
	Name     string     `gorm:"not null" json:"name" validate:"required"`
	Phone    string     `gorm:"not null;index" json:"phone" validate:"required"`
	GroupID  *uuid.UUID `gorm:"type:uuid;index;constraint:OnDelete:SET NULL" json:"group_id"`
	IsActive bool       `gorm:"default:true" json:"is_active"`

	Group *Group `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}

// Group is a memorization class, optionally linked to a WhatsApp group
// whose message history can be mined for attendance.
type Group struct {
	BaseModel
	Name         string `gorm:"not null" json:"name" validate:"required"`
	WhatsAppJID  string `gorm:"column:whatsapp_jid" json:"whatsapp_jid"`
	TeacherName  string `json:"teacher_name"`
	IsActive     bool   `gorm:"default:true" json:"is_active"`
}

// Attendance is one inferred presence: the student posted a qualifying
// message in the group's WhatsApp chat on the given date.
type Attendance struct {
	BaseModel
	StudentID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_attendance_student_date;constraint:OnDelete:RESTRICT" json:"student_id"`
	GroupID   uuid.UUID `gorm:"type:uuid;not null;index;constraint:OnDelete:RESTRICT" json:"group_id"`
	Date      time.Time `gorm:"type:date;not null;uniqueIndex:idx_attendance_student_date" json:"date"`
	Source    string    `gorm:"default:'whatsapp_group'" json:"source"`

	Student *Student `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	Group   *Group   `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}
