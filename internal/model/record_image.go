package model

import (
	"time"
)

// Record types an image can be attached to.
const (
	RecordTypeInstant  = "instant"
	RecordTypeDuration = "duration"
)

// ValidRecordType reports whether t names an attachable record kind.
func ValidRecordType(t string) bool {
	return t == RecordTypeInstant || t == RecordTypeDuration
}

// RecordImage links an uploaded photo to a record by (type, id). The record
// reference is deliberately weak: deletion paths cascade explicitly instead
// of relying on a foreign key.
type RecordImage struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	FamilyID   uint      `json:"family_id" gorm:"index;not null"`
	RecordType string    `json:"record_type" gorm:"type:varchar(20);not null;index:idx_record_images_record"`
	RecordID   uint      `json:"record_id" gorm:"not null;index:idx_record_images_record"`
	Filename   string    `json:"filename" gorm:"type:varchar(255);not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (RecordImage) TableName() string {
	return "record_images"
}

// URL returns the public path the stored file is served from.
func (i *RecordImage) URL() string {
	return "/uploads/" + i.Filename
}
