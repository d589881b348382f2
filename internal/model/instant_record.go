package model

import (
	"time"
)

// InstantRecord is a point-in-time event (换尿裤, 喂药, ...). Immutable once
// created except for full deletion.
type InstantRecord struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	FamilyID   uint      `json:"family_id" gorm:"index;not null"`
	EventType  string    `json:"event_type" gorm:"type:varchar(50);not null"`
	EventLabel string    `json:"event_label" gorm:"type:varchar(100);not null"`
	RecordedBy string    `json:"recorded_by" gorm:"type:varchar(50);not null"`
	RecordedAt time.Time `json:"recorded_at" gorm:"index;not null"`
	Note       string    `json:"note" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
}

func (InstantRecord) TableName() string {
	return "instant_records"
}
