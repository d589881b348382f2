package model

import (
	"time"
)

// DurationRecord is a start/end bracketed event (晒太阳, 吃奶, ...).
// EndedAt nil means the event is still in progress; once set the record is
// closed and DurationMinutes holds the computed length. A closed record can
// never be reopened. Any family member may end an event another member
// started.
type DurationRecord struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	FamilyID        uint       `json:"family_id" gorm:"index;not null"`
	EventType       string     `json:"event_type" gorm:"type:varchar(50);not null"`
	EventLabel      string     `json:"event_label" gorm:"type:varchar(100);not null"`
	StartedBy       string     `json:"started_by" gorm:"type:varchar(50);not null"`
	EndedBy         string     `json:"ended_by" gorm:"type:varchar(50)"`
	StartedAt       time.Time  `json:"started_at" gorm:"index;not null"`
	EndedAt         *time.Time `json:"ended_at"`
	DurationMinutes float64    `json:"duration_minutes"`
	Note            string     `json:"note" gorm:"type:text"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (DurationRecord) TableName() string {
	return "duration_records"
}

// Active reports whether the event is still in progress.
func (r *DurationRecord) Active() bool {
	return r.EndedAt == nil
}
