package model

import (
	"time"
)

// Family represents one household sharing a password.
// This is the core of our multi-tenant architecture: every record in the
// system is owned by exactly one family and is never visible across families.
type Family struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Password  string    `json:"password" gorm:"type:varchar(100);uniqueIndex;not null"`
	BabyName  string    `json:"baby_name" gorm:"type:varchar(100)"`
	CreatedAt time.Time `json:"created_at"`
}

func (Family) TableName() string {
	return "families"
}
