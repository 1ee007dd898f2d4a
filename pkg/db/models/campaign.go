package models

import (
	"time"

	"github.com/google/uuid"
)

// Campaign is a named outreach configuration. Read-only from the sequencing
// core's perspective.
type Campaign struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name          string    `gorm:"column:name;type:text;not null"`
	FromEmail     string    `gorm:"column:from_email;type:text;not null"`
	FromName      string    `gorm:"column:from_name;type:text;not null"`
	EmailDailyCap int       `gorm:"column:email_daily_cap;not null;default:0"`
	Timezone      string    `gorm:"column:timezone;type:text;not null;default:UTC"`
	IsActive      bool      `gorm:"column:is_active;not null;default:true"`
	IsDefault     bool      `gorm:"column:is_default;not null;default:false"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
