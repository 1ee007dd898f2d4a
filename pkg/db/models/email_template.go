package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailTemplate holds a subject/body pair with {{token}} placeholders
// substituted from lead fields at render time.
type EmailTemplate struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;type:text;not null"`
	Subject   string    `gorm:"column:subject;type:text;not null"`
	Body      string    `gorm:"column:body;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
