package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/pkg/enums"
)

// OutboxEmailDLQ captures outbox entries that exhausted their retry budget,
// kept for auditing and manual remediation.
type OutboxEmailDLQ struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OutboxID  uuid.UUID `gorm:"column:outbox_id;type:uuid;not null"`
	DedupeKey string    `gorm:"column:dedupe_key;type:text;not null"`

	LeadID     uuid.UUID `gorm:"column:lead_id;type:uuid;not null;index"`
	CampaignID uuid.UUID `gorm:"column:campaign_id;type:uuid;not null"`
	StepNumber int       `gorm:"column:step_number;not null"`

	ToEmail string `gorm:"column:to_email;type:text;not null"`
	Subject string `gorm:"column:subject;type:text;not null"`
	Body    string `gorm:"column:body;type:text;not null"`

	Reason    enums.OutboxDLQReason `gorm:"column:reason;type:text;not null"`
	Attempts  int                   `gorm:"column:attempts;not null;default:0"`
	LastError *string               `gorm:"column:last_error;type:text"`

	FailedAt  time.Time `gorm:"column:failed_at;type:timestamptz;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
