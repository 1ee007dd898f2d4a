package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/pkg/enums"
)

// EmailLog is the append-only audit trail of every email event. Each insert is
// guarded by a unique idempotency key so retried logging calls are no-ops.
type EmailLog struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	IdempotencyKey string    `gorm:"column:idempotency_key;type:text;not null;uniqueIndex:idx_email_logs_idempotency_key"`

	LeadID     uuid.UUID  `gorm:"column:lead_id;type:uuid;not null;index"`
	CampaignID *uuid.UUID `gorm:"column:campaign_id;type:uuid"`
	StepNumber *int       `gorm:"column:step_number"`

	Direction enums.EmailDirection `gorm:"column:direction;type:text;not null"`
	Event     enums.EmailLogEvent  `gorm:"column:event;type:text;not null"`

	FromEmail *string `gorm:"column:from_email;type:text"`
	ToEmail   *string `gorm:"column:to_email;type:text"`
	Subject   *string `gorm:"column:subject;type:text"`
	Snippet   *string `gorm:"column:snippet;type:text"`

	ProviderMessageID *string `gorm:"column:provider_message_id;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
