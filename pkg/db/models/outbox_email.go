package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/pkg/enums"
)

// OutboxEmail is a rendered, not-yet-sent email awaiting dispatch. At most one
// row exists per (lead_id, campaign_id, step_number); the dedupe key encodes
// the triple and carries a unique index.
type OutboxEmail struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DedupeKey string    `gorm:"column:dedupe_key;type:text;not null;uniqueIndex:idx_outbox_emails_dedupe_key"`

	LeadID     uuid.UUID `gorm:"column:lead_id;type:uuid;not null;index"`
	CampaignID uuid.UUID `gorm:"column:campaign_id;type:uuid;not null"`
	StepNumber int       `gorm:"column:step_number;not null"`
	TemplateID uuid.UUID `gorm:"column:template_id;type:uuid;not null"`

	ToEmail string `gorm:"column:to_email;type:text;not null"`
	Subject string `gorm:"column:subject;type:text;not null"`
	Body    string `gorm:"column:body;type:text;not null"`

	SendAfter time.Time          `gorm:"column:send_after;type:timestamptz;not null;index"`
	Status    enums.OutboxStatus `gorm:"column:status;type:text;not null;default:queued"`

	// LockToken is the sole mutual-exclusion mechanism: null means unclaimed,
	// a fresh uuid per claimed batch otherwise.
	LockToken *string    `gorm:"column:lock_token;type:uuid"`
	ClaimedAt *time.Time `gorm:"column:claimed_at;type:timestamptz"`

	Attempts  int       `gorm:"column:attempts;not null;default:0"`
	LastError *string   `gorm:"column:last_error;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
