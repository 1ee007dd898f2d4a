package models

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStep is one ordered position in a campaign's email sequence.
// (campaign_id, step_number) is unique; absence of the next step number
// signals sequence completion.
type CampaignStep struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CampaignID        uuid.UUID `gorm:"column:campaign_id;type:uuid;not null;uniqueIndex:idx_campaign_steps_campaign_step"`
	StepNumber        int       `gorm:"column:step_number;not null;uniqueIndex:idx_campaign_steps_campaign_step"`
	TemplateID        uuid.UUID `gorm:"column:template_id;type:uuid;not null"`
	SendOffsetMinutes int       `gorm:"column:send_offset_minutes;not null;default:0"`
	IsActive          bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
