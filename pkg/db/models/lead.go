package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/pkg/enums"
)

// Lead is a contact being worked through an outreach sequence. The sequencing
// core mutates the cursor, halt, and reply fields; everything else belongs to
// the import/review surfaces.
type Lead struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Email     *string          `gorm:"column:email;type:text"`
	FirstName *string          `gorm:"column:first_name;type:text"`
	LastName  *string          `gorm:"column:last_name;type:text"`
	Company   *string          `gorm:"column:company;type:text"`
	Title     *string          `gorm:"column:title;type:text"`
	Status    enums.LeadStatus `gorm:"column:status;type:text;not null;default:new"`

	CampaignID *uuid.UUID `gorm:"column:campaign_id;type:uuid;index"`

	// Sequencing cursor. A non-null NextEmailAt with the stopped flag false
	// means an email is pending.
	NextEmailStep        *int       `gorm:"column:next_email_step"`
	NextEmailAt          *time.Time `gorm:"column:next_email_at;type:timestamptz;index"`
	EmailSequenceStopped bool       `gorm:"column:email_sequence_stopped;not null;default:false"`
	LastEmailStatus      *string    `gorm:"column:last_email_status;type:text"`
	LastEmailReplyAt     *time.Time `gorm:"column:last_email_reply_at;type:timestamptz"`

	LastReplyFrom    *string    `gorm:"column:last_reply_from;type:text"`
	LastReplySubject *string    `gorm:"column:last_reply_subject;type:text"`
	LastReplySnippet *string    `gorm:"column:last_reply_snippet;type:text"`
	LastReplyAt      *time.Time `gorm:"column:last_reply_at;type:timestamptz"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
