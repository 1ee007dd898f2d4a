package campaigns

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/outflowhq/outflow-backend/pkg/db/models"
)

// Repository reads campaign configuration. The sequencing core never writes
// these tables.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns a campaigns repository bound to the provided database.
func NewRepository(gdb *gorm.DB) *Repository {
	return &Repository{db: gdb}
}

// GetCampaign fetches one campaign, nil when it does not exist.
func (r *Repository) GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.WithContext(ctx).First(&campaign, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &campaign, nil
}

// GetActiveStep fetches the active step at the given position, nil when no
// such step is defined.
func (r *Repository) GetActiveStep(ctx context.Context, campaignID uuid.UUID, stepNumber int) (*models.CampaignStep, error) {
	var step models.CampaignStep
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND step_number = ? AND is_active = ?", campaignID, stepNumber, true).
		First(&step).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &step, nil
}

// GetTemplate fetches one email template, nil when it does not exist.
func (r *Repository) GetTemplate(ctx context.Context, id uuid.UUID) (*models.EmailTemplate, error) {
	var tmpl models.EmailTemplate
	err := r.db.WithContext(ctx).First(&tmpl, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tmpl, nil
}
