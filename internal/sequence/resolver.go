package sequence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/pkg/db/models"
)

// CampaignSource is the read surface the resolver needs.
type CampaignSource interface {
	GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	GetActiveStep(ctx context.Context, campaignID uuid.UUID, stepNumber int) (*models.CampaignStep, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (*models.EmailTemplate, error)
}

// Resolution is a fully loaded step: campaign, step, and template.
type Resolution struct {
	Campaign models.Campaign
	Step     models.CampaignStep
	Template models.EmailTemplate
}

// Resolver is the single "resolve step for lead" operation shared by the
// scheduler and the dispatcher, so step-completion logic cannot diverge.
type Resolver struct {
	campaigns CampaignSource
}

// NewResolver builds a resolver over the given campaign source.
func NewResolver(campaigns CampaignSource) (*Resolver, error) {
	if campaigns == nil {
		return nil, fmt.Errorf("campaign source required")
	}
	return &Resolver{campaigns: campaigns}, nil
}

// Resolve loads the step a lead should execute next. A nil resolution with a
// nil error means no further step is defined: the campaign is missing or
// inactive, the step is missing or inactive, or its template is gone. All of
// those are sequence completion, not errors.
func (r *Resolver) Resolve(ctx context.Context, campaignID uuid.UUID, stepNumber int) (*Resolution, error) {
	if campaignID == uuid.Nil {
		return nil, nil
	}

	campaign, err := r.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	if campaign == nil || !campaign.IsActive {
		return nil, nil
	}

	step, err := r.campaigns.GetActiveStep(ctx, campaignID, stepNumber)
	if err != nil {
		return nil, fmt.Errorf("load step: %w", err)
	}
	if step == nil {
		return nil, nil
	}

	tmpl, err := r.campaigns.GetTemplate(ctx, step.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	if tmpl == nil {
		return nil, nil
	}

	return &Resolution{
		Campaign: *campaign,
		Step:     *step,
		Template: *tmpl,
	}, nil
}
