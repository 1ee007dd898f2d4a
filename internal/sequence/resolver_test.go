package sequence

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/pkg/db/models"
)

type fakeCampaignSource struct {
	campaigns map[uuid.UUID]*models.Campaign
	steps     map[string]*models.CampaignStep
	templates map[uuid.UUID]*models.EmailTemplate
	err       error
}

func stepKey(campaignID uuid.UUID, stepNumber int) string {
	return campaignID.String() + ":" + string(rune('0'+stepNumber))
}

func (f *fakeCampaignSource) GetCampaign(_ context.Context, id uuid.UUID) (*models.Campaign, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.campaigns[id], nil
}

func (f *fakeCampaignSource) GetActiveStep(_ context.Context, campaignID uuid.UUID, stepNumber int) (*models.CampaignStep, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.steps[stepKey(campaignID, stepNumber)], nil
}

func (f *fakeCampaignSource) GetTemplate(_ context.Context, id uuid.UUID) (*models.EmailTemplate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.templates[id], nil
}

func newPopulatedSource() (*fakeCampaignSource, uuid.UUID, uuid.UUID) {
	campaignID := uuid.New()
	templateID := uuid.New()
	src := &fakeCampaignSource{
		campaigns: map[uuid.UUID]*models.Campaign{
			campaignID: {ID: campaignID, Name: "Q3 Outreach", IsActive: true},
		},
		steps: map[string]*models.CampaignStep{
			stepKey(campaignID, 2): {
				ID:                uuid.New(),
				CampaignID:        campaignID,
				StepNumber:        2,
				TemplateID:        templateID,
				SendOffsetMinutes: 1440,
				IsActive:          true,
			},
		},
		templates: map[uuid.UUID]*models.EmailTemplate{
			templateID: {ID: templateID, Subject: "Hi {{first_name}}", Body: "..."},
		},
	}
	return src, campaignID, templateID
}

func TestResolveReturnsFullyLoadedStep(t *testing.T) {
	src, campaignID, templateID := newPopulatedSource()
	resolver, err := NewResolver(src)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	res, err := resolver.Resolve(context.Background(), campaignID, 2)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res == nil {
		t.Fatal("expected a resolution")
	}
	if res.Step.StepNumber != 2 || res.Step.SendOffsetMinutes != 1440 {
		t.Fatalf("unexpected step %+v", res.Step)
	}
	if res.Template.ID != templateID {
		t.Fatalf("unexpected template %s", res.Template.ID)
	}
	if res.Campaign.ID != campaignID {
		t.Fatalf("unexpected campaign %s", res.Campaign.ID)
	}
}

func TestResolveMissingStepMeansCompletion(t *testing.T) {
	src, campaignID, _ := newPopulatedSource()
	resolver, _ := NewResolver(src)

	res, err := resolver.Resolve(context.Background(), campaignID, 3)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res != nil {
		t.Fatal("expected nil resolution for missing step")
	}
}

func TestResolveInactiveCampaignMeansCompletion(t *testing.T) {
	src, campaignID, _ := newPopulatedSource()
	src.campaigns[campaignID].IsActive = false
	resolver, _ := NewResolver(src)

	res, err := resolver.Resolve(context.Background(), campaignID, 2)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res != nil {
		t.Fatal("expected nil resolution for inactive campaign")
	}
}

func TestResolveDeletedCampaignMeansCompletion(t *testing.T) {
	src, _, _ := newPopulatedSource()
	resolver, _ := NewResolver(src)

	res, err := resolver.Resolve(context.Background(), uuid.New(), 2)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res != nil {
		t.Fatal("expected nil resolution for deleted campaign")
	}
}

func TestResolveNilCampaignID(t *testing.T) {
	src, _, _ := newPopulatedSource()
	resolver, _ := NewResolver(src)

	res, err := resolver.Resolve(context.Background(), uuid.Nil, 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res != nil {
		t.Fatal("expected nil resolution for nil campaign id")
	}
}

func TestResolvePropagatesStoreErrors(t *testing.T) {
	src := &fakeCampaignSource{err: errors.New("connection reset")}
	resolver, _ := NewResolver(src)

	if _, err := resolver.Resolve(context.Background(), uuid.New(), 1); err == nil {
		t.Fatal("expected error")
	}
}
