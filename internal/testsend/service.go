package testsend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/outflowhq/outflow-backend/internal/emaillog"
	"github.com/outflowhq/outflow-backend/internal/sequence"
	"github.com/outflowhq/outflow-backend/internal/templates"
	"github.com/outflowhq/outflow-backend/pkg/config"
	"github.com/outflowhq/outflow-backend/pkg/db/models"
	"github.com/outflowhq/outflow-backend/pkg/enums"
	pkgerrors "github.com/outflowhq/outflow-backend/pkg/errors"
	"github.com/outflowhq/outflow-backend/pkg/logger"
	"github.com/outflowhq/outflow-backend/pkg/sendmail"
)

type leadSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Lead, error)
}

type stepResolver interface {
	Resolve(ctx context.Context, campaignID uuid.UUID, stepNumber int) (*sequence.Resolution, error)
}

type logAppender interface {
	Append(ctx context.Context, row *models.EmailLog) (bool, error)
}

// ServiceParams wires the dependencies for test sends.
type ServiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Leads    leadSource
	Resolver stepResolver
	Logs     logAppender
	Sender   sendmail.Sender
	Now      func() time.Time
}

// Service renders a lead's current step and sends it immediately, bypassing
// the outbox. The sequencing cursor is never touched.
type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	leads    leadSource
	resolver stepResolver
	logs     logAppender
	sender   sendmail.Sender
	now      func() time.Time
}

// Result describes what a test send actually delivered.
type Result struct {
	LeadID            uuid.UUID `json:"lead_id"`
	StepNumber        int       `json:"step_number"`
	ToEmail           string    `json:"to_email"`
	Subject           string    `json:"subject"`
	ProviderMessageID string    `json:"provider_message_id"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Leads == nil {
		return nil, fmt.Errorf("lead source is required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("step resolver is required")
	}
	if params.Logs == nil {
		return nil, fmt.Errorf("log appender is required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		leads:    params.Leads,
		resolver: params.Resolver,
		logs:     params.Logs,
		sender:   params.Sender,
		now:      now,
	}, nil
}

// Send delivers the lead's current step to the lead's own address. The
// request id keys the audit row so a retried request does not double-log.
func (s *Service) Send(ctx context.Context, leadID uuid.UUID, requestID string) (*Result, error) {
	if leadID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lead id is required")
	}

	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "lead not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load lead")
	}

	if lead.Email == nil || *lead.Email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "lead has no email address")
	}
	if lead.CampaignID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "lead is not assigned to a campaign")
	}

	step := 1
	if lead.NextEmailStep != nil {
		step = *lead.NextEmailStep
	}

	res, err := s.resolver.Resolve(ctx, *lead.CampaignID, step)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve step")
	}
	if res == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no active step to send")
	}

	fromEmail := res.Campaign.FromEmail
	if fromEmail == "" {
		fromEmail = s.cfg.Mailer.DefaultFrom
	}
	if fromEmail == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no sender address configured")
	}

	subject, body := templates.Render(res.Template.Subject, res.Template.Body, *lead)

	messageID, err := s.sender.Send(ctx, sendmail.Message{
		FromEmail: fromEmail,
		FromName:  res.Campaign.FromName,
		ToEmail:   *lead.Email,
		Subject:   subject,
		Body:      body,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send test email")
	}

	row := &models.EmailLog{
		ID:                uuid.New(),
		IdempotencyKey:    emaillog.TestKey(lead.ID, requestID),
		LeadID:            lead.ID,
		CampaignID:        lead.CampaignID,
		StepNumber:        &step,
		Direction:         enums.DirectionOutbound,
		Event:             enums.LogEventTest,
		FromEmail:         &fromEmail,
		ToEmail:           lead.Email,
		Subject:           &subject,
		ProviderMessageID: &messageID,
		CreatedAt:         s.now(),
	}
	if _, err := s.logs.Append(ctx, row); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithLeadID(ctx, lead.ID.String()), "test send log append failed", err)
	}

	return &Result{
		LeadID:            lead.ID,
		StepNumber:        step,
		ToEmail:           *lead.Email,
		Subject:           subject,
		ProviderMessageID: messageID,
	}, nil
}
