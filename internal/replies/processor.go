package replies

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/outflowhq/outflow-backend/internal/emaillog"
	"github.com/outflowhq/outflow-backend/internal/leads"
	"github.com/outflowhq/outflow-backend/pkg/db/models"
	"github.com/outflowhq/outflow-backend/pkg/enums"
	pkgerrors "github.com/outflowhq/outflow-backend/pkg/errors"
	"github.com/outflowhq/outflow-backend/pkg/logger"
)

// ReplyEvent is one inbound reply as delivered by the provider's ingestion
// feed. Delivery is at-least-once; the event id keys all dedupe.
type ReplyEvent struct {
	EventID    string    `json:"event_id"`
	LeadID     uuid.UUID `json:"lead_id"`
	FromEmail  string    `json:"from_email"`
	Subject    string    `json:"subject,omitempty"`
	Snippet    string    `json:"snippet,omitempty"`
	ReceivedAt time.Time `json:"received_at,omitempty"`
}

type leadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	MarkReplied(ctx context.Context, leadID uuid.UUID, reply leads.ReplyFields, now time.Time) error
}

type logAppender interface {
	Append(ctx context.Context, row *models.EmailLog) (bool, error)
}

type sequenceStopper interface {
	Stop(ctx context.Context, leadID uuid.UUID, reason enums.StopReason, nonce string) error
}

// ProcessorParams configure the reply processor.
type ProcessorParams struct {
	Logger     *logger.Logger
	Leads      leadStore
	Logs       logAppender
	Controller sequenceStopper
	Now        func() time.Time
}

// Processor applies one reply event: record the reply on the lead, append the
// inbound log row, and halt the sequence. Every step tolerates redelivery, so
// the whole operation can run again after a partial failure.
type Processor struct {
	logg       *logger.Logger
	leads      leadStore
	logs       logAppender
	controller sequenceStopper
	now        func() time.Time
}

// NewProcessor builds a reply processor.
func NewProcessor(params ProcessorParams) (*Processor, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Leads == nil {
		return nil, errors.New("lead store is required")
	}
	if params.Logs == nil {
		return nil, errors.New("log store is required")
	}
	if params.Controller == nil {
		return nil, errors.New("sequence controller is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Processor{
		logg:       params.Logger,
		leads:      params.Leads,
		logs:       params.Logs,
		controller: params.Controller,
		now:        now,
	}, nil
}

// Process handles one reply event. Validation and unknown-lead failures are
// permanent; everything else is retryable and leaves the event safe to
// redeliver.
func (p *Processor) Process(ctx context.Context, event ReplyEvent) error {
	if event.LeadID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "lead id is required")
	}
	if event.EventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}

	logCtx := p.logg.WithLeadID(ctx, event.LeadID.String())
	logCtx = p.logg.WithField(logCtx, "event_id", event.EventID)

	lead, err := p.leads.GetByID(ctx, event.LeadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "lead not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading lead")
	}

	now := p.now().UTC()
	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}

	if err := p.leads.MarkReplied(ctx, lead.ID, leads.ReplyFields{
		FromEmail: event.FromEmail,
		Subject:   event.Subject,
		Snippet:   event.Snippet,
	}, receivedAt); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording reply")
	}

	row := &models.EmailLog{
		IdempotencyKey: emaillog.ReplyKey(lead.ID, event.EventID),
		LeadID:         lead.ID,
		CampaignID:     lead.CampaignID,
		Direction:      enums.DirectionInbound,
		Event:          enums.LogEventReply,
		FromEmail:      optional(event.FromEmail),
		Subject:        optional(event.Subject),
		Snippet:        optional(event.Snippet),
	}
	// The reply is already on the lead; a failed log append is logged and the
	// halt still proceeds. Redelivery will retry the append under the same key.
	if _, err := p.logs.Append(ctx, row); err != nil {
		p.logg.Error(logCtx, "failed to append reply log entry", err)
	}

	if err := p.controller.Stop(ctx, lead.ID, enums.StopReasonReply, event.EventID); err != nil {
		return fmt.Errorf("halting sequence: %w", err)
	}

	p.logg.Info(logCtx, "reply processed")
	return nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
