package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/internal/emaillog"
	"github.com/outflowhq/outflow-backend/pkg/db/models"
	"github.com/outflowhq/outflow-backend/pkg/enums"
	pkgerrors "github.com/outflowhq/outflow-backend/pkg/errors"
	"github.com/outflowhq/outflow-backend/pkg/logger"
	"github.com/outflowhq/outflow-backend/pkg/metrics"
)

// LeadHalter is the lead-state surface the controller mutates.
type LeadHalter interface {
	Stop(ctx context.Context, leadID uuid.UUID, reason enums.StopReason, now time.Time) (bool, error)
}

// LogAppender appends idempotent email log rows.
type LogAppender interface {
	Append(ctx context.Context, row *models.EmailLog) (bool, error)
}

// ControllerParams configure the sequence controller.
type ControllerParams struct {
	Logger  *logger.Logger
	Leads   LeadHalter
	Logs    LogAppender
	Metrics *metrics.OutreachMetrics
	Now     func() time.Time
}

// Controller halts a lead's sequence. The halt is monotonic: stopping twice
// converges on the same lead state, and only the log append is deduped by its
// idempotency key.
type Controller struct {
	logg    *logger.Logger
	leads   LeadHalter
	logs    LogAppender
	metrics *metrics.OutreachMetrics
	now     func() time.Time
}

// NewController builds a sequence controller.
func NewController(params ControllerParams) (*Controller, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Leads == nil {
		return nil, fmt.Errorf("lead store required")
	}
	if params.Logs == nil {
		return nil, fmt.Errorf("log store required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		logg:    params.Logger,
		leads:   params.Leads,
		logs:    params.Logs,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// Stop halts the lead's sequence for the given reason. The nonce identifies
// the triggering event (reply event id, request id) and keys the stop log row.
func (c *Controller) Stop(ctx context.Context, leadID uuid.UUID, reason enums.StopReason, nonce string) error {
	if leadID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "lead id is required")
	}
	if !reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid stop reason %q", reason))
	}
	if nonce == "" {
		nonce = uuid.NewString()
	}

	now := c.now().UTC()
	found, err := c.leads.Stop(ctx, leadID, reason, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stopping sequence")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "lead not found")
	}

	logCtx := c.logg.WithLeadID(ctx, leadID.String())
	logCtx = c.logg.WithField(logCtx, "reason", string(reason))

	row := &models.EmailLog{
		IdempotencyKey: emaillog.StopKey(leadID, reason, nonce),
		LeadID:         leadID,
		Direction:      enums.DirectionOutbound,
		Event:          enums.LogEventStopped,
	}
	// The halt is already durable; a failed log append must not undo it.
	if _, err := c.logs.Append(ctx, row); err != nil {
		c.logg.Error(logCtx, "failed to append stop log entry", err)
	}

	if c.metrics != nil {
		c.metrics.IncStop(string(reason))
	}
	c.logg.Info(logCtx, "sequence stopped")
	return nil
}
