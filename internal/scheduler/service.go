package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/internal/sequence"
	"github.com/outflowhq/outflow-backend/internal/templates"
	"github.com/outflowhq/outflow-backend/pkg/config"
	"github.com/outflowhq/outflow-backend/pkg/db/models"
	"github.com/outflowhq/outflow-backend/pkg/logger"
	"github.com/outflowhq/outflow-backend/pkg/metrics"
)

const (
	defaultBatchSize = 100
	defaultPollMs    = 120000
	maxBackoff       = 5 * time.Minute
	jitterWindow     = 500 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type leadSource interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Lead, error)
	CompleteSequence(ctx context.Context, leadID uuid.UUID) (bool, error)
}

type stepResolver interface {
	Resolve(ctx context.Context, campaignID uuid.UUID, stepNumber int) (*sequence.Resolution, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, entry *models.OutboxEmail) (bool, error)
}

// ServiceParams configure the scheduler service.
type ServiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Leads    leadSource
	Resolver stepResolver
	Outbox   enqueuer
	Metrics  *metrics.OutreachMetrics
	Now      func() time.Time
}

// Service turns due leads into rendered outbox entries. It never sends
// anything itself, and it never advances a lead's cursor; the insert is keyed
// so repeated passes over the same lead collapse into one queued email.
type Service struct {
	cfg          *config.Config
	logg         *logger.Logger
	leads        leadSource
	resolver     stepResolver
	outbox       enqueuer
	metrics      *metrics.OutreachMetrics
	now          func() time.Time
	batchSize    int
	pollInterval time.Duration
}

// NewService builds a scheduler service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Leads == nil {
		return nil, errors.New("lead source is required")
	}
	if params.Resolver == nil {
		return nil, errors.New("step resolver is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox repository is required")
	}

	now := params.Now
	if now == nil {
		now = time.Now
	}
	batch := params.Config.Scheduler.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Scheduler.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}

	return &Service{
		cfg:          params.Config,
		logg:         params.Logger,
		leads:        params.Leads,
		resolver:     params.Resolver,
		outbox:       params.Outbox,
		metrics:      params.Metrics,
		now:          now,
		batchSize:    batch,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

// Run polls for due leads until the context is canceled. Pass errors back off
// exponentially; a pass that finds a full batch re-polls immediately so a
// backlog drains without waiting out the interval.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "scheduler context canceled")
			return ctx.Err()
		default:
		}

		enqueued, full, err := s.RunOnce(ctx)
		if err != nil {
			s.logg.Error(ctx, "scheduler pass error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval
		if enqueued > 0 {
			s.logg.Info(s.logg.WithField(ctx, "enqueued", enqueued), "scheduler pass enqueued emails")
		}
		if full {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// RunOnce executes a single scheduling pass. It returns the number of entries
// enqueued and whether the pass drained a full batch. Per-lead failures are
// logged and skipped so one broken lead cannot starve the rest of the batch.
func (s *Service) RunOnce(ctx context.Context) (int, bool, error) {
	started := s.now()
	now := started.UTC()

	due, err := s.leads.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return 0, false, fmt.Errorf("listing due leads: %w", err)
	}

	enqueued := 0
	for _, lead := range due {
		created, err := s.processLead(ctx, lead, now)
		if err != nil {
			leadCtx := s.logg.WithLeadID(ctx, lead.ID.String())
			s.logg.Error(leadCtx, "scheduling lead failed", err)
			continue
		}
		if created {
			enqueued++
		}
	}

	if s.metrics != nil {
		s.metrics.ObservePass("scheduler", time.Since(started))
	}
	return enqueued, len(due) >= s.batchSize, nil
}

func (s *Service) processLead(ctx context.Context, lead models.Lead, now time.Time) (bool, error) {
	step := 1
	if lead.NextEmailStep != nil {
		step = *lead.NextEmailStep
	}
	campaignID := uuid.Nil
	if lead.CampaignID != nil {
		campaignID = *lead.CampaignID
	}

	res, err := s.resolver.Resolve(ctx, campaignID, step)
	if err != nil {
		return false, fmt.Errorf("resolving step %d: %w", step, err)
	}
	if res == nil {
		completed, err := s.leads.CompleteSequence(ctx, lead.ID)
		if err != nil {
			return false, fmt.Errorf("completing sequence: %w", err)
		}
		leadCtx := s.logg.WithLeadID(ctx, lead.ID.String())
		if !completed {
			s.logg.Info(leadCtx, "lead stopped before completion, cursor left cleared")
			return false, nil
		}
		if s.metrics != nil {
			s.metrics.IncCompleted()
		}
		s.logg.Info(s.logg.WithField(leadCtx, "step", step), "sequence complete, cursor cleared")
		return false, nil
	}

	toEmail := ""
	if lead.Email != nil {
		toEmail = *lead.Email
	}
	if toEmail == "" {
		return false, errors.New("lead has no email address")
	}

	subject, body := templates.Render(res.Template.Subject, res.Template.Body, lead)
	entry := &models.OutboxEmail{
		LeadID:     lead.ID,
		CampaignID: campaignID,
		StepNumber: step,
		TemplateID: res.Template.ID,
		ToEmail:    toEmail,
		Subject:    subject,
		Body:       body,
		SendAfter:  now,
	}

	created, err := s.outbox.Enqueue(ctx, entry)
	if err != nil {
		return false, fmt.Errorf("enqueueing step %d: %w", step, err)
	}
	if s.metrics != nil {
		if created {
			s.metrics.IncEnqueued()
		} else {
			s.metrics.IncDuplicate()
		}
	}
	return created, nil
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
