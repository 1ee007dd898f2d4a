package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/outflowhq/outflow-backend/internal/emaillog"
	"github.com/outflowhq/outflow-backend/internal/sequence"
	"github.com/outflowhq/outflow-backend/pkg/config"
	"github.com/outflowhq/outflow-backend/pkg/db/models"
	"github.com/outflowhq/outflow-backend/pkg/enums"
	"github.com/outflowhq/outflow-backend/pkg/logger"
	"github.com/outflowhq/outflow-backend/pkg/metrics"
	"github.com/outflowhq/outflow-backend/pkg/sendmail"
)

const (
	defaultBatchSize   = 25
	defaultPollMs      = 120000
	defaultMaxAttempts = 8
	defaultSendTimeout = 30 * time.Second
	maxBackoff         = 5 * time.Minute
	jitterWindow       = 500 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type outboxSource interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.OutboxEmail, string, error)
	CompleteSent(ctx context.Context, entryID uuid.UUID, token string, logRow *models.EmailLog) (bool, error)
	Discard(ctx context.Context, entryID uuid.UUID, token string, logRow *models.EmailLog) (bool, error)
	Release(ctx context.Context, entryID uuid.UUID, token string, sendErr error) (bool, error)
	DeadLetter(ctx context.Context, entry models.OutboxEmail, token string, reason enums.OutboxDLQReason, lastErr error, now time.Time, logRow *models.EmailLog) (bool, error)
}

type leadCursor interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	AdvanceCursor(ctx context.Context, leadID uuid.UUID, nextStep int, dueAt time.Time) (bool, error)
	CompleteSequence(ctx context.Context, leadID uuid.UUID) (bool, error)
}

type stepResolver interface {
	Resolve(ctx context.Context, campaignID uuid.UUID, stepNumber int) (*sequence.Resolution, error)
}

type campaignSource interface {
	GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
}

// ServiceParams configure the dispatcher service.
type ServiceParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	Outbox    outboxSource
	Leads     leadCursor
	Resolver  stepResolver
	Campaigns campaignSource
	Sender    sendmail.Sender
	Metrics   *metrics.OutreachMetrics
	Now       func() time.Time
}

// Service drains the outbox. Each pass claims a batch under a fresh lock
// token; every later transition on a claimed row is guarded by that token, so
// a claim that went stale degrades to a silent skip instead of a double send.
type Service struct {
	cfg          *config.Config
	logg         *logger.Logger
	outbox       outboxSource
	leads        leadCursor
	resolver     stepResolver
	campaigns    campaignSource
	sender       sendmail.Sender
	metrics      *metrics.OutreachMetrics
	now          func() time.Time
	batchSize    int
	maxAttempts  int
	sendTimeout  time.Duration
	pollInterval time.Duration
}

// NewService builds a dispatcher service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Leads == nil {
		return nil, errors.New("lead store is required")
	}
	if params.Resolver == nil {
		return nil, errors.New("step resolver is required")
	}
	if params.Campaigns == nil {
		return nil, errors.New("campaign source is required")
	}
	if params.Sender == nil {
		return nil, errors.New("mail sender is required")
	}

	now := params.Now
	if now == nil {
		now = time.Now
	}
	batch := params.Config.Dispatcher.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Dispatcher.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	sendTimeout := params.Config.Dispatcher.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}

	return &Service{
		cfg:          params.Config,
		logg:         params.Logger,
		outbox:       params.Outbox,
		leads:        params.Leads,
		resolver:     params.Resolver,
		campaigns:    params.Campaigns,
		sender:       params.Sender,
		metrics:      params.Metrics,
		now:          now,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		sendTimeout:  sendTimeout,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

// Run polls and dispatches until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "dispatcher context canceled")
			return ctx.Err()
		default:
		}

		claimed, err := s.RunOnce(ctx)
		if err != nil {
			s.logg.Error(ctx, "dispatcher pass error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval
		if claimed >= s.batchSize {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// RunOnce claims and works one batch, returning how many entries were
// claimed. Per-entry failures are contained: a provider error releases or
// dead-letters that entry and the pass moves on.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	started := s.now()
	now := started.UTC()

	claimed, token, err := s.outbox.ClaimDue(ctx, now, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claiming due entries: %w", err)
	}

	for _, entry := range claimed {
		if err := s.dispatch(ctx, entry, token, now); err != nil {
			entryCtx := s.logg.WithLeadID(ctx, entry.LeadID.String())
			entryCtx = s.logg.WithField(entryCtx, "outbox_id", entry.ID.String())
			s.logg.Error(entryCtx, "dispatching entry failed", err)
		}
	}

	if s.metrics != nil {
		s.metrics.ObservePass("dispatcher", time.Since(started))
	}
	return len(claimed), nil
}

func (s *Service) dispatch(ctx context.Context, entry models.OutboxEmail, token string, now time.Time) error {
	entryCtx := s.logg.WithLeadID(ctx, entry.LeadID.String())
	entryCtx = s.logg.WithFields(entryCtx, map[string]any{
		"outbox_id":   entry.ID.String(),
		"campaign_id": entry.CampaignID.String(),
		"step_number": entry.StepNumber,
	})

	// The claim query filters on due time only; a reply or manual stop may
	// have landed after this entry was enqueued. Re-check before sending and
	// drop the stale entry instead.
	lead, err := s.leads.GetByID(ctx, entry.LeadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.discardStale(ctx, entryCtx, entry, token, nil, "lead missing, queued entry discarded")
		}
		return s.handleSendFailure(ctx, entryCtx, entry, token, now, err)
	}
	if lead.EmailSequenceStopped {
		return s.discardStale(ctx, entryCtx, entry, token, s.skippedLogRow(entry), "lead stopped, queued entry discarded")
	}

	fromEmail, fromName, err := s.fromFields(ctx, entry.CampaignID)
	if err != nil {
		return s.handleSendFailure(ctx, entryCtx, entry, token, now, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	messageID, sendErr := s.sender.Send(sendCtx, sendmail.Message{
		FromEmail: fromEmail,
		FromName:  fromName,
		ToEmail:   entry.ToEmail,
		Subject:   entry.Subject,
		Body:      entry.Body,
	})
	cancel()
	if sendErr != nil {
		return s.handleSendFailure(ctx, entryCtx, entry, token, now, sendErr)
	}

	finalized, err := s.outbox.CompleteSent(ctx, entry.ID, token, s.sentLogRow(entry, fromEmail, messageID))
	if err != nil {
		return fmt.Errorf("finalizing sent entry: %w", err)
	}
	if !finalized {
		// Another pass already owns this row; the advance is theirs too.
		s.logg.Warn(entryCtx, "claim went stale after send, skipping")
		return nil
	}

	if s.metrics != nil {
		s.metrics.IncSent()
	}
	s.logg.Info(s.logg.WithField(entryCtx, "provider_message_id", messageID), "email sent")

	return s.advance(ctx, entryCtx, entry, now)
}

// advance points the lead at the step after the one just sent, or clears the
// cursor when no further step exists. A lead stopped while the send was in
// flight keeps its cleared cursor: the conditional update reports no rows and
// the advance is dropped.
func (s *Service) advance(ctx context.Context, entryCtx context.Context, entry models.OutboxEmail, now time.Time) error {
	nextStep := entry.StepNumber + 1
	res, err := s.resolver.Resolve(ctx, entry.CampaignID, nextStep)
	if err != nil {
		return fmt.Errorf("resolving next step: %w", err)
	}

	if res == nil {
		completed, err := s.leads.CompleteSequence(ctx, entry.LeadID)
		if err != nil {
			return fmt.Errorf("completing sequence: %w", err)
		}
		if !completed {
			s.logg.Info(entryCtx, "lead stopped mid-flight, completion skipped")
			return nil
		}
		if s.metrics != nil {
			s.metrics.IncCompleted()
		}
		s.logg.Info(entryCtx, "sequence complete after final step")
		return nil
	}

	dueAt := now.Add(time.Duration(res.Step.SendOffsetMinutes) * time.Minute)
	advanced, err := s.leads.AdvanceCursor(ctx, entry.LeadID, nextStep, dueAt)
	if err != nil {
		return fmt.Errorf("advancing cursor: %w", err)
	}
	if !advanced {
		s.logg.Info(entryCtx, "lead stopped mid-flight, cursor left cleared")
	}
	return nil
}

func (s *Service) discardStale(ctx context.Context, entryCtx context.Context, entry models.OutboxEmail, token string, logRow *models.EmailLog, reason string) error {
	discarded, err := s.outbox.Discard(ctx, entry.ID, token, logRow)
	if err != nil {
		return fmt.Errorf("discarding stale entry: %w", err)
	}
	if discarded {
		s.logg.Info(entryCtx, reason)
	}
	return nil
}

func (s *Service) handleSendFailure(ctx context.Context, entryCtx context.Context, entry models.OutboxEmail, token string, now time.Time, sendErr error) error {
	failCtx := s.logg.WithField(entryCtx, "error", sendErr.Error())

	if entry.Attempts+1 >= s.maxAttempts {
		moved, err := s.outbox.DeadLetter(ctx, entry, token, enums.DLQMaxAttempts, sendErr, now, s.failedLogRow(entry, sendErr))
		if err != nil {
			return fmt.Errorf("dead-lettering entry: %w", err)
		}
		if moved {
			if s.metrics != nil {
				s.metrics.IncDeadLettered()
			}
			s.logg.Warn(s.logg.WithField(failCtx, "attempts", entry.Attempts+1), "retry budget exhausted, entry dead-lettered")
		}
		return nil
	}

	released, err := s.outbox.Release(ctx, entry.ID, token, sendErr)
	if err != nil {
		return fmt.Errorf("releasing entry: %w", err)
	}
	if released {
		if s.metrics != nil {
			s.metrics.IncSendFailure()
		}
		s.logg.Warn(s.logg.WithField(failCtx, "attempts", entry.Attempts+1), "send failed, entry released for retry")
	}
	return nil
}

func (s *Service) fromFields(ctx context.Context, campaignID uuid.UUID) (string, string, error) {
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return "", "", fmt.Errorf("loading campaign sender: %w", err)
	}
	if campaign != nil && campaign.FromEmail != "" {
		return campaign.FromEmail, campaign.FromName, nil
	}
	if s.cfg.Mailer.DefaultFrom != "" {
		return s.cfg.Mailer.DefaultFrom, "", nil
	}
	return "", "", errors.New("no sender address configured")
}

func (s *Service) sentLogRow(entry models.OutboxEmail, fromEmail, messageID string) *models.EmailLog {
	campaignID := entry.CampaignID
	stepNumber := entry.StepNumber
	return &models.EmailLog{
		IdempotencyKey:    emaillog.SentKey(entry.LeadID, entry.CampaignID, entry.StepNumber),
		LeadID:            entry.LeadID,
		CampaignID:        &campaignID,
		StepNumber:        &stepNumber,
		Direction:         enums.DirectionOutbound,
		Event:             enums.LogEventSent,
		FromEmail:         &fromEmail,
		ToEmail:           &entry.ToEmail,
		Subject:           &entry.Subject,
		ProviderMessageID: &messageID,
	}
}

func (s *Service) skippedLogRow(entry models.OutboxEmail) *models.EmailLog {
	campaignID := entry.CampaignID
	stepNumber := entry.StepNumber
	return &models.EmailLog{
		IdempotencyKey: emaillog.SkipKey(entry.LeadID, entry.CampaignID, entry.StepNumber),
		LeadID:         entry.LeadID,
		CampaignID:     &campaignID,
		StepNumber:     &stepNumber,
		Direction:      enums.DirectionOutbound,
		Event:          enums.LogEventStopped,
		ToEmail:        &entry.ToEmail,
		Subject:        &entry.Subject,
	}
}

func (s *Service) failedLogRow(entry models.OutboxEmail, sendErr error) *models.EmailLog {
	campaignID := entry.CampaignID
	stepNumber := entry.StepNumber
	snippet := sendErr.Error()
	return &models.EmailLog{
		IdempotencyKey: emaillog.FailedKey(entry.LeadID, entry.CampaignID, entry.StepNumber),
		LeadID:         entry.LeadID,
		CampaignID:     &campaignID,
		StepNumber:     &stepNumber,
		Direction:      enums.DirectionOutbound,
		Event:          enums.LogEventFailed,
		ToEmail:        &entry.ToEmail,
		Subject:        &entry.Subject,
		Snippet:        &snippet,
	}
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
