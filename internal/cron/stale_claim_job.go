package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/outflowhq/outflow-backend/pkg/logger"
)

const defaultClaimTTL = 15 * time.Minute

type staleRequeuer interface {
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type StaleClaimJobParams struct {
	Logger     *logger.Logger
	Repository staleRequeuer
	ClaimTTL   time.Duration
}

// NewStaleClaimJob builds the job that returns abandoned claims to the queue.
// A claim outlives its TTL only when a dispatcher died mid-send; requeueing it
// rotates the lock token, so the dead dispatcher's late writes are ignored.
func NewStaleClaimJob(params StaleClaimJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	ttl := params.ClaimTTL
	if ttl <= 0 {
		ttl = defaultClaimTTL
	}
	return &staleClaimJob{
		logg: params.Logger,
		repo: params.Repository,
		ttl:  ttl,
		now:  time.Now,
	}, nil
}

type staleClaimJob struct {
	logg *logger.Logger
	repo staleRequeuer
	ttl  time.Duration
	now  func() time.Time
}

func (j *staleClaimJob) Name() string { return "stale-claim-requeue" }

func (j *staleClaimJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	requeued, err := j.repo.RequeueStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("stale claim requeue: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":        cutoff,
		"claim_ttl":     j.ttl.String(),
		"rows_requeued": requeued,
	})
	if requeued > 0 {
		j.logg.Warn(logCtx, "stale outbox claims returned to queue")
		return nil
	}
	j.logg.Info(logCtx, "no stale outbox claims found")
	return nil
}
