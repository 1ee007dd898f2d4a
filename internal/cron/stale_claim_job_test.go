package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/outflowhq/outflow-backend/pkg/logger"
)

func TestStaleClaimJobRequeuesPastCutoff(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &fakeStaleRequeuer{}
	job := newStaleClaimJob(t, repo, 20*time.Minute)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expectedCutoff := now.Add(-20 * time.Minute)
	if !repo.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, repo.lastCutoff)
	}
}

func TestStaleClaimJobDefaultsTTL(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &fakeStaleRequeuer{}
	job := newStaleClaimJob(t, repo, 0)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !repo.lastCutoff.Equal(now.Add(-defaultClaimTTL)) {
		t.Fatalf("expected default ttl cutoff, got %s", repo.lastCutoff)
	}
}

func TestStaleClaimJobPropagatesError(t *testing.T) {
	repo := &fakeStaleRequeuer{err: errors.New("boom")}
	job := newStaleClaimJob(t, repo, time.Minute)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newStaleClaimJob(t *testing.T, repo *fakeStaleRequeuer, ttl time.Duration) *staleClaimJob {
	t.Helper()
	jobIface, err := NewStaleClaimJob(StaleClaimJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
		ClaimTTL:   ttl,
	})
	if err != nil {
		t.Fatalf("NewStaleClaimJob: %v", err)
	}
	job, ok := jobIface.(*staleClaimJob)
	if !ok {
		t.Fatalf("expected staleClaimJob, got %T", jobIface)
	}
	return job
}

type fakeStaleRequeuer struct {
	lastCutoff time.Time
	err        error
}

func (f *fakeStaleRequeuer) RequeueStale(_ context.Context, cutoff time.Time) (int64, error) {
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}
