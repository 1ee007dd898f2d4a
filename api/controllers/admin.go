package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/outflowhq/outflow-backend/api/responses"
	"github.com/outflowhq/outflow-backend/pkg/config"
	"github.com/outflowhq/outflow-backend/pkg/db/models"
	pkgerrors "github.com/outflowhq/outflow-backend/pkg/errors"
	"github.com/outflowhq/outflow-backend/pkg/logger"
)

type schedulerRunner interface {
	RunOnce(ctx context.Context) (int, bool, error)
}

type dispatcherRunner interface {
	RunOnce(ctx context.Context) (int, error)
}

type dlqSource interface {
	List(ctx context.Context, limit int) ([]models.OutboxEmailDLQ, error)
}

type staleRequeuer interface {
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
}

const defaultDLQLimit = 100

// AdminRunScheduler executes one scheduler pass on demand.
func AdminRunScheduler(svc schedulerRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scheduler unavailable"))
			return
		}

		enqueued, full, err := svc.RunOnce(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"enqueued":   enqueued,
			"full_batch": full,
		})
	}
}

// AdminRunDispatcher executes one dispatcher pass on demand.
func AdminRunDispatcher(svc dispatcherRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatcher unavailable"))
			return
		}

		dispatched, err := svc.RunOnce(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"dispatched": dispatched})
	}
}

// AdminListDLQ returns the most recent dead-lettered sends.
func AdminListDLQ(dlq dlqSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dlq == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dlq unavailable"))
			return
		}

		limit := defaultDLQLimit
		if limitStr := strings.TrimSpace(r.URL.Query().Get("limit")); limitStr != "" {
			value, err := strconv.Atoi(limitStr)
			if err != nil || value <= 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer"))
				return
			}
			limit = value
		}

		rows, err := dlq.List(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"entries": rows})
	}
}

// AdminRequeueStale releases claims older than the configured TTL, so work
// stuck behind a crashed dispatcher becomes claimable again.
func AdminRequeueStale(outbox staleRequeuer, cfg config.OutboxConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if outbox == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "outbox unavailable"))
			return
		}

		cutoff := time.Now().UTC().Add(-cfg.ClaimTTL)
		requeued, err := outbox.RequeueStale(r.Context(), cutoff)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"requeued": requeued})
	}
}
