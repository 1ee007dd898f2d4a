package controllers

import (
	"context"
	"net/http"

	"github.com/outflowhq/outflow-backend/api/responses"
	"github.com/outflowhq/outflow-backend/api/validators"
	"github.com/outflowhq/outflow-backend/internal/replies"
	pkgerrors "github.com/outflowhq/outflow-backend/pkg/errors"
	"github.com/outflowhq/outflow-backend/pkg/idempotency"
	"github.com/outflowhq/outflow-backend/pkg/logger"
)

type replyProcessor interface {
	Process(ctx context.Context, event replies.ReplyEvent) error
}

const replyWebhookConsumer = "reply-webhook"

// ReplyWebhook accepts push-style reply notifications from the mail provider.
// Deliveries are at-least-once, so the event id is checked against the
// idempotency store before processing.
func ReplyWebhook(processor replyProcessor, marks *idempotency.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if processor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reply processor unavailable"))
			return
		}

		var event replies.ReplyEvent
		if err := validators.DecodeJSONBody(r, &event); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if marks != nil && event.EventID != "" {
			processed, err := marks.CheckAndMarkProcessed(r.Context(), replyWebhookConsumer, event.EventID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency check"))
				return
			}
			if processed {
				responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
				return
			}
		}

		if err := processor.Process(r.Context(), event); err != nil {
			if marks != nil && event.EventID != "" {
				if delErr := marks.Delete(r.Context(), replyWebhookConsumer, event.EventID); delErr != nil && logg != nil {
					logg.Error(r.Context(), "clearing idempotency mark failed", delErr)
				}
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "processed"})
	}
}
