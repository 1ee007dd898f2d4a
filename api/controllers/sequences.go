package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/api/middleware"
	"github.com/outflowhq/outflow-backend/api/responses"
	"github.com/outflowhq/outflow-backend/api/validators"
	"github.com/outflowhq/outflow-backend/pkg/enums"
	pkgerrors "github.com/outflowhq/outflow-backend/pkg/errors"
	"github.com/outflowhq/outflow-backend/pkg/logger"
)

type sequenceStopper interface {
	Stop(ctx context.Context, leadID uuid.UUID, reason enums.StopReason, nonce string) error
}

type stopSequenceRequest struct {
	Reason string `json:"reason" validate:"omitempty,oneof=manual unsubscribe bounce"`
}

// StopSequence halts a lead's email sequence. The request id keys the audit
// row, so a retried request converges instead of double-logging.
func StopSequence(ctrl sequenceStopper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ctrl == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sequence controller unavailable"))
			return
		}

		leadID, err := uuid.Parse(chi.URLParam(r, "leadId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid lead id"))
			return
		}

		reason := enums.StopReasonManual
		if r.ContentLength != 0 {
			var req stopSequenceRequest
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if req.Reason != "" {
				parsed, err := enums.ParseStopReason(req.Reason)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stop reason"))
					return
				}
				reason = parsed
			}
		}

		nonce := middleware.RequestIDFromContext(r.Context())
		if nonce == "" {
			nonce = uuid.NewString()
		}

		if err := ctrl.Stop(r.Context(), leadID, reason, nonce); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"lead_id": leadID,
			"stopped": true,
			"reason":  string(reason),
		})
	}
}
