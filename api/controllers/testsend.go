package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/api/middleware"
	"github.com/outflowhq/outflow-backend/api/responses"
	"github.com/outflowhq/outflow-backend/internal/testsend"
	pkgerrors "github.com/outflowhq/outflow-backend/pkg/errors"
	"github.com/outflowhq/outflow-backend/pkg/logger"
)

type testSendService interface {
	Send(ctx context.Context, leadID uuid.UUID, requestID string) (*testsend.Result, error)
}

// TestSend renders and sends the lead's current step immediately, without
// touching the outbox or the sequence cursor.
func TestSend(svc testSendService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "test send service unavailable"))
			return
		}

		leadID, err := uuid.Parse(chi.URLParam(r, "leadId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid lead id"))
			return
		}

		requestID := middleware.RequestIDFromContext(r.Context())
		if requestID == "" {
			requestID = uuid.NewString()
		}

		result, err := svc.Send(r.Context(), leadID, requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
