package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/api/responses"
	"github.com/outflowhq/outflow-backend/pkg/db/models"
	pkgerrors "github.com/outflowhq/outflow-backend/pkg/errors"
	"github.com/outflowhq/outflow-backend/pkg/logger"
)

type activitySource interface {
	ListForLead(ctx context.Context, leadID uuid.UUID, limit int) ([]models.EmailLog, error)
}

const defaultActivityLimit = 50

// LeadActivity returns the lead's email log, newest first.
func LeadActivity(logs activitySource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if logs == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "email log unavailable"))
			return
		}

		leadID, err := uuid.Parse(chi.URLParam(r, "leadId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid lead id"))
			return
		}

		limit := defaultActivityLimit
		if limitStr := strings.TrimSpace(r.URL.Query().Get("limit")); limitStr != "" {
			value, err := strconv.Atoi(limitStr)
			if err != nil || value <= 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer"))
				return
			}
			limit = value
		}

		rows, err := logs.ListForLead(r.Context(), leadID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"lead_id": leadID,
			"events":  rows,
		})
	}
}
