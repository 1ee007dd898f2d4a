package middleware

import (
	"net/http"
	"strings"

	"github.com/outflowhq/outflow-backend/api/responses"
	"github.com/outflowhq/outflow-backend/pkg/config"
	pkgerrors "github.com/outflowhq/outflow-backend/pkg/errors"
	"github.com/outflowhq/outflow-backend/pkg/logger"
	"github.com/outflowhq/outflow-backend/pkg/security"
)

const adminTokenHeader = "X-Admin-Token"

// AdminToken guards operational endpoints with the shared admin token. The
// configured value is an Argon2id hash, never the token itself.
func AdminToken(cfg config.AdminAuthConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.TokenHash == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin endpoints disabled"))
				return
			}

			token := strings.TrimSpace(r.Header.Get(adminTokenHeader))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing admin token"))
				return
			}

			ok, err := security.VerifyToken(token, cfg.TokenHash)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify admin token"))
				return
			}
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid admin token"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
