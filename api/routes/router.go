package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/api/controllers"
	"github.com/outflowhq/outflow-backend/api/middleware"
	"github.com/outflowhq/outflow-backend/internal/dispatcher"
	"github.com/outflowhq/outflow-backend/internal/emaillog"
	"github.com/outflowhq/outflow-backend/internal/outbox"
	"github.com/outflowhq/outflow-backend/internal/replies"
	"github.com/outflowhq/outflow-backend/internal/scheduler"
	"github.com/outflowhq/outflow-backend/internal/sequence"
	"github.com/outflowhq/outflow-backend/internal/testsend"
	"github.com/outflowhq/outflow-backend/pkg/config"
	"github.com/outflowhq/outflow-backend/pkg/db"
	"github.com/outflowhq/outflow-backend/pkg/enums"
	"github.com/outflowhq/outflow-backend/pkg/idempotency"
	"github.com/outflowhq/outflow-backend/pkg/logger"
	"github.com/outflowhq/outflow-backend/pkg/redis"
)

type stopController interface {
	Stop(ctx context.Context, leadID uuid.UUID, reason enums.StopReason, nonce string) error
}

var (
	_ stopController = (*sequence.Controller)(nil)
)

// Deps carries everything the router wires into handlers. Optional services
// may be nil; their routes respond with an internal error until wired.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	DB    db.Pinger
	Redis redis.Pinger

	Sequence   stopController
	EmailLog   *emaillog.Repository
	TestSend   *testsend.Service
	Replies    *replies.Processor
	ReplyMarks *idempotency.Manager

	Scheduler  *scheduler.Service
	Dispatcher *dispatcher.Service
	Outbox     *outbox.Repository
	DLQ        *outbox.DLQRepository
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/replies", controllers.ReplyWebhook(deps.Replies, deps.ReplyMarks, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/leads/{leadId}", func(r chi.Router) {
			r.Get("/activity", controllers.LeadActivity(deps.EmailLog, logg))
			r.Post("/sequence/stop", controllers.StopSequence(deps.Sequence, logg))
			r.Post("/test-send", controllers.TestSend(deps.TestSend, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminToken(cfg.AdminAuth, logg))

		r.Post("/scheduler/run", controllers.AdminRunScheduler(deps.Scheduler, logg))
		r.Post("/dispatcher/run", controllers.AdminRunDispatcher(deps.Dispatcher, logg))
		r.Route("/outbox", func(r chi.Router) {
			r.Get("/dlq", controllers.AdminListDLQ(deps.DLQ, logg))
			r.Post("/requeue-stale", controllers.AdminRequeueStale(deps.Outbox, cfg.Outbox, logg))
		})
	})

	return r
}
