package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-events/api/controllers"
	"github.com/angelmondragon/packfinderz-events/api/middleware"
	"github.com/angelmondragon/packfinderz-events/pkg/config"
	"github.com/angelmondragon/packfinderz-events/pkg/logger"
	pkgredis "github.com/angelmondragon/packfinderz-events/pkg/redis"
)

// quietPaths are polled by orchestrators and scrapers; only failures are access-logged.
var quietPaths = []string{"/health/live", "/health/ready", "/metrics"}

// NewRouter builds the admin surface: health checks, metrics, and the event query/replay API.
// A nil responseCache leaves publish and replay without Idempotency-Key support.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	svc controllers.EventService,
	readiness map[string]controllers.Pinger,
	metricsHandler http.Handler,
	responseCache pkgredis.ResponseStore,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg, quietPaths...),
		middleware.Recoverer(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	maxPage := cfg.Admin.MaxPageSize
	idempotent := middleware.Idempotency(responseCache, cfg.Admin.IdempotencyTTL, logg)
	r.Route("/api/v1/events", func(r chi.Router) {
		r.Get("/", controllers.ListEvents(svc, maxPage, logg))
		r.With(idempotent).Post("/", controllers.PublishEvent(svc, logg))
		r.Get("/dead-letter", controllers.ListDeadLetterEvents(svc, maxPage, logg))
		r.Get("/{eventId}", controllers.GetEvent(svc, logg))
		r.With(idempotent).Post("/{eventId}/replay", controllers.ReplayEvent(svc, logg))
	})

	return r
}
