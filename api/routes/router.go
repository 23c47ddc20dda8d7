package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bloomflowhq/bloomflow-backend/api/controllers"
	"github.com/bloomflowhq/bloomflow-backend/api/middleware"
	"github.com/bloomflowhq/bloomflow-backend/internal/cardstate"
	"github.com/bloomflowhq/bloomflow-backend/pkg/config"
	"github.com/bloomflowhq/bloomflow-backend/pkg/logger"
	"github.com/bloomflowhq/bloomflow-backend/pkg/metrics"
	pkgredis "github.com/bloomflowhq/bloomflow-backend/pkg/redis"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       *pkgredis.Client
	Sessions    middleware.SessionChecker
	Idempotency pkgredis.IdempotencyStore
	CardState   cardstate.Service
	SyncMetrics *metrics.SyncMetrics
}

func NewRouter(deps RouterDeps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	var cache controllers.Pinger
	if deps.Redis != nil {
		cache = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, cache))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS())

		r.Get("/ping", controllers.PublicPing())

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
			r.Use(middleware.Idempotency(deps.Idempotency, logg))

			r.Get("/ping/private", controllers.PrivatePing())

			r.Route("/cards", func(r chi.Router) {
				r.Get("/", controllers.CardList(logg, deps.CardState))
				r.Get("/feed", controllers.CardFeed(logg, deps.CardState, deps.SyncMetrics))
				r.Post("/{cardID}/state", controllers.MutateCard(logg, deps.CardState, deps.SyncMetrics))
			})
		})
	})

	return r
}
