package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/docqa/internal/api/handlers"
	"github.com/nikhilbhutani/docqa/internal/api/middleware"
	"github.com/nikhilbhutani/docqa/internal/config"
	"github.com/nikhilbhutani/docqa/internal/rag"
)

type Router struct {
	mux     *chi.Mux
	engine  *rag.Engine
	redis   *redis.Client
	cfg     *config.Config
	limiter *middleware.RateLimiter
}

// NewRouter wires the HTTP surface. rdb may be nil when no cache is
// configured.
func NewRouter(engine *rag.Engine, rdb *redis.Client, cfg *config.Config) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		engine:  engine,
		redis:   rdb,
		cfg:     cfg,
		limiter: middleware.NewRateLimiter(100, 200),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.CORSOrigins))
	r.Use(rt.limiter.Limit)

	health := handlers.NewHealthHandler(rt.engine, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	r.Route("/api/v1", func(r chi.Router) {
		ragH := handlers.NewRAGHandler(rt.engine)
		r.Post("/config", ragH.Configure)
		r.Get("/status", ragH.Status)
		r.Post("/query", ragH.Query)

		docH := handlers.NewDocumentHandler(rt.engine, rt.cfg.Server.MaxUploadBytes)
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", docH.Upload)
			r.Get("/", docH.List)
			r.Delete("/", docH.Clear)
			r.Delete("/{id}", docH.Delete)
		})
	})

	return r
}

// Close stops background work started by the router.
func (rt *Router) Close() {
	rt.limiter.Stop()
}
