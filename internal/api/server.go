package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/2cloudlabs/yolo-transcript/internal/assemblyai"
	"github.com/2cloudlabs/yolo-transcript/internal/config"
	"github.com/2cloudlabs/yolo-transcript/internal/database"
	"github.com/2cloudlabs/yolo-transcript/internal/drive"
	"github.com/2cloudlabs/yolo-transcript/internal/ledger"
	"github.com/2cloudlabs/yolo-transcript/internal/metrics"
	"github.com/2cloudlabs/yolo-transcript/internal/reconcile"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// Deps are the constructed dependencies the HTTP layer routes requests to.
type Deps struct {
	DB         *database.DB
	Redis      *redis.Client
	Vendor     *assemblyai.Client
	Ledger     *ledger.Ledger
	Reconciler *reconcile.Reconciler
	Drive      *drive.Client
	Version    string
	StartTime  time.Time
}

func NewServer(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORS)
	if cfg.RateLimitRPS > 0 {
		r.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	r.Use(metrics.InstrumentHandler)

	// Health and metrics endpoints — no auth
	health := NewHealthHandler(deps.DB, deps.Redis, cfg.AssemblyAIKey != "", deps.Version, deps.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	credits := NewCreditsHandler(deps.DB, deps.Ledger, log)
	transcriptions := NewTranscriptionsHandler(deps.DB, deps.Vendor, deps.Reconciler, deps.Ledger, log)
	webhooks := NewWebhooksHandler(cfg.PaddleWebhookSecret, deps.Ledger, log)

	var integrations *IntegrationsHandler
	if deps.Drive != nil {
		integrations = NewIntegrationsHandler(deps.DB, deps.Drive, log)
	}

	r.Route("/api", func(r chi.Router) {
		// Webhooks and the OAuth callback authenticate themselves
		// (signature or state parameter), not via session tokens.
		webhooks.Routes(r)
		if integrations != nil {
			integrations.CallbackRoutes(r)
		}

		r.Group(func(r chi.Router) {
			r.Use(JWTAuth(cfg.JWTSecret))
			credits.Routes(r)
			transcriptions.Routes(r)
			if integrations != nil {
				integrations.Routes(r)
			}
		})
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
