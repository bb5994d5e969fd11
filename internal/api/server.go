package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/config"
	"github.com/snarg/scribe-engine/internal/database"
	"github.com/snarg/scribe-engine/internal/metrics"
	"github.com/snarg/scribe-engine/internal/transcribe"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerDeps bundles the collaborators the HTTP layer exposes.
type ServerDeps struct {
	DB       *database.DB
	Intake   *transcribe.Intake
	Queue    QueueSource
	Models   ModelState
	Notifier ConnChecker
	Watcher  WatcherState
	Version  string
	Start    time.Time
}

func NewServer(cfg *config.Config, deps ServerDeps, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	// Unauthenticated surface: liveness and scrape endpoint.
	health := NewHealthHandler(deps.DB, deps.Notifier, deps.Queue, deps.Models, deps.Watcher, deps.Version, deps.Start)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	transcriptions := NewTranscriptionHandler(deps.DB, deps.DB, deps.Intake, cfg.MaxAudioBytes, log)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		transcriptions.Routes(r)
		r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			if deps.Queue == nil {
				WriteJSON(w, http.StatusOK, transcribe.QueueStats{})
				return
			}
			WriteJSON(w, http.StatusOK, deps.Queue.Stats())
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
