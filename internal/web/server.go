// Package web exposes the study services as a JSON HTTP API.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/studydeck/internal/history"
	"github.com/conorfennell/studydeck/internal/storage"
	"github.com/conorfennell/studydeck/internal/study"
	"github.com/conorfennell/studydeck/internal/sync"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	study    *study.Service
	history  *history.Service
	syncer   *sync.Syncer
	router   chi.Router
	log      *slog.Logger
	validate *validator.Validate
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, studySvc *study.Service, historySvc *history.Service, syncer *sync.Syncer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		db:       db,
		study:    studySvc,
		history:  historySvc,
		syncer:   syncer,
		router:   chi.NewRouter(),
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/deck", s.handleGetDeck())

		r.Route("/review", func(r chi.Router) {
			r.Get("/next", s.handleGetNextReview())
			r.Get("/due", s.handleGetDue())
		})

		r.Route("/cards/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetCard())
			r.Post("/review", s.handlePostReview())
		})

		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.handleGetSources())
			r.Post("/", s.handlePostSource())
			r.Delete("/{id}", s.handleDeleteSource())
		})
		r.Post("/sync", s.handlePostSync())

		r.Post("/diff", s.handlePostDiff())

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", s.handleListDocuments())
			r.Post("/", s.handleCreateDocument())
			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", s.handleSaveDocument())
				r.Get("/versions", s.handleGetVersions())
				r.Get("/compare", s.handleCompareVersions())
			})
		})

		r.Route("/settings/{key}", func(r chi.Router) {
			r.Get("/", s.handleGetSetting())
			r.Put("/", s.handlePutSetting())
		})
	})
}

// requestLogger logs one line per request through the server's logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
