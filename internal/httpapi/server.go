package httpapi

import (
	"net/http"

	"cpmsync/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusSource is the engine view the status surface reads.
type StatusSource interface {
	Ready() bool
	Status() services.Status
}

type Server struct {
	Engine       StatusSource
	StatusAPIKey string
	Backend      string
}

func NewServer(engine StatusSource, statusAPIKey, backend string) *Server {
	return &Server{Engine: engine, StatusAPIKey: statusAPIKey, Backend: backend}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return RequireBearer(s.StatusAPIKey, next) })
		r.Get("/status", s.GetStatus)
	})
	return r
}

func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	if !s.Engine.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

type statusResp struct {
	services.Status
	Backend string `json:"backend,omitempty"`
}

func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResp{Status: s.Engine.Status(), Backend: s.Backend})
}
