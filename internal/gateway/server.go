package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/graphql-go/graphql"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/kannel-go/smsbox/internal/counters"
	"github.com/kannel-go/smsbox/internal/dlr"
	"github.com/kannel-go/smsbox/internal/urltrans"
)

// Config carries the admin surface's CORS policy, mirroring the
// teacher's Config.EnableCORS/AllowedOrigins knobs.
type Config struct {
	EnableCORS     bool
	AllowedOrigins []string
}

// Server mounts the admin introspection surface: GraphQL over DLR
// entries and translations, a websocket event stream, and a couple of
// operational endpoints.
type Server struct {
	translations *urltrans.List
	store        dlr.Store
	outstanding  *counters.Outstanding
	hub          *Hub
	schema       *graphql.Schema
	cfg          Config
	log          *zap.Logger
	startedAt    time.Time
}

// NewServer builds the admin Server, generating its GraphQL schema from
// the given translation table and DLR store.
func NewServer(translations *urltrans.List, store dlr.Store, outstanding *counters.Outstanding, hub *Hub, cfg Config, log *zap.Logger) (*Server, error) {
	schema, err := buildSchema(translations, store)
	if err != nil {
		return nil, err
	}
	return &Server{
		translations: translations,
		store:        store,
		outstanding:  outstanding,
		hub:          hub,
		schema:       schema,
		cfg:          cfg,
		log:          log,
		startedAt:    time.Now(),
	}, nil
}

// Router builds the chi mux for /admin and /healthz, wrapping the admin
// subtree in CORS when configured.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)

	r.Route("/admin", func(admin chi.Router) {
		if s.cfg.EnableCORS {
			admin.Use(cors.New(cors.Options{
				AllowedOrigins:   s.cfg.AllowedOrigins,
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: true,
			}).Handler)
		}
		admin.Get("/graphql", s.serveGraphQL)
		admin.Post("/graphql", s.serveGraphQL)
		admin.Get("/events", s.hub.ServeWS)
		admin.Get("/stats", s.handleStats)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"outstandingRequests": s.outstanding.Load(),
		"translations":        len(s.translations.All()),
		"dlrMessages":         s.store.Messages(r.Context()),
	})
}
