// Package mockserver is an in-memory stand-in for the clinical trials
// agent service. It speaks the same HTTP surface, streams scripted answers
// over SSE, and keeps conversations per client identity so the CLI and the
// integration suite can run without a live backend.
package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bharatr21/clinical-trials-agent/internal/logging"
	"github.com/bharatr21/clinical-trials-agent/pkg/types"
)

const headerClientID = "X-Client-ID"

// Version reported by the health endpoint.
const Version = "1.0.0"

// Config holds server configuration.
type Config struct {
	Port       int
	Scenarios  []Scenario
	EnableCORS bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:       8000,
		Scenarios:  DefaultScenarios(),
		EnableCORS: true,
	}
}

// Server is the mock HTTP server.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server
	store   *memoryStore
	log     zerolog.Logger
}

// New creates a new Server instance.
func New(cfg *Config) *Server {
	if len(cfg.Scenarios) == 0 {
		cfg.Scenarios = DefaultScenarios()
	}

	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		store:  newMemoryStore(),
		log:    logging.Component("mockserver"),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Client-ID", "X-OpenAI-API-Key"},
			ExposedHeaders: []string{"X-Client-ID"},
			MaxAge:         300,
		}))
	}

	// Every response carries the caller's identity; callers without one
	// get a freshly minted identity to adopt.
	s.router.Use(s.assignIdentity)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/query/stream", s.handleQueryStream)
		r.Post("/query", s.handleQuery)
		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{id}", s.handleGetConversation)
		r.Delete("/conversations/{id}", s.handleDeleteConversation)
	})
}

// assignIdentity middleware echoes the caller's client ID, minting one when
// the header is missing.
func (s *Server) assignIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := r.Header.Get(headerClientID)
		if clientID == "" {
			clientID = uuid.NewString()
			s.log.Debug().Str("client_id", clientID).Msg("assigned new client identity")
		}
		w.Header().Set(headerClientID, clientID)

		ctx := context.WithValue(r.Context(), contextKeyClientID, clientID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// No write timeout: streams stay open as long as playback runs.
	}
	s.log.Info().Int("port", s.config.Port).Msg("mock server listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

type contextKey string

const contextKeyClientID contextKey = "clientID"

// clientID returns the caller identity injected by assignIdentity.
func clientID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyClientID).(string); ok {
		return id
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.Health{Status: "healthy", Version: Version})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	scenario := pick(s.config.Scenarios, req.Question)
	if scenario.Error != nil {
		writeDetail(w, statusFor(scenario.Error.Code), scenario.Error.Message)
		return
	}

	convID := s.store.appendExchange(clientID(r.Context()), req.ConversationID,
		req.Question, scenario.FinalAnswer(), scenario.SQL)

	writeJSON(w, http.StatusOK, types.QueryResult{
		Answer:         scenario.FinalAnswer(),
		SQL:            scenario.SQL,
		ConversationID: convID,
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	summaries, total := s.store.list(clientID(r.Context()), limit, offset)
	writeJSON(w, http.StatusOK, types.ConversationList{Conversations: summaries, Total: total})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	detail := s.store.get(clientID(r.Context()), chi.URLParam(r, "id"))
	if detail == nil {
		writeDetail(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if !s.store.delete(clientID(r.Context()), chi.URLParam(r, "id")) {
		writeDetail(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// decodeQuery parses a query request body, writing the error response
// itself on failure.
func decodeQuery(w http.ResponseWriter, r *http.Request) (types.QueryRequest, bool) {
	var req types.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return req, false
	}
	if req.Question == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "Question must not be empty")
		return req, false
	}
	return req, true
}

// statusFor maps scripted error codes onto HTTP status codes the way the
// real service reports them.
func statusFor(code string) int {
	switch code {
	case types.ErrCodeRateLimit, types.ErrCodeInsufficientQuota:
		return http.StatusTooManyRequests
	case types.ErrCodeInvalidAPIKey:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeDetail writes an error response in the service's detail shape.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
