// Package httpapi exposes the HTTP surface of the retrieval core (spec
// section 6): POST /retrieve, POST /chat, POST /rebuild-index, and GET
// /index-status. Grounded on the example pack's
// github.com/fbrzx-airplane-chat chi server (same router setup,
// middleware stack, and writeJSON/writeError helpers), generalized from
// a conversation-upload chat API to this domain's retrieve/chat/rebuild
// surface.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dzheng/digitalmemory/internal/agent"
	"github.com/dzheng/digitalmemory/internal/memerr"
	"github.com/dzheng/digitalmemory/internal/rebuild"
	"github.com/dzheng/digitalmemory/internal/retrieve"
	"github.com/dzheng/digitalmemory/internal/store"
)

// Server wires HTTP handlers to the retriever, agent, and rebuild
// supervisor.
type Server struct {
	router     http.Handler
	retriever  *retrieve.Retriever
	agent      *agent.Agent
	supervisor *rebuild.Supervisor
	statusPath string
	logger     *slog.Logger
	bgCtx      context.Context
}

// Dependencies groups what the HTTP surface needs; agent may be nil if
// only retrieval is exposed (the /chat route then returns 503). Context
// is the long-lived server context background rebuilds are parented to
// (defaults to context.Background() if nil) — it must outlive any single
// request, since a triggered rebuild's child process keeps running after
// the triggering request's handler returns.
type Dependencies struct {
	Retriever  *retrieve.Retriever
	Agent      *agent.Agent
	Supervisor *rebuild.Supervisor
	StatusPath string
	Logger     *slog.Logger
	Context    context.Context
}

func New(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bgCtx := deps.Context
	if bgCtx == nil {
		bgCtx = context.Background()
	}

	s := &Server{
		retriever:  deps.Retriever,
		agent:      deps.Agent,
		supervisor: deps.Supervisor,
		statusPath: deps.StatusPath,
		logger:     logger,
		bgCtx:      bgCtx,
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	mux.Post("/retrieve", s.handleRetrieve)
	mux.Post("/chat", s.handleChat)
	mux.Post("/rebuild-index", s.handleRebuildIndex)
	mux.Get("/index-status", s.handleIndexStatus)

	s.router = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type retrieveRequest struct {
	Query      string `json:"query"`
	DateFilter string `json:"date_filter"`
	MaxResults int    `json:"max_results"`
}

type retrieveResponse struct {
	Results []retrieve.Hit `json:"results"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	if s.retriever == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("retriever not configured"))
		return
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, memerr.New(memerr.ErrCodeQueryEmpty, "query must not be empty", nil))
		return
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 10
	}

	hits, err := s.retriever.Search(r.Context(), req.Query, req.DateFilter, req.MaxResults)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("retrieve: %w", err))
		return
	}
	if hits == nil {
		hits = []retrieve.Hit{}
	}
	writeJSON(w, http.StatusOK, retrieveResponse{Results: hits})
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Response string `json:"response"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("chat agent not configured"))
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, errors.New("message must not be empty"))
		return
	}

	reply, err := s.agent.Ask(r.Context(), req.Message, nil, time.Now())
	if err != nil {
		writeJSON(w, http.StatusOK, chatResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: reply.Text, Success: true})
}

type rebuildResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleRebuildIndex(w http.ResponseWriter, r *http.Request) {
	if s.supervisor == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("rebuild supervisor not configured"))
		return
	}

	// Parented to the server's long-lived context, not r.Context(): the
	// triggered rebuild (and its child process) outlives this handler,
	// which returns as soon as the response is written.
	if err := s.supervisor.TriggerManualRebuild(s.bgCtx); err != nil {
		if s.supervisor.IsRunning() {
			// Idempotent under "already running" (spec section 6).
			writeJSON(w, http.StatusOK, rebuildResponse{Success: false, Error: "rebuild already running"})
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Errorf("trigger rebuild: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, rebuildResponse{Success: true, Message: "rebuild started"})
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	st, err := store.LoadStatus(s.statusPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("load status: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
