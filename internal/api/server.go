// Package api implements the HTTP API through which host agents invoke
// the resolution engine.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nugget/remora/internal/buildinfo"
	"github.com/nugget/remora/internal/config"
	"github.com/nugget/remora/internal/eventlog"
	"github.com/nugget/remora/internal/events"
	"github.com/nugget/remora/internal/reminders"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	cfg     *config.Config
	engine  *reminders.Engine
	bus     *events.Bus
	store   *eventlog.Store
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, engine *reminders.Engine, bus *events.Bus, logger *slog.Logger) *Server {
	return &Server{
		address: cfg.Listen.Address,
		port:    cfg.Listen.Port,
		cfg:     cfg,
		engine:  engine,
		bus:     bus,
		logger:  logger,
	}
}

// SetStore configures the decision log for history endpoints. Optional;
// without it /v1/decisions reports 404.
func (s *Server) SetStore(store *eventlog.Store) {
	s.store = store
}

// Handler returns the server's route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Evaluation endpoints
	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /v1/detect", s.handleDetect)

	// Introspection endpoints
	mux.HandleFunc("GET /v1/contexts", s.handleContexts)
	mux.HandleFunc("GET /v1/decisions", s.handleDecisions)
	mux.HandleFunc("GET /v1/events/ws", s.handleEventsWS)

	// Health endpoints
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket event streams stay open indefinitely
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Remora",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// EvaluateRequest asks the engine to process one message.
type EvaluateRequest struct {
	Message string `json:"message"`
}

// EvaluateResponse carries the full evaluation plus a request ID for
// correlating host logs with the decision log.
type EvaluateResponse struct {
	RequestID string `json:"request_id"`
	reminders.Evaluation
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev, err := s.engine.Evaluate(r.Context(), req.Message)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "evaluation failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, EvaluateResponse{
		RequestID:  "req_" + uuid.NewString(),
		Evaluation: ev,
	}, s.logger)
}

// DetectResponse lists the matched context names for a message.
type DetectResponse struct {
	Detected []string `json:"detected"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	matched := reminders.DetectContexts(req.Message, s.cfg)
	names := make([]string, len(matched))
	for i, mc := range matched {
		names[i] = mc.Name
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, DetectResponse{Detected: names}, s.logger)
}

// ContextSummary describes one configured context for introspection.
type ContextSummary struct {
	Name          string   `json:"name"`
	Template      string   `json:"template"`
	InjectionRate float64  `json:"injection_rate"`
	Priority      int      `json:"priority"`
	Temperature   *float64 `json:"temperature,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	Description   string   `json:"description,omitempty"`
}

func (s *Server) handleContexts(w http.ResponseWriter, r *http.Request) {
	summaries := make([]ContextSummary, 0, s.cfg.Contexts.Len())
	for _, name := range s.cfg.Contexts.Names() {
		def, _ := s.cfg.Contexts.Get(name)
		summaries = append(summaries, ContextSummary{
			Name:          name,
			Template:      def.Template,
			InjectionRate: def.InjectionRate,
			Priority:      def.Priority,
			Temperature:   def.Temperature,
			Keywords:      def.Keywords,
			Description:   def.Description,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"contexts": summaries}, s.logger)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.errorResponse(w, http.StatusNotFound, "decision log not enabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	records, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to query decision log", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "query failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"decisions": records}, s.logger)
}
