package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/coachly/interviewd/internal/config"
	"github.com/coachly/interviewd/internal/interview"
	"github.com/coachly/interviewd/internal/observability"
)

// EventSource is the live session feed consumed by the websocket handler.
// Only the durable engine provides one; direct mode serves no feed.
type EventSource interface {
	Subscribe(sessionID string) (<-chan interview.Event, func())
}

type Server struct {
	cfg          config.Config
	orchestrator interview.Orchestrator
	events       EventSource
	metrics      *observability.Metrics
	log          *zap.Logger
	upgrader     websocket.Upgrader
}

func New(cfg config.Config, orchestrator interview.Orchestrator, events EventSource, metrics *observability.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:          cfg,
		orchestrator: orchestrator,
		events:       events,
		metrics:      metrics,
		log:          log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/sessions/start", s.handleStartSession)
	r.Post("/v1/sessions/{id}/answer", s.handleSubmitAnswer)
	r.Post("/v1/sessions/{id}/complete", s.handleCompleteSession)
	r.Get("/v1/sessions/{id}", s.handleGetSession)
	r.Get("/v1/sessions/ws", s.handleSessionWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"mode":   s.cfg.OrchestratorMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"mode":   s.cfg.OrchestratorMode,
	})
}

type startSessionRequest struct {
	Role      string `json:"role"`
	Seniority string `json:"seniority"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Role = strings.TrimSpace(req.Role)
	req.Seniority = strings.TrimSpace(req.Seniority)
	if req.Role == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "role is required")
		return
	}
	if req.Seniority == "" {
		req.Seniority = "mid"
	}

	res, err := s.orchestrator.StartSession(r.Context(), req.Role, req.Seniority)
	if err != nil {
		s.respondOrchestratorError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	var req interview.AnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "answer is required")
		return
	}

	res, err := s.orchestrator.SubmitAnswer(r.Context(), id, req)
	if err != nil {
		s.respondOrchestratorError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type completeSessionRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	var req completeSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.orchestrator.EndSession(r.Context(), id, strings.TrimSpace(req.Email))
	if err != nil {
		s.respondOrchestratorError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	snap, err := s.orchestrator.Snapshot(r.Context(), id)
	if err != nil {
		s.respondOrchestratorError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// respondOrchestratorError maps the orchestration error taxonomy onto the
// wire. Not-ready is 202 with a retryable marker: the command was
// accepted, its effect just is not observable yet.
func (s *Server) respondOrchestratorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interview.ErrNotReady):
		respondJSON(w, http.StatusAccepted, map[string]any{
			"code":      "not_ready",
			"retryable": true,
			"error":     "result not ready yet, retry shortly",
		})
	case errors.Is(err, interview.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, interview.ErrNotAcceptingAnswers):
		respondError(w, http.StatusConflict, "not_accepting_answers", err.Error())
	default:
		s.log.Error("request failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "activity_failed", err.Error())
	}
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if s.events == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "event feed requires durable mode")
		return
	}
	if _, err := s.orchestrator.Snapshot(r.Context(), sessionID); err != nil {
		s.respondOrchestratorError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
		defer s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
	}

	events, cancel := s.events.Subscribe(sessionID)
	defer cancel()

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	// Reads only service control frames; the peer closing ends the feed.
	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-readClosed:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
