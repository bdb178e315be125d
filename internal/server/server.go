// Package server is the reference chat backend: the socket the widget
// connects to plus the REST fallback and history endpoints.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/comigor/jobchat-go/internal/chatapi"
	"github.com/comigor/jobchat-go/internal/history"
	"github.com/comigor/jobchat-go/internal/logger"
	"github.com/comigor/jobchat-go/internal/protocol"
)

const defaultHistoryLimit = 20

// Responder generates bot text.
type Responder interface {
	Welcome() string
	Reply(ctx context.Context, sessionID, message string) string
}

// Transcripts stores the conversation of every session.
type Transcripts interface {
	Save(ctx context.Context, msg history.Message) (history.Message, error)
	List(ctx context.Context, sessionID string, limit int) ([]history.Message, error)
}

// Options configure a Server. Responder and Transcripts are required.
type Options struct {
	Responder   Responder
	Transcripts Transcripts
	// Gatherer, when set, is served on /metrics.
	Gatherer prometheus.Gatherer
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// Server handles chat traffic for any number of sessions.
type Server struct {
	responder   Responder
	transcripts Transcripts
	gatherer    prometheus.Gatherer
	clock       clockwork.Clock
	log         *slog.Logger
	upgrader    websocket.Upgrader
}

// New creates a server.
func New(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Server{
		responder:   opts.Responder,
		transcripts: opts.Transcripts,
		gatherer:    opts.Gatherer,
		clock:       opts.Clock,
		log:         logger.Or(opts.Logger).With("component", "server"),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handler wires the routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/ws/chat/{sessionID}", s.handleSocket)

	r.Route("/api/chat", func(api chi.Router) {
		api.Post("/", s.handleChat)
		api.Get("/history/{sessionID}", s.handleHistory)
	})
	return r
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatapi.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reply := s.responder.Reply(r.Context(), sessionID, req.Message)
	s.save(r.Context(), sessionID, "user", req.Message)
	s.save(r.Context(), sessionID, "bot", reply)

	respondJSON(w, http.StatusOK, chatapi.Reply{
		Success:   true,
		Message:   reply,
		SessionID: sessionID,
		Timestamp: protocol.FormatTimestamp(s.clock.Now()),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := s.transcripts.List(r.Context(), sessionID, limit)
	if err != nil {
		s.log.Error("history lookup failed", "session_id", sessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "error fetching chat history")
		return
	}
	data := make([]chatapi.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		data = append(data, chatapi.HistoryEntry{MessageType: m.Role, Content: m.Content, Timestamp: m.CreatedAt})
	}
	respondJSON(w, http.StatusOK, chatapi.HistoryResponse{Success: true, Data: data, Count: len(data)})
}

func (s *Server) save(ctx context.Context, sessionID, role, content string) {
	_, err := s.transcripts.Save(ctx, history.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: s.clock.Now().UTC(),
	})
	if err != nil {
		s.log.Error("failed to save message", "session_id", sessionID, "role", role, "error", err)
	}
}
