package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/livevoice/config"
	"github.com/room4-2/livevoice/live"
	"github.com/room4-2/livevoice/messages"
	"github.com/room4-2/livevoice/session"
)

type Server struct {
	httpServer     *http.Server
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	config         *config.Config
}

func NewServerWebsocket(cfg *config.Config, sessionManager *session.Manager) *Server {
	s := &Server{
		sessionManager: sessionManager,
		config:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    64 * 1024, // 64KB for audio chunks
			WriteBufferSize:   64 * 1024, // 64KB for audio chunks
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the HTTP routes of the browser server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("GET /voices", s.handleVoices)
	mux.HandleFunc("GET /sessions/{id}/turns", s.handleTurns)
	return mux
}

// Start begins listening for connections
func (s *Server) Start() error {
	log.Printf("🚀 WebSocket server starting on port %d", s.config.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%d/ws", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := newBrowserClient(s, conn)
	log.Printf("✅ [%s] Browser connected from %s", c.conn.id, r.RemoteAddr)

	go c.conn.writePump()
	c.conn.queueJSON(messages.NewVoicesMessage(live.Voice(s.config.DefaultVoice), s.config.Locale))
	c.conn.queueJSON(messages.NewStatusMessage("", session.StatusInactive, session.StateIdle))

	c.readLoop()

	log.Printf("🔌 [%s] Browser disconnected", c.conn.id)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, s.sessionManager.GetActiveSessionCount())
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	locale := r.URL.Query().Get("locale")
	if locale == "" {
		locale = s.config.Locale
	}
	writeJSON(w, http.StatusOK, messages.NewVoicesMessage(live.Voice(s.config.DefaultVoice), locale).Payload)
}

func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	turns, err := s.sessionManager.Turns(r.Context(), id)
	if err != nil {
		log.Printf("⚠️ Failed to read turns for %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, messages.ErrorPayload{
			Code:    messages.ErrCodeSessionFailed,
			Message: err.Error(),
		})
		return
	}
	payload := make([]messages.TurnPayload, 0, len(turns))
	for _, t := range turns {
		payload = append(payload, messages.TurnPayload{User: t.User, Model: t.Model, At: t.At})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": id, "turns": payload})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := messages.Encode(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
