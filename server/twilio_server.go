package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/room4-2/livevoice/audio"
	"github.com/room4-2/livevoice/config"
	"github.com/room4-2/livevoice/live"
	"github.com/room4-2/livevoice/messages"
	"github.com/room4-2/livevoice/session"
)

type WebsocketTwilio struct {
	httpServer     *http.Server
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	config         *config.Config
}

func NewWebsocketTwilio(cfg *config.Config, sessionManager *session.Manager) *WebsocketTwilio {
	s := &WebsocketTwilio{
		sessionManager: sessionManager,
		config:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// Twilio doesn't support WebSocket compression
			EnableCompression: false,
			CheckOrigin: func(r *http.Request) bool {
				// Twilio connections don't send browser Origin headers.
				return true
			},
		},
	}

	// Determine which port to use
	port := cfg.TwilioPort
	if cfg.ServerType == "twilio" {
		// When running as standalone Twilio server, use the main port
		port = cfg.Port
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Handler(),
		// No ReadTimeout/WriteTimeout: these interfere with long-lived WebSocket connections.
	}

	return s
}

// Handler returns the HTTP routes of the Twilio server.
func (s *WebsocketTwilio) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleWebsocketTwilio)
	mux.HandleFunc("/voice", s.handleVoiceCall)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start begins listening for connections
func (s *WebsocketTwilio) Start() error {
	port := s.httpServer.Addr
	log.Printf("📞 Twilio WebSocket server starting on %s", port)
	log.Printf("📡 Twilio stream endpoint: ws://localhost%s/stream", port)
	log.Printf("📡 Twilio voice endpoint: http://localhost%s/voice", port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *WebsocketTwilio) Shutdown(ctx context.Context) error {
	log.Println("Shutting down Twilio server...")
	return s.httpServer.Shutdown(ctx)
}

// GetAddr returns the server's listen address (for logging in main)
func (s *WebsocketTwilio) GetAddr() string {
	return s.httpServer.Addr
}

func (s *WebsocketTwilio) handleWebsocketTwilio(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Twilio WebSocket upgrade failed: %v", err)
		return
	}

	call := newTwilioCall(s, conn)
	go call.conn.writePump()
	call.readLoop()
	log.Printf("📞 [%s] Twilio call ended", call.conn.id)
}

func (s *WebsocketTwilio) handleVoiceCall(w http.ResponseWriter, r *http.Request) {
	wsURL := "wss://" + r.Host + "/stream"

	// TwiML to connect the call to the WebSocket stream
	xmlResponse := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
	<Say>Connecting to the assistant now.</Say>
	<Connect>
		<Stream url="%s" />
	</Connect>
</Response>`, wsURL)

	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(xmlResponse))
}

func (s *WebsocketTwilio) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","server":"twilio","sessions":%d}`, s.sessionManager.GetActiveSessionCount())
}

// twilioCall is a phone call acting as the UI instance. The call's start
// event starts a session with the default voice and stop ends it. Caller
// audio arrives as 8 kHz mu-law and the reply goes back the same way.
type twilioCall struct {
	server    *WebsocketTwilio
	conn      *wsConn
	ctx       context.Context
	cancel    context.CancelFunc
	streamSid string
	session   *session.Session
	mic       *audio.PushTrack
}

func newTwilioCall(s *WebsocketTwilio, conn *websocket.Conn) *twilioCall {
	ctx, cancel := context.WithCancel(context.Background())
	return &twilioCall{
		server: s,
		conn:   newWSConn(uuid.New().String()[:8], conn, 0),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *twilioCall) readLoop() {
	defer func() {
		c.cancel()
		if c.session != nil {
			c.session.Stop()
		}
		c.conn.close()
	}()

	for {
		_, data, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("❌ [%s] Twilio WebSocket read error: %v", c.conn.id, err)
			}
			return
		}

		msg, err := messages.DecodeTwilioMessage(data)
		if err != nil {
			log.Printf("⚠️ [%s] Failed to parse Twilio message: %v", c.conn.id, err)
			continue
		}

		switch msg.Event {
		case "connected":
			log.Printf("📞 [%s] Twilio stream connected", c.conn.id)

		case "start":
			if msg.Start == nil || msg.Start.StreamSid == "" {
				log.Printf("⚠️ [%s] Twilio 'start' event missing streamSid", c.conn.id)
				continue
			}
			if c.session != nil {
				continue
			}
			c.streamSid = msg.Start.StreamSid
			log.Printf("📞 [%s] Twilio stream started, StreamSid: %s", c.conn.id, c.streamSid)
			if err := c.startSession(); err != nil {
				log.Printf("❌ [%s] Failed to create session: %v", c.conn.id, err)
				return
			}

		case "media":
			if c.mic == nil || msg.Media == nil {
				continue
			}
			muLaw, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				log.Printf("⚠️ [%s] Failed to decode Twilio audio: %v", c.conn.id, err)
				continue
			}
			if err := c.mic.PushPCM16(audio.MuLawToPCM16K(muLaw)); err != nil && !errors.Is(err, audio.ErrBufferFull) {
				return
			}

		case "stop":
			log.Printf("📞 [%s] Twilio stream stopped", c.conn.id)
			return

		case "mark":
			// informational

		default:
			log.Printf("⚠️ [%s] Unknown Twilio event: %s", c.conn.id, msg.Event)
		}
	}
}

func (c *twilioCall) startSession() error {
	cfg := c.server.config
	mic := audio.NewPushTrack(cfg.MaxBufferSize)
	s, err := c.server.sessionManager.CreateSession(session.Request{
		Voice:      live.Voice(cfg.DefaultVoice),
		Source:     "twilio",
		Microphone: pushMicrophone{track: mic, permission: messages.MicGranted},
		Speaker: audio.SinkSpeaker{
			Sink:        audio.SinkFunc(c.writeAudio),
			SkipSilence: true,
		},
		OnUpdate: c.onUpdate,
	})
	if err != nil {
		return err
	}
	c.session, c.mic = s, mic

	go func() {
		if err := s.Start(c.ctx); err != nil {
			log.Printf("❌ [%s] Session %s failed to start: %v", c.conn.id, s.ID[:8], err)
		}
	}()
	// A session that ends on its own hangs up the stream.
	go func() {
		<-s.Done()
		c.conn.close()
	}()
	return nil
}

// writeAudio converts rendered PCM16 24 kHz to a Twilio media message.
func (c *twilioCall) writeAudio(pcm []byte) error {
	payload := audio.EncodeBase64(audio.PCM24KToMuLaw(pcm))
	data, err := messages.Encode(messages.NewTwilioMessageBack(c.streamSid, payload))
	if err != nil {
		return err
	}
	return c.conn.queue(websocket.TextMessage, data)
}

func (c *twilioCall) onUpdate(u session.Update) {
	switch u.Kind {
	case session.UpdateInterrupted:
		// Drop the reply audio Twilio still has buffered.
		c.conn.queueJSON(messages.NewTwilioClear(c.streamSid))
	case session.UpdateTurn:
		log.Printf("💬 [%s] user=%q model=%q", c.conn.id, u.Turn.User, u.Turn.Model)
	case session.UpdateError:
		log.Printf("❌ [%s] %s", c.conn.id, messages.Localize(messages.ErrorCode(u.Err.Kind), "en"))
	}
}
