package server

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/room4-2/livevoice/audio"
	"github.com/room4-2/livevoice/live"
	"github.com/room4-2/livevoice/messages"
	"github.com/room4-2/livevoice/session"
)

// browserClient is one UI instance: a websocket that owns at most one live
// session at a time. Session start and stop happen on the read loop.
type browserClient struct {
	server *Server
	conn   *wsConn
	ctx    context.Context
	cancel context.CancelFunc

	session *session.Session
	mic     *audio.PushTrack
}

func newBrowserClient(s *Server, conn *websocket.Conn) *browserClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &browserClient{
		server: s,
		conn:   newWSConn(uuid.New().String()[:8], conn, s.config.KeepAlivePeriod),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *browserClient) readLoop() {
	defer func() {
		c.cancel()
		c.stopSession()
		c.conn.close()
	}()

	c.conn.watchReads()
	for {
		messageType, data, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("❌ [%s] WebSocket read error: %v", c.conn.id, err)
			}
			return
		}

		if messageType == websocket.BinaryMessage {
			c.pushAudio(data)
			continue
		}

		msg, err := messages.DecodeClientMessage(data)
		if err != nil {
			c.sendError(messages.ErrCodeInvalidMessage)
			continue
		}
		c.processClientMessage(msg)
	}
}

func (c *browserClient) processClientMessage(msg *messages.ClientMessage) {
	switch msg.Type {
	case messages.TypeStart:
		var payload messages.StartPayload
		if err := msg.DecodePayload(&payload); err != nil {
			c.sendError(messages.ErrCodeInvalidMessage)
			return
		}
		c.startSession(payload)

	case messages.TypeStop:
		c.stopSession()

	case messages.TypeAudio:
		var payload messages.AudioPayload
		if err := msg.DecodePayload(&payload); err != nil {
			c.sendError(messages.ErrCodeInvalidMessage)
			return
		}
		pcm, err := audio.DecodeBase64(payload.Data)
		if err != nil {
			c.sendError(messages.ErrCodeInvalidMessage)
			return
		}
		c.pushAudio(pcm)

	case messages.TypeControl:
		var payload messages.ControlPayload
		if err := msg.DecodePayload(&payload); err != nil {
			c.sendError(messages.ErrCodeInvalidMessage)
			return
		}
		if payload.Action == "ping" {
			c.conn.queueJSON(messages.NewPongMessage(c.sessionID()))
		}

	default:
		log.Printf("⚠️ [%s] Unknown message type: %s", c.conn.id, msg.Type)
		c.sendError(messages.ErrCodeInvalidMessage)
	}
}

func (c *browserClient) startSession(payload messages.StartPayload) {
	if c.active() {
		c.sendError(messages.ErrCodeSessionActive)
		return
	}

	voice, err := live.ParseVoice(payload.Voice)
	if err != nil {
		c.sendError(messages.ErrCodeInvalidMessage)
		return
	}

	cfg := c.server.config
	mic := audio.NewPushTrack(cfg.MaxBufferSize)
	s, err := c.server.sessionManager.CreateSession(session.Request{
		Voice:      voice,
		Source:     "browser",
		Microphone: pushMicrophone{track: mic, permission: payload.Microphone},
		Speaker: audio.SinkSpeaker{
			Sink:        audio.SinkFunc(c.writeAudio),
			SkipSilence: true,
		},
		OnUpdate: c.onUpdate,
	})
	if err != nil {
		log.Printf("❌ [%s] Failed to create session: %v", c.conn.id, err)
		if errors.Is(err, session.ErrMaxSessions) {
			c.sendError(messages.ErrCodeRateLimited)
		} else {
			c.sendError(messages.ErrCodeSessionFailed)
		}
		return
	}
	c.session, c.mic = s, mic

	go func() {
		if err := s.Start(c.ctx); err != nil {
			log.Printf("❌ [%s] Session %s failed to start: %v", c.conn.id, s.ID[:8], err)
		}
	}()
}

// stopSession stops the current session and waits for its teardown.
func (c *browserClient) stopSession() {
	if c.session == nil {
		return
	}
	c.session.Stop()
	c.session, c.mic = nil, nil
}

func (c *browserClient) active() bool {
	if c.session == nil {
		return false
	}
	select {
	case <-c.session.Done():
		c.session, c.mic = nil, nil
		return false
	default:
		return true
	}
}

func (c *browserClient) sessionID() string {
	if c.session == nil {
		return ""
	}
	return c.session.ID
}

func (c *browserClient) pushAudio(pcm []byte) {
	if c.mic == nil {
		return
	}
	if err := c.mic.PushPCM16(pcm); err != nil {
		if errors.Is(err, audio.ErrBufferFull) {
			c.sendError(messages.ErrCodeBufferFull)
		}
	}
}

// writeAudio is the playback sink: rendered PCM16 24 kHz goes out as
// binary frames.
func (c *browserClient) writeAudio(pcm []byte) error {
	return c.conn.queue(websocket.BinaryMessage, pcm)
}

func (c *browserClient) onUpdate(u session.Update) {
	switch u.Kind {
	case session.UpdateState:
		c.conn.queueJSON(messages.NewStatusMessage(u.SessionID, u.Status, u.State))
	case session.UpdateTranscript:
		c.conn.queueJSON(messages.NewTranscriptMessage(u.SessionID, u.User, u.Model))
	case session.UpdateTurn:
		c.conn.queueJSON(messages.NewTurnMessage(u.SessionID, u.Turn))
	case session.UpdateError:
		c.conn.queueJSON(messages.NewSessionErrorMessage(u.SessionID, u.Err, c.server.config.Locale))
	}
}

func (c *browserClient) sendError(code string) {
	c.conn.queueJSON(messages.NewErrorMessage(c.sessionID(), code, c.server.config.Locale))
}
