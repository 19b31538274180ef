package messages

import (
	"time"

	"github.com/bytedance/sonic"

	"github.com/room4-2/livevoice/live"
	"github.com/room4-2/livevoice/session"
)

// Error codes
const (
	ErrCodeInvalidMessage    = "INVALID_MESSAGE"
	ErrCodeSessionFailed     = "SESSION_FAILED"
	ErrCodeSessionActive     = "SESSION_ACTIVE"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeBufferFull        = "BUFFER_FULL"
	ErrCodePermissionDenied  = "PERMISSION_DENIED"
	ErrCodeDeviceUnavailable = "DEVICE_UNAVAILABLE"
	ErrCodeAuth              = "AUTH_ERROR"
	ErrCodeQuota             = "QUOTA_EXCEEDED"
	ErrCodeNetwork           = "NETWORK_ERROR"
	ErrCodeProvider          = "PROVIDER_ERROR"
)

// Server message types
const (
	TypeStatus     = "status"
	TypeTranscript = "transcript"
	TypeTurn       = "turn"
	TypeError      = "error"
	TypeVoices     = "voices"
	TypePong       = "pong"
)

// ServerMessage represents a message sent to frontend client
type ServerMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// StatusPayload carries the status indicator and lifecycle state.
type StatusPayload struct {
	Status string `json:"status"` // "inactive", "active", "speaking"
	State  string `json:"state"`  // "idle", "connecting", "open", "closed"
}

// TranscriptPayload carries the in-progress text of the current turn.
type TranscriptPayload struct {
	User  string `json:"user"`
	Model string `json:"model"`
}

// TurnPayload carries a finalized turn.
type TurnPayload struct {
	User  string    `json:"user"`
	Model string    `json:"model"`
	At    time.Time `json:"at"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// VoiceInfo is one selectable voice.
type VoiceInfo struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// VoicesPayload lists the voices and the default.
type VoicesPayload struct {
	Voices  []VoiceInfo `json:"voices"`
	Default string      `json:"default"`
}

type Media struct {
	Payload string `json:"payload"` // Base64-encoded mu-law audio data
}

type TwilioMessageBack struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Media     Media  `json:"media"`
}

func NewTwilioMessageBack(streamSid string, data string) *TwilioMessageBack {
	return &TwilioMessageBack{
		Event:     "media",
		StreamSid: streamSid,
		Media:     Media{Payload: data},
	}
}

// NewTwilioClear asks Twilio to drop audio it has buffered for playback.
func NewTwilioClear(streamSid string) map[string]string {
	return map[string]string{"event": "clear", "streamSid": streamSid}
}

// Encode serializes any outbound message.
func Encode(msg any) ([]byte, error) {
	return sonic.Marshal(msg)
}

// NewStatusMessage creates a status message
func NewStatusMessage(sessionID string, status session.Status, state session.State) *ServerMessage {
	return &ServerMessage{
		Type:      TypeStatus,
		SessionID: sessionID,
		Payload:   StatusPayload{Status: string(status), State: state.String()},
	}
}

// NewTranscriptMessage creates a live transcript message
func NewTranscriptMessage(sessionID, user, model string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeTranscript,
		SessionID: sessionID,
		Payload:   TranscriptPayload{User: user, Model: model},
	}
}

// NewTurnMessage creates a finalized turn message
func NewTurnMessage(sessionID string, turn session.Turn) *ServerMessage {
	return &ServerMessage{
		Type:      TypeTurn,
		SessionID: sessionID,
		Payload:   TurnPayload{User: turn.User, Model: turn.Model, At: turn.At},
	}
}

// NewErrorMessage creates an error message with the localized text for code.
func NewErrorMessage(sessionID, code, locale string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeError,
		SessionID: sessionID,
		Payload: ErrorPayload{
			Code:    code,
			Message: Localize(code, locale),
		},
	}
}

// NewSessionErrorMessage reports a classified session failure.
func NewSessionErrorMessage(sessionID string, err *session.Error, locale string) *ServerMessage {
	return NewErrorMessage(sessionID, ErrorCode(err.Kind), locale)
}

// NewVoicesMessage lists the selectable voices with localized labels.
func NewVoicesMessage(defaultVoice live.Voice, locale string) *ServerMessage {
	voices := live.Voices()
	payload := VoicesPayload{Voices: make([]VoiceInfo, 0, len(voices)), Default: string(defaultVoice)}
	for _, v := range voices {
		payload.Voices = append(payload.Voices, VoiceInfo{Name: string(v), Label: VoiceLabel(v, locale)})
	}
	return &ServerMessage{Type: TypeVoices, Payload: payload}
}

// NewPongMessage answers a ping control message.
func NewPongMessage(sessionID string) *ServerMessage {
	return &ServerMessage{Type: TypePong, SessionID: sessionID}
}

// ErrorCode maps an error kind to its wire code.
func ErrorCode(kind session.ErrorKind) string {
	switch kind {
	case session.PermissionDenied:
		return ErrCodePermissionDenied
	case session.DeviceUnavailable:
		return ErrCodeDeviceUnavailable
	case session.AuthError:
		return ErrCodeAuth
	case session.QuotaExceeded:
		return ErrCodeQuota
	case session.NetworkError:
		return ErrCodeNetwork
	}
	return ErrCodeProvider
}
