package messages

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Client message types
const (
	TypeStart   = "start"
	TypeStop    = "stop"
	TypeAudio   = "audio"
	TypeControl = "control"
)

// Microphone permission outcomes reported by the client with a start request.
const (
	MicGranted     = "granted"
	MicDenied      = "denied"
	MicUnavailable = "unavailable"
)

// ClientMessage represents a message from frontend client
type ClientMessage struct {
	Type    string          `json:"type"` // "start", "stop", "audio", "control"
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StartPayload asks for a new session with the given voice. Microphone is
// the outcome of the client's permission prompt; empty means granted.
type StartPayload struct {
	Voice      string `json:"voice,omitempty"`
	Microphone string `json:"microphone,omitempty"`
}

// AudioPayload contains audio data from client
type AudioPayload struct {
	Data string `json:"data"` // Base64-encoded PCM16 16 kHz mono
}

// ControlPayload contains control commands
type ControlPayload struct {
	Action string `json:"action"` // "ping"
}

// DecodeClientMessage parses a text frame from the client.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode client message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("decode client message: missing type")
	}
	return &msg, nil
}

// DecodePayload unmarshals the payload into v. A missing payload leaves v
// untouched.
func (m *ClientMessage) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// TwilioMessage is an inbound Twilio Media Streams event: connected, start,
// media, mark or stop.
type TwilioMessage struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid,omitempty"`
	Start     *TwilioStart `json:"start,omitempty"`
	Media     *Media       `json:"media,omitempty"`
}

type TwilioStart struct {
	StreamSid string `json:"streamSid"`
	CallSid   string `json:"callSid"`
}

// DecodeTwilioMessage parses a Twilio Media Streams frame.
func DecodeTwilioMessage(data []byte) (*TwilioMessage, error) {
	var msg TwilioMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode twilio message: %w", err)
	}
	if msg.Event == "" {
		return nil, fmt.Errorf("decode twilio message: missing event")
	}
	return &msg, nil
}
