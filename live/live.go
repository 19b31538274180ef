// Package live defines the contract between a voice session and a
// bidirectional conversational audio endpoint.
package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by Stream.Receive when the endpoint closed the
// stream in an orderly way.
var ErrClosed = errors.New("live stream closed")

// Voice is one of the endpoint's prebuilt voices.
type Voice string

const (
	VoiceZephyr Voice = "Zephyr"
	VoiceKore   Voice = "Kore"
	VoicePuck   Voice = "Puck"
	VoiceCharon Voice = "Charon"
	VoiceFenrir Voice = "Fenrir"
)

// DefaultVoice is used when none is selected.
const DefaultVoice = VoiceZephyr

// Voices lists the selectable voices in display order.
func Voices() []Voice {
	return []Voice{VoiceZephyr, VoiceKore, VoicePuck, VoiceCharon, VoiceFenrir}
}

// ParseVoice matches name case-insensitively against Voices. An empty name
// yields DefaultVoice.
func ParseVoice(name string) (Voice, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultVoice, nil
	}
	for _, v := range Voices() {
		if strings.EqualFold(string(v), name) {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown voice %q", name)
}

// Config is sent when the stream is opened. The response modality is
// always audio.
type Config struct {
	Voice               Voice
	SystemInstruction   string
	InputTranscription  bool
	OutputTranscription bool
}

// EventKind classifies inbound server events.
type EventKind int

const (
	// EventAudio carries synthesized PCM16 speech in Event.Audio.
	EventAudio EventKind = iota + 1
	// EventInterrupted signals barge-in: the user started speaking over the model.
	EventInterrupted
	// EventInputTranscript carries a fragment of the user's speech in Event.Text.
	EventInputTranscript
	// EventOutputTranscript carries a fragment of the model's speech in Event.Text.
	EventOutputTranscript
	// EventTurnComplete ends the current turn.
	EventTurnComplete
)

func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventInterrupted:
		return "interrupted"
	case EventInputTranscript:
		return "input_transcript"
	case EventOutputTranscript:
		return "output_transcript"
	case EventTurnComplete:
		return "turn_complete"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one inbound server event.
type Event struct {
	Kind  EventKind
	Audio []byte // PCM16 little-endian, 24 kHz mono
	Text  string
}

// Connector opens streams. Implementations hold the provider client.
type Connector interface {
	Connect(ctx context.Context, cfg Config) (Stream, error)
}

// Stream is an open bidirectional session.
type Stream interface {
	// SendAudio transmits one PCM16 16 kHz mono frame.
	SendAudio(pcm []byte) error
	// Receive blocks for the next server message and returns its events in
	// delivery order. It returns ErrClosed after an orderly close.
	Receive() ([]Event, error)
	// Close releases the connection. Idempotent.
	Close() error
}
