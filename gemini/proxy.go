package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/room4-2/livevoice/audio"
	"github.com/room4-2/livevoice/live"
)

// DefaultModel is the native-audio Live model used when none is configured.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

var (
	_ live.Connector = (*Connector)(nil)
	_ live.Stream    = (*Stream)(nil)
)

// Connector opens Gemini Live streams over one shared GenAI client.
type Connector struct {
	client *genai.Client
	model  string
}

// NewConnector creates the GenAI client. Connections are opened lazily by
// Connect.
func NewConnector(ctx context.Context, apiKey, model string) (*Connector, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Connector{client: client, model: model}, nil
}

// Model returns the Live model name.
func (c *Connector) Model() string { return c.model }

// Connect establishes a Live session configured for audio responses.
func (c *Connector) Connect(ctx context.Context, cfg live.Config) (live.Stream, error) {
	session, err := c.client.Live.Connect(ctx, c.model, connectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Live API: %w", err)
	}
	log.Printf("✅ Connected to Gemini Live (%s, voice %s)", c.model, cfg.Voice)
	return &Stream{session: session}, nil
}

func connectConfig(cfg live.Config) *genai.LiveConnectConfig {
	voice := cfg.Voice
	if voice == "" {
		voice = live.DefaultVoice
	}
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: string(voice),
				},
			},
		},
	}
	if cfg.SystemInstruction != "" {
		lc.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemInstruction}},
		}
	}
	if cfg.InputTranscription {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

// Stream wraps one genai Live session.
type Stream struct {
	session *genai.Session

	mu     sync.RWMutex
	closed bool
}

// SendAudio forwards one PCM16 16 kHz frame.
func (s *Stream) SendAudio(pcm []byte) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return live.ErrClosed
	}

	err := s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{
			MIMEType: audio.PCM16Mono16K.MIMEType(),
			Data:     pcm,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

// Receive blocks for the next server message.
func (s *Stream) Receive() ([]live.Event, error) {
	resp, err := s.session.Receive()
	if err != nil {
		s.mu.RLock()
		closed := s.closed
		s.mu.RUnlock()
		if closed || isOrderlyClose(err) {
			return nil, live.ErrClosed
		}
		return nil, err
	}
	return translate(resp), nil
}

// Close terminates the Live connection. Idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.session.Close()
}

func isOrderlyClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return false
}

// translate flattens one server message into ordered events: audio,
// interruption, user transcript, model transcript, then turn completion.
// Fragments carried alongside a completion therefore precede it.
func translate(resp *genai.LiveServerMessage) []live.Event {
	sc := resp.ServerContent
	if sc == nil {
		return nil
	}

	var events []live.Event
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			events = append(events, live.Event{Kind: live.EventAudio, Audio: part.InlineData.Data})
		}
	}
	if sc.Interrupted {
		events = append(events, live.Event{Kind: live.EventInterrupted})
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		events = append(events, live.Event{Kind: live.EventInputTranscript, Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		events = append(events, live.Event{Kind: live.EventOutputTranscript, Text: sc.OutputTranscription.Text})
	}
	if sc.TurnComplete {
		events = append(events, live.Event{Kind: live.EventTurnComplete})
	}
	return events
}
