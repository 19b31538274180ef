package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/room4-2/livevoice/audio"
	"github.com/room4-2/livevoice/audio/sox"
	"github.com/room4-2/livevoice/messages"
)

// serverMessage mirrors messages.ServerMessage with a deferred payload.
type serverMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// replyPlayer queues the server's binary audio back to back on a local
// sox speaker.
type replyPlayer struct {
	out  audio.Output
	next int64
}

func newReplyPlayer() (*replyPlayer, error) {
	out, err := sox.Speaker{}.Open(audio.PCM16Mono24K)
	if err != nil {
		return nil, err
	}
	return &replyPlayer{out: out}, nil
}

func (p *replyPlayer) play(pcm []byte) {
	samples := audio.PCM16ToFloat32(pcm)
	if len(samples) == 0 {
		return
	}
	at := max(p.out.Position(), p.next)
	if _, err := p.out.Schedule(samples, at, nil); err != nil {
		return
	}
	p.next = at + int64(len(samples))
}

func send(conn *websocket.Conn, msgType string, payload any) error {
	raw, err := sonic.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := sonic.Marshal(messages.ClientMessage{Type: msgType, Payload: raw})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "WebSocket server URL")
	audioFile := flag.String("file", "examples/user.pcm", "Audio file to send (16 kHz PCM16 or WAV)")
	voice := flag.String("voice", "", "Voice name (empty for the server default)")
	wait := flag.Duration("wait", 30*time.Second, "How long to wait for the reply")
	flag.Parse()

	log.Printf("🔌 Connecting to %s...", *serverURL)

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	log.Println("✅ Connected!")

	player, err := newReplyPlayer()
	if err != nil {
		log.Fatalf("Failed to open speaker (is sox installed?): %v", err)
	}
	defer player.out.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	open := make(chan struct{})
	var openOnce sync.Once

	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}

			if messageType == websocket.BinaryMessage {
				player.play(message)
				continue
			}

			var msg serverMessage
			if err := sonic.Unmarshal(message, &msg); err != nil {
				log.Println("Parse error:", err)
				continue
			}

			switch msg.Type {
			case messages.TypeStatus:
				var payload messages.StatusPayload
				_ = sonic.Unmarshal(msg.Payload, &payload)
				log.Printf("📊 Status: %s (%s)", payload.Status, payload.State)
				if payload.State == "open" {
					openOnce.Do(func() { close(open) })
				}

			case messages.TypeTranscript:
				var payload messages.TranscriptPayload
				_ = sonic.Unmarshal(msg.Payload, &payload)
				fmt.Printf("\r📝 you: %s | model: %s", payload.User, payload.Model)

			case messages.TypeTurn:
				var payload messages.TurnPayload
				_ = sonic.Unmarshal(msg.Payload, &payload)
				fmt.Printf("\n--- Turn complete ---\n🧑 %s\n🤖 %s\n", payload.User, payload.Model)

			case messages.TypeVoices:
				var payload messages.VoicesPayload
				_ = sonic.Unmarshal(msg.Payload, &payload)
				log.Printf("🎙️ %d voices, default %s", len(payload.Voices), payload.Default)

			case messages.TypeError:
				var payload messages.ErrorPayload
				_ = sonic.Unmarshal(msg.Payload, &payload)
				log.Printf("❌ Error %s: %s", payload.Code, payload.Message)
			}
		}
	}()

	if err := send(conn, messages.TypeStart, messages.StartPayload{Voice: *voice, Microphone: messages.MicGranted}); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	select {
	case <-open:
	case <-done:
		log.Fatal("Connection closed before the session opened")
	case <-time.After(15 * time.Second):
		log.Fatal("⏰ Timeout waiting for the session to open")
	}

	log.Printf("📤 Sending audio file: %s", *audioFile)
	audioData, err := loadAudioFile(*audioFile)
	if err != nil {
		log.Fatalf("Failed to load audio: %v", err)
	}

	// Send audio in chunks (simulating real-time streaming)
	chunkSize := 3200 // 100ms at 16kHz
	for i := 0; i < len(audioData); i += chunkSize {
		end := min(i+chunkSize, len(audioData))
		if err := conn.WriteMessage(websocket.BinaryMessage, audioData[i:end]); err != nil {
			log.Printf("Send error: %v", err)
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	log.Println("✅ Audio sent, waiting for response...")

	select {
	case <-done:
		log.Println("Connection closed")
	case <-interrupt:
		log.Println("\n👋 Interrupted, closing...")
	case <-time.After(*wait):
		log.Println("⏰ Done waiting")
	}

	_ = send(conn, messages.TypeStop, struct{}{})
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// loadAudioFile loads PCM or WAV file and returns raw PCM bytes
func loadAudioFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Check if it's a WAV file (starts with "RIFF")
	if len(data) > 44 && string(data[0:4]) == "RIFF" {
		log.Println("📁 Detected WAV file, skipping header")
		data = data[44:]
	} else {
		log.Println("📁 Detected raw PCM file")
	}
	if len(data)%2 == 1 {
		data = data[:len(data)-1]
	}
	return data, nil
}
