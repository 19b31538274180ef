package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/room4-2/livevoice/gemini"
	"github.com/room4-2/livevoice/live"
	"github.com/room4-2/livevoice/messages"
	"github.com/room4-2/livevoice/session"
)

// check opens one Live stream, sends a short silence and closes it. A
// failure is printed the way a session would report it.
func main() {
	_ = godotenv.Load()

	model := flag.String("model", os.Getenv("GEMINI_MODEL"), "Live model name")
	voice := flag.String("voice", "", "Voice name")
	locale := flag.String("locale", "en", "Locale of the error text (ar or en)")
	timeout := flag.Duration("timeout", 15*time.Second, "Connect timeout")
	flag.Parse()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY not set")
	}
	v, err := live.ParseVoice(*voice)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := checkVoice(ctx, apiKey, *model, v); err != nil {
		e := session.Classify(err)
		fmt.Printf("❌ %s: %s\n", e.Kind, messages.Localize(messages.ErrorCode(e.Kind), *locale))
		log.Printf("cause: %v", e.Err)
		os.Exit(1)
	}
	fmt.Println("✅ Live endpoint reachable")
}

func checkVoice(ctx context.Context, apiKey, model string, voice live.Voice) error {
	connector, err := gemini.NewConnector(ctx, apiKey, model)
	if err != nil {
		return err
	}
	log.Printf("🔌 Connecting to %s with voice %s...", connector.Model(), voice)

	stream, err := connector.Connect(ctx, live.Config{
		Voice:             voice,
		SystemInstruction: session.DefaultSystemInstruction,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	// 100ms of silence at 16 kHz
	return stream.SendAudio(make([]byte, 3200))
}
