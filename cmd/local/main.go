// Command local runs a voice session in-process against the default audio
// devices, using SoX's rec and play.
//
// Usage:
//
//	local [--voice Kore] [--model name] [--locale en]
//	local voices
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/room4-2/livevoice/audio/sox"
	"github.com/room4-2/livevoice/gemini"
	"github.com/room4-2/livevoice/live"
	"github.com/room4-2/livevoice/messages"
	"github.com/room4-2/livevoice/session"
)

var (
	flagVoice       string
	flagModel       string
	flagInstruction string
	flagLocale      string
	flagFrameSize   int
	flagRec         string
	flagPlay        string
)

var rootCmd = &cobra.Command{
	Use:   "local",
	Short: "Talk to the live voice assistant from this machine",
	Long: `Start a voice conversation using the local microphone and speakers.

Requires SoX (rec and play) and GEMINI_API_KEY. Press Ctrl+C to stop.

Examples:
  local
  local --voice Kore --locale en`,
	SilenceUsage: true,
	RunE:         runSession,
}

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the available voices",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, v := range live.Voices() {
			marker := " "
			if v == live.DefaultVoice {
				marker = "*"
			}
			fmt.Printf("%s %-8s %s\n", marker, v, messages.VoiceLabel(v, flagLocale))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLocale, "locale", "ar", "Locale for labels and errors (ar or en)")
	rootCmd.Flags().StringVar(&flagVoice, "voice", "", "Voice name (default Zephyr)")
	rootCmd.Flags().StringVar(&flagModel, "model", "", "Live model name")
	rootCmd.Flags().StringVar(&flagInstruction, "instruction", session.DefaultSystemInstruction, "System instruction")
	rootCmd.Flags().IntVar(&flagFrameSize, "frame-size", session.DefaultFrameSize, "Capture frame size in samples")
	rootCmd.Flags().StringVar(&flagRec, "rec", "rec", "SoX capture command")
	rootCmd.Flags().StringVar(&flagPlay, "play", "play", "SoX playback command")
	rootCmd.AddCommand(voicesCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY not set")
	}
	voice, err := live.ParseVoice(flagVoice)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connector, err := gemini.NewConnector(ctx, apiKey, flagModel)
	if err != nil {
		return err
	}

	s, err := session.New(session.Options{
		ID:                "local",
		Voice:             voice,
		SystemInstruction: flagInstruction,
		FrameSize:         flagFrameSize,
		Connector:         connector,
		Microphone:        sox.Microphone{Binary: flagRec},
		Speaker:           sox.Speaker{Binary: flagPlay},
		OnUpdate:          printUpdate,
	})
	if err != nil {
		return err
	}

	if err := s.Start(ctx); err != nil {
		var se *session.Error
		if errors.As(err, &se) {
			return errors.New(messages.Localize(messages.ErrorCode(se.Kind), flagLocale))
		}
		return err
	}
	fmt.Println("🎙️ Listening... press Ctrl+C to stop")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		s.Stop()
		return nil
	})
	g.Go(func() error {
		<-s.Done()
		stop()
		if e := s.Err(); e != nil {
			return errors.New(messages.Localize(messages.ErrorCode(e.Kind), flagLocale))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("\n👋 %d turns, %d frames sent\n", s.Transcript().Len(), s.FramesSent())
	return nil
}

func printUpdate(u session.Update) {
	switch u.Kind {
	case session.UpdateState:
		fmt.Printf("\n📊 %s (%s)\n", u.Status, u.State)
	case session.UpdateTranscript:
		if u.User != "" || u.Model != "" {
			fmt.Printf("\r🧑 %s | 🤖 %s", u.User, u.Model)
		}
	case session.UpdateTurn:
		fmt.Printf("\n--- turn ---\n🧑 %s\n🤖 %s\n", u.Turn.User, u.Turn.Model)
	}
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
