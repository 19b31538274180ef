package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/room4-2/livevoice/config"
	"github.com/room4-2/livevoice/gemini"
	"github.com/room4-2/livevoice/server"
	"github.com/room4-2/livevoice/session"
)

type httpServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = session.DefaultSystemInstruction
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connector, err := gemini.NewConnector(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatalf("Failed to create Gemini connector: %v", err)
	}
	log.Printf("🤖 Using model %s", connector.Model())

	sessionManager := session.NewManager(ctx, cfg, connector)
	go sessionManager.StartCleanupRoutine(ctx)

	var servers []httpServer
	switch cfg.ServerType {
	case "websocket":
		servers = append(servers, server.NewServerWebsocket(cfg, sessionManager))
	case "twilio":
		servers = append(servers, server.NewWebsocketTwilio(cfg, sessionManager))
	case "both":
		servers = append(servers,
			server.NewServerWebsocket(cfg, sessionManager),
			server.NewWebsocketTwilio(cfg, sessionManager),
		)
	default:
		log.Fatalf("Unknown SERVER_TYPE: %s", cfg.ServerType)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Received shutdown signal...")
		sessionManager.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}
