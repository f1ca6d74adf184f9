// Lingo Labs - Real-time voice language tutoring server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/lingo-labs/internal/config"
	"github.com/ashureev/lingo-labs/internal/feedback"
	"github.com/ashureev/lingo-labs/internal/middleware"
	"github.com/ashureev/lingo-labs/internal/relay"
	"github.com/ashureev/lingo-labs/internal/scenario"
	"github.com/ashureev/lingo-labs/internal/session"
	"github.com/ashureev/lingo-labs/internal/speech"
	"github.com/ashureev/lingo-labs/internal/transcribe"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	clips, err := speech.NewClipStore(cfg.ClipDBPath)
	if err != nil {
		slog.Error("Failed to initialize clip index", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := clips.Close(); closeErr != nil {
			slog.Error("Failed to close clip index", "error", closeErr)
		}
	}()

	synthesizer, err := speech.NewSynthesizer(cfg.TTSURL, cfg.TTSKey, cfg.AudioDir, clips)
	if err != nil {
		slog.Error("Failed to initialize synthesizer", "error", err)
		os.Exit(1)
	}

	transcriber := transcribe.New(transcribe.Options{
		URL:     cfg.RecognizerURL,
		APIKey:  cfg.RecognizerKey,
		Timeout: cfg.TranscribeTimeout,
	})

	pacer := feedback.NewPacer(cfg.ModelMinInterval, cfg.ModelPerMinute)
	generator, err := feedback.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, pacer)
	if err != nil {
		slog.Error("Failed to initialize feedback generator", "error", err)
		os.Exit(1)
	}

	scenarios, err := scenario.Load()
	if err != nil {
		slog.Error("Failed to load scenario catalog", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	registry := session.NewRegistry()

	// Initialize handlers.
	wsHandler := relay.NewHandler(registry, transcriber, generator, synthesizer, scenarios, relay.Timeouts{
		Idle: cfg.IdleTimeout,
		// A turn spans transcription plus up to three model stages and
		// synthesis, so its ceiling sits well above the transcription one.
		Turn:       cfg.TranscribeTimeout + time.Minute,
		QuizAnswer: cfg.QuizAnswerTimeout,
	}, cfg.FrontendURL, cfg.IsDevelopment())
	audioHandler := speech.NewHandler(cfg.AudioDir)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/healthz"))
	r.Use(middleware.CORS([]string{"*"}))

	// Clip routes.
	audioHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/tutor", wsHandler.ServeHTTP)

	// Create server. WebSocket connections are long-lived, so there is
	// no write timeout; per-frame deadlines live in the handlers.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start clip sweeper.
	speech.StartClipSweeper(ctx, clips, cfg.AudioDir, cfg.ClipTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
