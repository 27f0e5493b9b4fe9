package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spiritualconnect/internal/api"
	"spiritualconnect/internal/auth"
	"spiritualconnect/internal/config"
	"spiritualconnect/internal/db"
	"spiritualconnect/internal/logger"
	"spiritualconnect/internal/middleware"
	"spiritualconnect/internal/openai"
	"spiritualconnect/internal/repository"
	"spiritualconnect/internal/services"
	"spiritualconnect/internal/services/chat"
	"spiritualconnect/internal/services/presence"
	"spiritualconnect/internal/services/realtime"
	"spiritualconnect/internal/telemetry"

	"go.uber.org/zap"
)

var version = "dev"

/*
LEARNING: GRACEFUL SHUTDOWN

Startup wires dependencies bottom-up. Shutdown runs top-down:
  1. stop accepting HTTP requests
  2. close the hub so no new events reach the gateway
  3. drain the per-room sequencer so accepted writes finish
  4. close the database, then flush traces
*/

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Log.Sync()
	log := logger.Log

	log.Info("🚀 Starting SpiritualConnect chat service", zap.String("version", version))

	// Tracing first so everything after is traced
	jaegerShutdown, err := telemetry.InitJaeger("spiritualconnect-chat", version, cfg.JaegerEndpoint, cfg.TraceSampleRatio)
	if err != nil {
		log.Warn("⚠️  Failed to initialize Jaeger, continuing without tracing", zap.Error(err))
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Warn("⚠️  Failed to shutdown Jaeger", zap.Error(err))
		}
	}()

	// Stores
	var (
		messageRepo chat.MessageRepository
		directory   realtime.UserDirectory
		health      api.HealthChecker
	)
	switch cfg.StoreDriver {
	case "memory":
		messageRepo = repository.NewMemoryMessageRepository()
		directory = repository.NewMemoryUserRepository()
		log.Warn("using in-memory store, messages are lost on restart")
	default:
		database, err := db.NewGorm(cfg)
		if err != nil {
			log.Fatal("❌ Failed to connect to database", zap.Error(err))
		}
		defer func() {
			if err := database.Close(); err != nil {
				log.Warn("failed to close database", zap.Error(err))
			}
		}()
		messageRepo = repository.NewMessageRepository(database.DB)
		directory = repository.NewUserRepository(database.DB)
		health = database
	}

	// Per-room writer pool, shared by REST and the channel
	sequencer := chat.NewSequencer(cfg.SequencerShards, cfg.SequencerQueue, logger.Named("sequencer"))
	sequencer.Start()

	gateway := chat.NewGateway(messageRepo, sequencer, logger.Named("gateway"))

	registry := presence.NewRegistry()
	hub := realtime.NewHub(registry, gateway, directory, realtime.Options{
		SendTimeout:     cfg.SendTimeout,
		SendBuffer:      cfg.SendBuffer,
		MaxMessageBytes: cfg.MaxMessageBytes,
	}, logger.Named("realtime"))
	gateway.SetPublisher(hub)
	hub.Start()

	wsHandler := realtime.NewWebSocketHandler(hub, logger.Named("websocket"))

	var completer services.ChatCompleter
	if cfg.OpenAIAPIKey != "" {
		completer = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		log.Info("✓ AI client initialized", zap.String("model", cfg.OpenAIModel))
	}
	assistant := services.NewAssistantService(completer, logger.Named("assistant"))

	var tokens middleware.TokenVerifier
	if cfg.JWTSecret != "" {
		tokens = auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer)
	} else {
		log.Warn("⚠️  JWT_SECRET not set, every connection is anonymous")
	}

	handler := api.NewHandler(gateway, hub, assistant, health, wsHandler, logger.Named("api"))
	router := api.SetupRoutes(handler, api.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Tokens:         tokens,
		RequireAuth:    cfg.RequireAuth,
	})

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("🌐 Server listening",
			zap.String("addr", cfg.Address()),
			zap.String("store", cfg.StoreDriver),
			zap.Bool("require_auth", cfg.RequireAuth),
		)
		log.Info("📚 Endpoints: GET /api/messages/room/{room}, POST /api/messages, GET /api/users/online, POST /api/ai/ask, GET /api/health, WS /ws/chat")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("❌ Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn("⚠️  Server forced to shutdown", zap.Error(err))
	}

	hub.Shutdown()
	sequencer.Shutdown()

	log.Info("✓ Server shutdown complete")
}
