package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"

	httpapi "github.com/username/chatkit/internal/adapters/api/http"
	"github.com/username/chatkit/internal/adapters/api/websocket"
	"github.com/username/chatkit/internal/adapters/llm/ollama"
	"github.com/username/chatkit/internal/adapters/llm/openai"
	"github.com/username/chatkit/internal/adapters/messaging/nats"
	"github.com/username/chatkit/internal/adapters/storage/sqlite"
	"github.com/username/chatkit/internal/domain/metrics"
	"github.com/username/chatkit/internal/domain/ports"
	"github.com/username/chatkit/internal/domain/services"
	"github.com/username/chatkit/internal/pkg/constants"
	"github.com/username/chatkit/internal/pkg/logutil"
	"github.com/username/chatkit/pkg/config"
	"github.com/username/chatkit/pkg/tokenizer"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logutil.Fatal("failed to load configuration", logutil.Fields{"error": err.Error()})
	}
	if err := cfg.Validate(); err != nil {
		logutil.Fatal("invalid configuration", logutil.Fields{"error": err.Error()})
	}

	logutil.SetGlobalLogger(logutil.NewLogger(logutil.LogConfig{
		Level:       logutil.ParseLevel(cfg.Logging.Level),
		Format:      cfg.Logging.Format,
		ServiceName: constants.ServiceName,
	}))

	logutil.Info("starting server", logutil.Fields{
		"host":     cfg.Server.Host,
		"port":     cfg.Server.Port,
		"provider": cfg.Endpoint.Provider,
	})

	// Storage
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		logutil.Fatal("failed to create database directory", logutil.Fields{"error": err.Error()})
	}

	storage, err := sqlite.NewAdapter(cfg.Database.Path, cfg.Database.MigrationsPath)
	if err != nil {
		logutil.Fatal("failed to initialize storage", logutil.Fields{"error": err.Error()})
	}
	defer storage.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := storage.Migrate(ctx); err != nil {
		logutil.Fatal("failed to run migrations", logutil.Fields{"error": err.Error()})
	}

	// Messaging
	messaging, err := nats.NewAdapter(
		cfg.NATS.URL,
		cfg.NATS.JetStream.Enabled,
		cfg.NATS.JetStream.RetentionDays,
	)
	if err != nil {
		logutil.Fatal("failed to initialize messaging", logutil.Fields{"error": err.Error()})
	}
	defer messaging.Close()

	// Model endpoint
	var llm ports.LLMPort
	switch cfg.Endpoint.Provider {
	case "openai":
		llm = openai.NewAdapter(cfg.Endpoint.BaseURL(), cfg.Endpoint.APIKey)
	default:
		llm = ollama.NewClient(cfg.Endpoint.BaseURL())
	}

	// Token counting is best-effort; the server runs without it.
	tok, err := tokenizer.NewTokenizer(cfg.Chat.DefaultModel)
	if err != nil {
		logutil.Warn("tokenizer unavailable, token counts disabled", logutil.Fields{"error": err.Error()})
		tok = nil
	}

	// Domain services
	catalog := services.NewModelCatalog(llm)
	titles := services.NewTitleSynthesizer(llm, cfg.Chat.UseLLMTitles)
	collector := metrics.NewCollector()

	orchestrator := services.NewSessionOrchestrator(storage, llm, messaging, catalog, titles, tok, collector, &services.OrchestratorConfig{
		DefaultModel:         cfg.Chat.DefaultModel,
		SystemPrompt:         cfg.Chat.SystemPrompt,
		UserName:             cfg.Chat.UserName,
		ReachabilityInterval: cfg.Chat.ReachabilityPollInterval(),
		Reducer: &services.ReducerConfig{
			BatchThreshold: cfg.Chat.BatchThreshold,
			FlushInterval:  cfg.Chat.FlushInterval(),
			OpenMarker:     constants.ThinkingOpenMarker,
			CloseMarker:    constants.ThinkingCloseMarker,
		},
	})
	orchestrator.Start(ctx)

	// WebSocket hub
	wsHub := websocket.NewHub(messaging)
	if err := wsHub.Start(ctx); err != nil {
		logutil.Fatal("failed to start WebSocket hub", logutil.Fields{"error": err.Error()})
	}

	// HTTP server
	if cfg.Logging.Level == constants.LogLevelDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	apiHandlers := httpapi.NewAPIHandlers(storage, messaging, orchestrator, catalog, collector, wsHub, messaging)
	apiHandlers.SetupRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logutil.Info("listening", logutil.Fields{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logutil.Fatal("server failed", logutil.Fields{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logutil.Info("shutting down")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logutil.Error("forced shutdown", logutil.Fields{"error": err.Error()})
	}

	logutil.Info("server exited")
}
