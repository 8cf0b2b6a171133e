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

	"go.uber.org/zap"

	"vibemate.dev/vibemate/internal/api"
	"vibemate.dev/vibemate/internal/config"
	"vibemate.dev/vibemate/internal/core"
	"vibemate.dev/vibemate/internal/logging"
	"vibemate.dev/vibemate/internal/store"
)

func main() {
	// Load configuration
	foundEnvFile := config.LoadConfig()

	logger, err := logging.New(config.AppConfig.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	if !foundEnvFile {
		logger.Debug("no .env file found, using the environment only")
	}

	if err := config.AppConfig.ValidateServer(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	// Initialize LLM service
	llmService, err := core.NewLLMService(context.Background(),
		config.AppConfig.GeminiAPIKey,
		config.AppConfig.ChatModel,
		config.AppConfig.VisionModel,
		logger,
	)
	if err != nil {
		logger.Fatal("failed to initialize LLM service", zap.Error(err))
	}
	defer llmService.Close()

	chatService := core.NewChatService(dbStore, llmService, config.AppConfig.MemoryMaxMessages, logger)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, logger)
	router := api.NewRouter(apiHandler, []string{config.AppConfig.FrontendURL}, logger)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second, // uploads up to 10 MB
		WriteTimeout: 5 * time.Minute,  // long streamed replies
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}

	// llmService.Close() and dbStore.Close() will be called by their defers.
	logger.Info("server exiting gracefully")
}
