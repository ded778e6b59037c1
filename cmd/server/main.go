package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fisheries.gov/smartsearch/internal/api"
	"fisheries.gov/smartsearch/internal/config"
	"fisheries.gov/smartsearch/internal/core"
	"fisheries.gov/smartsearch/internal/storage"
	"fisheries.gov/smartsearch/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	level, err := zerolog.ParseLevel(config.AppConfig.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Command line flag for seeding the prompt store
	seedPromptsFlag := flag.Bool("seed-prompts", false, "Seed default prompts for roles without one and exit")
	flag.Parse()

	// Initialize database store
	dbStore, err := store.NewPostgresStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer dbStore.Close()

	// Initialize admin service
	adminService := core.NewAdminService(dbStore)

	// Handle prompt seeding if flag is set
	if *seedPromptsFlag {
		seeded, err := core.SeedPrompts(context.Background(), adminService)
		if err != nil {
			log.Fatal().Err(err).Msg("Prompt seeding failed")
		}
		log.Info().Int("seeded", seeded).Msg("Prompt seeding complete. Exiting.")
		os.Exit(0)
	}

	// Initialize LLM service
	if config.AppConfig.GeminiAPIKey == "" {
		log.Fatal().Msg("GEMINI_API_KEY environment variable is required")
	}
	llmService, err := core.NewLLMService(context.Background(), config.AppConfig.GeminiAPIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize LLM service")
	}
	defer llmService.Close()

	// Initialize chat service
	chatService := core.NewChatService(dbStore, adminService, llmService)

	// Initialize object storage for document files when configured
	var objects api.ObjectPresigner
	if config.AppConfig.S3Endpoint != "" {
		objectStore, err := storage.NewObjectStore(storage.Config{
			Endpoint:  config.AppConfig.S3Endpoint,
			Region:    config.AppConfig.S3Region,
			AccessKey: config.AppConfig.S3AccessKey,
			SecretKey: config.AppConfig.S3SecretKey,
			Bucket:    config.AppConfig.S3Bucket,
			UseSSL:    config.AppConfig.S3UseSSL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize object storage")
		}
		objects = objectStore
	} else {
		log.Warn().Msg("S3_ENDPOINT not set, document file URLs disabled")
	}

	// Initialize API handler and router
	apiHandler := api.NewHandler(adminService, chatService, objects)
	router := api.NewRouter(apiHandler, config.AppConfig.CORSAllowOrigin)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Info().Str("addr", serverAddr).Msg("Starting server. Press Ctrl+C to quit.")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("addr", serverAddr).Msg("Could not listen")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting gracefully")
}
