package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storyreel/backend/internal/api"
	"github.com/storyreel/backend/internal/config"
	"github.com/storyreel/backend/internal/db"
	"github.com/storyreel/backend/internal/pipeline"
	"github.com/storyreel/backend/internal/queue"
	"github.com/storyreel/backend/internal/services"
	"github.com/storyreel/backend/internal/storage"
	"github.com/storyreel/backend/internal/worker"
)

func main() {
	log.Println("Starting StoryReel API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize storage
	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	log.Println("Initialized Supabase storage")

	// Create API handler
	handler := api.NewHandler(database, q, stor, cfg.DefaultSceneCount)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCtx context.Context
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		plannerSvc := services.NewPlannerService(cfg.OpenAIKey)
		imageSvc := services.NewImageService(cfg.OpenAIKey)
		ffmpegSvc := services.NewFFmpegService()

		// Video provider: Kling preferred, Veo as the alternative
		var videoSvc pipeline.VideoGenerator
		if cfg.KlingAPIKey != "" {
			videoSvc = services.NewKlingService(cfg.KlingAPIKey, cfg.KlingBaseURL)
			log.Println("Video provider: Kling image-to-video")
		} else {
			videoSvc = services.NewVeoService(cfg.GeminiKey, cfg.VeoModel)
			log.Printf("Video provider: Veo (model: %s)", cfg.VeoModel)
		}

		p := pipeline.New(database, stor, plannerSvc, imageSvc, videoSvc, ffmpegSvc, cfg.StitchTempDir, cfg.MaxConcurrentJobs)

		w := worker.New(database, q, p)

		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
