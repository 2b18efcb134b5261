package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/trihai306/agentphone-backend/internal/ai"
	"github.com/trihai306/agentphone-backend/internal/broadcast"
	"github.com/trihai306/agentphone-backend/internal/database"
	"github.com/trihai306/agentphone-backend/internal/jobs"
	"github.com/trihai306/agentphone-backend/internal/video"
)

func main() {
	log.Println("AgentPhone generation worker starting...")

	if err := godotenv.Load(); err != nil {
		log.Println("WARNING: Could not find or load .env file. Relying on system environment variables.")
	}

	tempDir := getEnv("TEMP_DIR", "/tmp/agentphone")
	redisURL := getEnv("REDIS_URL", "redis://localhost:6379")

	// 1. FFmpeg helper (both binaries must be on PATH)
	ffmpeg, err := video.NewFFmpegHelper(tempDir)
	if err != nil {
		log.Fatalf("Failed to initialize FFmpeg: %v", err)
	}
	log.Println("FFmpeg initialized")

	// 2. Clip downloader
	downloader := video.NewDownloader(tempDir, getEnvInt64("MAX_CLIP_SIZE", 0))

	// 3. Provider clients
	var providers []ai.Provider

	if token := os.Getenv("REPLICATE_API_TOKEN"); token != "" {
		providers = append(providers, ai.NewReplicateClient("", token, 60*time.Second))
		log.Println("Replicate client initialized")
	} else {
		log.Println("WARNING: REPLICATE_API_TOKEN not set, replicate/* models disabled")
	}

	if key := os.Getenv("KLING_API_KEY"); key != "" {
		providers = append(providers, ai.NewKlingClient(getEnv("KLING_BASE_URL", ""), key, 60*time.Second))
		log.Println("Kling client initialized")
	} else {
		log.Println("WARNING: KLING_API_KEY not set, kling models disabled")
	}

	if len(providers) == 0 {
		log.Fatal("No provider credentials configured, nothing to run jobs against")
	}

	// 4. Database
	db, err := database.OpenDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// 5. Broadcast bus
	broadcaster, err := broadcast.NewRedisBroadcaster()
	if err != nil {
		log.Fatalf("Failed to connect broadcast bus: %v", err)
	}
	defer broadcaster.Close()

	// 6. Processor + worker server
	processor := &jobs.Processor{
		DB:           db,
		Providers:    ai.NewRegistry(providers...),
		Broadcaster:  broadcaster,
		FFmpeg:       ffmpeg,
		Downloader:   downloader,
		PollInterval: getEnvDuration("POLL_INTERVAL", 0),
		PollTimeout:  getEnvDuration("POLL_TIMEOUT", 0),
	}

	worker, err := jobs.NewWorker(&jobs.WorkerConfig{
		RedisURL:    redisURL,
		Concurrency: getEnvInt("WORKER_CONCURRENCY", 5),
		RetryDelay:  getEnvDuration("RETRY_DELAY", 0),
		Processor:   processor,
	})
	if err != nil {
		log.Fatalf("Failed to initialize worker: %v", err)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := worker.Start(); err != nil {
			errChan <- err
		}
	}()

	log.Println("AgentPhone worker ready - waiting for jobs...")

	select {
	case <-sigChan:
		log.Println("Shutdown signal received, stopping gracefully...")
		worker.Stop()
	case err := <-errChan:
		log.Fatalf("Worker error: %v", err)
	}

	log.Println("AgentPhone worker stopped")
}

// getEnv gets environment variable with default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets integer environment variable with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvInt64 gets int64 environment variable with default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		var intValue int64
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable (e.g. "30s") with default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
