package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/trihai306/agentphone-backend/internal/ai"
	"github.com/trihai306/agentphone-backend/internal/broadcast"
	"github.com/trihai306/agentphone-backend/internal/database"
	"github.com/trihai306/agentphone-backend/internal/handlers"
	"github.com/trihai306/agentphone-backend/internal/jobs"
	"github.com/trihai306/agentphone-backend/internal/routes"
)

func main() {
	// 0. --- Load Environment Variables (.env) ---
	if err := godotenv.Load(); err != nil {
		log.Println("WARNING: Could not find or load .env file. Relying on system environment variables.")
	}

	// 1. --- Database Connection ---
	db, err := database.OpenDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// 2. --- Queue Client ---
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		log.Fatalf("Failed to parse REDIS_URL: %v", err)
	}
	queue := asynq.NewClient(redisOpt)
	defer queue.Close()

	// 3. --- Broadcast Bus ---
	broadcaster, err := broadcast.NewRedisBroadcaster()
	if err != nil {
		log.Fatalf("Failed to connect broadcast bus: %v", err)
	}
	defer broadcaster.Close()

	// 4. --- Script Service (optional) ---
	// Scenario auto-scripting needs a Gemini key; everything else works
	// without it.
	var scripts *ai.ScriptService
	if geminiKey := os.Getenv("GEMINI_API_KEY"); geminiKey != "" {
		scripts, err = ai.NewScriptService(geminiKey)
		if err != nil {
			log.Fatalf("Failed to initialize script service: %v", err)
		}
		defer scripts.Close()
		log.Println("Script service initialized")
	} else {
		log.Println("WARNING: GEMINI_API_KEY not set, scenario auto-scripting disabled")
	}

	// --- Application Setup ---
	app := &handlers.Handlers{
		DB:          db,
		Queue:       queue,
		Broadcaster: broadcaster,
		Scripts:     scripts,
	}

	// --- Background Sweeper ---
	// Fails and refunds records a dead worker abandoned in 'processing'.
	sweeper := &jobs.Processor{DB: db, Broadcaster: broadcaster}
	go func() {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()

		log.Println("Background sweeper started: monitoring for stuck generations...")
		for range ticker.C {
			sweeper.SweepStuck(context.Background(), 2*time.Hour)
		}
	}()

	// --- Router Setup ---
	router := routes.SetupRouter(app)

	// --- Start Server ---
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Starting AgentPhone API server on port %s...", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
