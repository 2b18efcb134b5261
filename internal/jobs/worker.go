package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

// Worker consumes generation jobs from the Redis-backed queues.
type Worker struct {
	server    *asynq.Server
	processor *Processor
}

// WorkerConfig holds worker configuration
type WorkerConfig struct {
	RedisURL    string
	Concurrency int
	RetryDelay  time.Duration
	Processor   *Processor
}

// NewWorker creates a queue worker.
func NewWorker(config *WorkerConfig) (*Worker, error) {
	redisOpt, err := asynq.ParseRedisURI(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	retryDelay := config.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 30 * time.Second
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: config.Concurrency,
			Queues: map[string]int{
				QueueCritical: 6, // High priority
				QueueDefault:  3, // Normal priority
				QueueLow:      1, // Low priority (scenarios hold a slot for a long time)
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Flat delay; retried submissions go back to 'pending'
				// and are safe to re-run whenever.
				return retryDelay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task %s failed: %v", task.Type(), err)
			}),
		},
	)

	return &Worker{
		server:    server,
		processor: config.Processor,
	}, nil
}

// Start registers the task handlers and blocks serving the queues.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()

	mux.HandleFunc(TypeGenerateImage, w.processor.HandleGenerateImage)
	mux.HandleFunc(TypeGenerateScenario, w.processor.HandleGenerateScenario)

	log.Println("Starting generation worker...")

	if err := w.server.Run(mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	return nil
}

// Stop stops the worker gracefully.
func (w *Worker) Stop() {
	log.Println("Shutting down generation worker...")
	w.server.Shutdown()
}
