package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names registered on the queue.
const (
	TypeGenerateImage    = "generation:image"
	TypeGenerateScenario = "generation:scenario"
)

// Queue names by priority. Image jobs are cheap and interactive-ish;
// scenarios run for many minutes and go to the low queue.
const (
	QueueCritical = "generation:critical"
	QueueDefault  = "generation:default"
	QueueLow      = "generation:low"
)

// GenerateImagePayload identifies the ai_generations row to drive.
type GenerateImagePayload struct {
	GenerationID int64 `json:"generationId"`
}

// GenerateScenarioPayload identifies the ai_scenarios row to drive.
type GenerateScenarioPayload struct {
	ScenarioID int64 `json:"scenarioId"`
}

// NewGenerateImageTask builds the queue task for a single image generation.
// One retry: a transient submission failure gets a second chance, anything
// past that is terminal.
func NewGenerateImageTask(generationID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(GenerateImagePayload{GenerationID: generationID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image task payload: %w", err)
	}
	return asynq.NewTask(TypeGenerateImage, payload,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(1),
		asynq.Timeout(20*time.Minute),
	), nil
}

// NewGenerateScenarioTask builds the queue task for a multi-scene scenario.
// No retries: re-running a partially generated scenario would re-bill
// provider work for scenes that already rendered.
func NewGenerateScenarioTask(scenarioID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(GenerateScenarioPayload{ScenarioID: scenarioID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scenario task payload: %w", err)
	}
	return asynq.NewTask(TypeGenerateScenario, payload,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(0),
		asynq.Timeout(90*time.Minute),
	), nil
}
