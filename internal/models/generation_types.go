package models

import (
	"database/sql"
	"time"
)

// Lifecycle statuses shared by 'ai_generations', 'ai_scenarios' and
// 'ai_scenario_scenes'. A record moves pending -> processing -> completed/failed
// and never leaves a terminal status.
const (
	GenStatusPending    = "pending"
	GenStatusProcessing = "processing"
	GenStatusCompleted  = "completed"
	GenStatusFailed     = "failed"
)

// AiGeneration is the model for the 'ai_generations' table (single image jobs).
type AiGeneration struct {
	ID          int64          `json:"id" db:"id"`
	UserID      int64          `json:"userId" db:"user_id"`
	Prompt      string         `json:"prompt" db:"prompt"`
	Model       string         `json:"model" db:"model"`
	CreditsCost float64        `json:"creditsCost" db:"credits_cost"`
	Status      string         `json:"status" db:"status"`
	OutputURL   sql.NullString `json:"outputUrl,omitempty" db:"output_url"`
	ErrorMsg    sql.NullString `json:"error,omitempty" db:"error_message"`

	// Optional seed image for image-to-image models.
	ReferenceImageURL sql.NullString `json:"referenceImageUrl,omitempty" db:"reference_image_url"`

	StartedAt   sql.NullTime `json:"startedAt,omitempty" db:"started_at"`
	CompletedAt sql.NullTime `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time    `json:"updatedAt" db:"updated_at"`
}

// AiScenario is the model for the 'ai_scenarios' table (multi-scene video jobs).
type AiScenario struct {
	ID          int64          `json:"id" db:"id"`
	UserID      int64          `json:"userId" db:"user_id"`
	Title       string         `json:"title" db:"title"`
	Brief       string         `json:"brief" db:"brief"`
	Model       string         `json:"model" db:"model"`
	CreditsCost float64        `json:"creditsCost" db:"credits_cost"`
	Status      string         `json:"status" db:"status"`
	ErrorMsg    sql.NullString `json:"error,omitempty" db:"error_message"`

	StartedAt   sql.NullTime `json:"startedAt,omitempty" db:"started_at"`
	CompletedAt sql.NullTime `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time    `json:"updatedAt" db:"updated_at"`

	// Populated by handlers, not a DB column.
	Scenes []AiScenarioScene `json:"scenes,omitempty" db:"-"`
}

// AiScenarioScene is the model for the 'ai_scenario_scenes' table.
// Scenes are processed strictly in Position order; the last frame of one
// scene's clip becomes the reference image for the next.
type AiScenarioScene struct {
	ID         int64          `json:"id" db:"id"`
	ScenarioID int64          `json:"scenarioId" db:"scenario_id"`
	Position   int            `json:"position" db:"position"`
	Prompt     string         `json:"prompt" db:"prompt"`
	Status     string         `json:"status" db:"status"`
	VideoURL   sql.NullString `json:"videoUrl,omitempty" db:"video_url"`
	ErrorMsg   sql.NullString `json:"error,omitempty" db:"error_message"`
	CreatedAt  time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time      `json:"updatedAt" db:"updated_at"`
}
