package handlers

import (
	"database/sql"

	"github.com/hibiken/asynq"

	"github.com/trihai306/agentphone-backend/internal/ai"
	"github.com/trihai306/agentphone-backend/internal/broadcast"
)

// Handlers struct holds all dependencies for our handlers.
type Handlers struct {
	DB          *sql.DB
	Queue       *asynq.Client         // Enqueues generation jobs for the worker
	Broadcaster broadcast.Broadcaster // Realtime event bus (Redis pub/sub)
	Scripts     *ai.ScriptService     // Gemini-backed scene prompt drafting; nil when no API key
}
