package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trihai306/agentphone-backend/internal/jobs"
	"github.com/trihai306/agentphone-backend/internal/models"
	"github.com/trihai306/agentphone-backend/internal/wallet"
)

//
// --- AI Scenario Handlers ---
//

const maxScenesPerScenario = 10

type CreateScenarioInput struct {
	Title  string   `json:"title" binding:"required"`
	Model  string   `json:"model" binding:"required"`
	Brief  string   `json:"brief"`
	Scenes []string `json:"scenes"`

	// When true, the scene prompts are drafted from the brief by the
	// script service instead of being supplied by the caller.
	AutoScript bool `json:"autoScript"`
	SceneCount int  `json:"sceneCount"`
}

// CreateScenario is the handler for POST /v1/scenarios.
// A scenario is charged per scene up front; the whole charge is refunded if
// any scene fails.
func (h *Handlers) CreateScenario(c *gin.Context) {
	// 1. --- Get User ID & Input ---
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)

	var input CreateScenarioInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	perScene, ok := modelCreditCost[input.Model]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown model"})
		return
	}

	// 2. --- Resolve the Scene Prompts ---
	prompts := input.Scenes
	if input.AutoScript {
		if h.Scripts == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Script drafting is not configured"})
			return
		}
		if input.Brief == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A brief is required for auto-scripting"})
			return
		}
		sceneCount := input.SceneCount
		if sceneCount <= 0 {
			sceneCount = 3
		}
		drafted, err := h.Scripts.DraftScenePrompts(c.Request.Context(), input.Brief, sceneCount)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to draft scene prompts"})
			return
		}
		prompts = drafted
	}

	if len(prompts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A scenario needs at least one scene"})
		return
	}
	if len(prompts) > maxScenesPerScenario {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("A scenario is limited to %d scenes", maxScenesPerScenario)})
		return
	}

	totalCost := perScene * float64(len(prompts))

	// 3. --- Charge Wallet + Create Rows (one transaction) ---
	tx, err := h.DB.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	err = wallet.Charge(tx, userID, models.TxTypeGenerationCharge, totalCost, fmt.Sprintf("Scenario %q (%d scenes)", input.Title, len(prompts)))
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient credits"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to charge wallet"})
		return
	}

	insertScenario := `
		INSERT INTO ai_scenarios
		(user_id, title, brief, model, credits_cost, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)`

	result, err := tx.Exec(insertScenario, userID, input.Title, input.Brief, input.Model, totalCost, time.Now(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create scenario"})
		return
	}

	scenarioID, err := result.LastInsertId()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get new scenario ID"})
		return
	}

	insertScene := `
		INSERT INTO ai_scenario_scenes
		(scenario_id, position, prompt, status, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', ?, ?)`

	for i, prompt := range prompts {
		if _, err := tx.Exec(insertScene, scenarioID, i+1, prompt, time.Now(), time.Now()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create scenario scenes"})
			return
		}
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit"})
		return
	}

	// 4. --- Enqueue the Job ---
	task, err := jobs.NewGenerateScenarioTask(scenarioID)
	if err == nil {
		_, err = h.Queue.Enqueue(task)
	}
	if err != nil {
		h.voidScenario(scenarioID, userID, totalCost)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Generation queue is unavailable, credits refunded"})
		return
	}

	// 5. --- Send Success Response ---
	c.JSON(http.StatusCreated, gin.H{
		"message":     "Scenario queued",
		"scenarioId":  scenarioID,
		"sceneCount":  len(prompts),
		"creditsCost": totalCost,
	})
}

// voidScenario mirrors voidGeneration for never-queued scenarios.
func (h *Handlers) voidScenario(scenarioID, userID int64, cost float64) {
	tx, err := h.DB.Begin()
	if err != nil {
		return
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE ai_scenarios
		SET status = 'failed', error_message = 'failed to enqueue', updated_at = ?
		WHERE id = ? AND status = 'pending'`, time.Now(), scenarioID)
	if err != nil {
		return
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return
	}

	if err := wallet.AddTransaction(tx, userID, models.TxTypeGenerationRefund, cost, fmt.Sprintf("Refund for failed scenario #%d", scenarioID)); err != nil {
		return
	}

	tx.Commit()
}

// GetMyScenarios is the handler for GET /v1/scenarios.
func (h *Handlers) GetMyScenarios(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)

	query := `
		SELECT id, user_id, title, brief, model, credits_cost, status, error_message,
		       started_at, completed_at, created_at, updated_at
		FROM ai_scenarios
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT 50`

	rows, err := h.DB.Query(query, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}
	defer rows.Close()

	var scenarios []*models.AiScenario
	for rows.Next() {
		var s models.AiScenario
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.Title,
			&s.Brief,
			&s.Model,
			&s.CreditsCost,
			&s.Status,
			&s.ErrorMsg,
			&s.StartedAt,
			&s.CompletedAt,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan scenario row"})
			return
		}
		scenarios = append(scenarios, &s)
	}
	if err = rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error iterating scenario rows"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"scenarios": scenarios})
}

// GetScenario is the handler for GET /v1/scenarios/:id.
// The scenario is returned with its scenes in position order.
func (h *Handlers) GetScenario(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)
	scenarioID := c.Param("id")

	var s models.AiScenario
	query := `
		SELECT id, user_id, title, brief, model, credits_cost, status, error_message,
		       started_at, completed_at, created_at, updated_at
		FROM ai_scenarios
		WHERE id = ? AND user_id = ?`

	err := h.DB.QueryRow(query, scenarioID, userID).Scan(
		&s.ID,
		&s.UserID,
		&s.Title,
		&s.Brief,
		&s.Model,
		&s.CreditsCost,
		&s.Status,
		&s.ErrorMsg,
		&s.StartedAt,
		&s.CompletedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Scenario not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	sceneQuery := `
		SELECT id, scenario_id, position, prompt, status, video_url, error_message, created_at, updated_at
		FROM ai_scenario_scenes
		WHERE scenario_id = ?
		ORDER BY position ASC`

	rows, err := h.DB.Query(sceneQuery, s.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load scenes"})
		return
	}
	defer rows.Close()

	for rows.Next() {
		var scene models.AiScenarioScene
		if err := rows.Scan(
			&scene.ID,
			&scene.ScenarioID,
			&scene.Position,
			&scene.Prompt,
			&scene.Status,
			&scene.VideoURL,
			&scene.ErrorMsg,
			&scene.CreatedAt,
			&scene.UpdatedAt,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan scene row"})
			return
		}
		s.Scenes = append(s.Scenes, scene)
	}
	if err = rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error iterating scene rows"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"scenario": s})
}
