package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trihai306/agentphone-backend/internal/jobs"
	"github.com/trihai306/agentphone-backend/internal/models"
	"github.com/trihai306/agentphone-backend/internal/wallet"
)

//
// --- AI Generation Handlers ---
//

// Credit prices per model. The map doubles as the allow-list: a model not
// listed here cannot be submitted.
var modelCreditCost = map[string]float64{
	"replicate/flux-schnell": 5,
	"replicate/flux-dev":     15,
	"replicate/sdxl":         10,
	"kling-v1.6-standard":    60,
	"kling-v1.6-pro":         120,
}

type CreateGenerationInput struct {
	Prompt            string `json:"prompt" binding:"required"`
	Model             string `json:"model" binding:"required"`
	ReferenceImageURL string `json:"referenceImageUrl"`
}

// CreateGeneration is the handler for POST /v1/generations.
// It charges the wallet and creates the pending row in one transaction,
// then enqueues the job. If the enqueue fails, the charge is compensated
// immediately so the user is never billed for work that can't start.
func (h *Handlers) CreateGeneration(c *gin.Context) {
	// 1. --- Get User ID & Input ---
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)

	var input CreateGenerationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cost, ok := modelCreditCost[input.Model]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown model"})
		return
	}

	// 2. --- Charge Wallet + Create Row (one transaction) ---
	tx, err := h.DB.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	err = wallet.Charge(tx, userID, models.TxTypeGenerationCharge, cost, fmt.Sprintf("Image generation (%s)", input.Model))
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient credits"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to charge wallet"})
		return
	}

	var refImage sql.NullString
	if input.ReferenceImageURL != "" {
		refImage = sql.NullString{String: input.ReferenceImageURL, Valid: true}
	}

	insertQuery := `
		INSERT INTO ai_generations
		(user_id, prompt, model, credits_cost, status, reference_image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?, ?)`

	result, err := tx.Exec(insertQuery, userID, input.Prompt, input.Model, cost, refImage, time.Now(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create generation"})
		return
	}

	generationID, err := result.LastInsertId()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get new generation ID"})
		return
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit"})
		return
	}

	// 3. --- Enqueue the Job ---
	task, err := jobs.NewGenerateImageTask(generationID)
	if err == nil {
		_, err = h.Queue.Enqueue(task)
	}
	if err != nil {
		// The row exists and the charge landed, so compensate now rather
		// than leaving a pending row no worker will ever pick up.
		h.voidGeneration(generationID, userID, cost)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Generation queue is unavailable, credits refunded"})
		return
	}

	// 4. --- Send Success Response ---
	c.JSON(http.StatusCreated, gin.H{
		"message":      "Generation queued",
		"generationId": generationID,
		"creditsCost":  cost,
	})
}

// voidGeneration fails a never-queued generation and refunds its charge.
// Same status guard as the worker's failure path, so the two can't both
// refund the same row.
func (h *Handlers) voidGeneration(generationID, userID int64, cost float64) {
	tx, err := h.DB.Begin()
	if err != nil {
		log.Printf("ERROR: failed to void generation %d: %v", generationID, err)
		return
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE ai_generations
		SET status = 'failed', error_message = 'failed to enqueue', updated_at = ?
		WHERE id = ? AND status = 'pending'`, time.Now(), generationID)
	if err != nil {
		log.Printf("ERROR: failed to void generation %d: %v", generationID, err)
		return
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return
	}

	if err := wallet.AddTransaction(tx, userID, models.TxTypeGenerationRefund, cost, fmt.Sprintf("Refund for failed generation #%d", generationID)); err != nil {
		log.Printf("ERROR: failed to refund voided generation %d: %v", generationID, err)
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("ERROR: failed to commit void of generation %d: %v", generationID, err)
	}
}

// GetMyGenerations is the handler for GET /v1/generations.
func (h *Handlers) GetMyGenerations(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)

	query := `
		SELECT id, user_id, prompt, model, credits_cost, status, output_url, error_message,
		       reference_image_url, started_at, completed_at, created_at, updated_at
		FROM ai_generations
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT 50`

	rows, err := h.DB.Query(query, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}
	defer rows.Close()

	var generations []*models.AiGeneration
	for rows.Next() {
		var g models.AiGeneration
		if err := rows.Scan(
			&g.ID,
			&g.UserID,
			&g.Prompt,
			&g.Model,
			&g.CreditsCost,
			&g.Status,
			&g.OutputURL,
			&g.ErrorMsg,
			&g.ReferenceImageURL,
			&g.StartedAt,
			&g.CompletedAt,
			&g.CreatedAt,
			&g.UpdatedAt,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan generation row"})
			return
		}
		generations = append(generations, &g)
	}
	if err = rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error iterating generation rows"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"generations": generations})
}

// GetGeneration is the handler for GET /v1/generations/:id.
// The frontend polls this while a job is in flight.
func (h *Handlers) GetGeneration(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)
	generationID := c.Param("id")

	var g models.AiGeneration
	query := `
		SELECT id, user_id, prompt, model, credits_cost, status, output_url, error_message,
		       reference_image_url, started_at, completed_at, created_at, updated_at
		FROM ai_generations
		WHERE id = ? AND user_id = ?`

	err := h.DB.QueryRow(query, generationID, userID).Scan(
		&g.ID,
		&g.UserID,
		&g.Prompt,
		&g.Model,
		&g.CreditsCost,
		&g.Status,
		&g.OutputURL,
		&g.ErrorMsg,
		&g.ReferenceImageURL,
		&g.StartedAt,
		&g.CompletedAt,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Generation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"generation": g})
}
