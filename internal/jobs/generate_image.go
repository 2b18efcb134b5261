package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/trihai306/agentphone-backend/internal/ai"
	"github.com/trihai306/agentphone-backend/internal/broadcast"
	"github.com/trihai306/agentphone-backend/internal/models"
)

// imageRow is the slice of ai_generations a task handler works with.
type imageRow struct {
	ID             int64
	UserID         int64
	Prompt         string
	Model          string
	CreditsCost    float64
	Status         string
	ReferenceImage sql.NullString
}

// HandleGenerateImage drives a single ai_generations row: start the provider
// prediction, poll to a terminal state, then settle the row. Failure paths
// refund the charged credits exactly once (the 'processing' -> 'failed'
// status guard makes the refund idempotent across retries).
func (p *Processor) HandleGenerateImage(ctx context.Context, task *asynq.Task) error {
	var payload GenerateImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image task payload: %w", err)
	}

	gen, err := p.loadGeneration(payload.GenerationID)
	if err != nil {
		return err
	}

	// Already settled (e.g. a duplicate delivery after the sweeper failed it).
	if gen.Status == models.GenStatusCompleted || gen.Status == models.GenStatusFailed {
		log.Printf("Generation %d already %s, skipping", gen.ID, gen.Status)
		return nil
	}

	// Claim the row. Losing the claim means another delivery owns it.
	if !p.claimGeneration(gen.ID) {
		log.Printf("Generation %d not claimable, skipping", gen.ID)
		return nil
	}

	provider, err := p.Providers.ForModel(gen.Model)
	if err != nil {
		return p.failGeneration(ctx, gen, err.Error())
	}

	jobID, err := provider.StartImage(ctx, ai.ImageRequest{
		Prompt:         gen.Prompt,
		Model:          gen.Model,
		ReferenceImage: gen.ReferenceImage.String,
	})
	if err != nil {
		// Submission never reached the provider; if a retry is left, release
		// the claim and let asynq redeliver instead of burning the record.
		if retriesLeft(ctx) {
			p.releaseGeneration(gen.ID)
			return fmt.Errorf("provider submission failed: %w", err)
		}
		return p.failGeneration(ctx, gen, fmt.Sprintf("provider submission failed: %v", err))
	}

	log.Printf("Generation %d submitted to %s as %s", gen.ID, provider.Name(), jobID)

	job, err := ai.WaitForCompletion(ctx, provider, jobID, p.pollInterval(), p.pollTimeout())
	if err != nil {
		return p.failGeneration(ctx, gen, err.Error())
	}
	if job.Status != ai.JobStatusSucceeded {
		return p.failGeneration(ctx, gen, job.Error)
	}

	return p.completeGeneration(ctx, gen, job.OutputURL)
}

func (p *Processor) loadGeneration(id int64) (*imageRow, error) {
	var gen imageRow
	query := `
		SELECT id, user_id, prompt, model, credits_cost, status, reference_image_url
		FROM ai_generations
		WHERE id = ?`

	err := p.DB.QueryRow(query, id).Scan(
		&gen.ID,
		&gen.UserID,
		&gen.Prompt,
		&gen.Model,
		&gen.CreditsCost,
		&gen.Status,
		&gen.ReferenceImage,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load generation %d: %w", id, err)
	}
	return &gen, nil
}

// claimGeneration flips pending -> processing. The WHERE clause is the
// claim: zero rows affected means someone else holds the record.
func (p *Processor) claimGeneration(id int64) bool {
	query := `
		UPDATE ai_generations
		SET status = 'processing', started_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`

	result, err := p.DB.Exec(query, time.Now(), time.Now(), id)
	if err != nil {
		log.Printf("ERROR: failed to claim generation %d: %v", id, err)
		return false
	}
	rows, _ := result.RowsAffected()
	return rows == 1
}

// releaseGeneration puts a claimed row back to pending for a retry.
func (p *Processor) releaseGeneration(id int64) {
	query := `
		UPDATE ai_generations
		SET status = 'pending', started_at = NULL, updated_at = ?
		WHERE id = ? AND status = 'processing'`

	if _, err := p.DB.Exec(query, time.Now(), id); err != nil {
		log.Printf("ERROR: failed to release generation %d: %v", id, err)
	}
}

func (p *Processor) completeGeneration(ctx context.Context, gen *imageRow, outputURL string) error {
	tx, err := p.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE ai_generations
		SET status = 'completed', output_url = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`

	result, err := tx.Exec(query, outputURL, time.Now(), time.Now(), gen.ID)
	if err != nil {
		return fmt.Errorf("failed to complete generation %d: %w", gen.ID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Settled by someone else (sweeper) while we were polling.
		log.Printf("Generation %d no longer processing, not completing", gen.ID)
		return nil
	}

	if err := p.insertNotification(tx, gen.UserID, "Your image is ready.", fmt.Sprintf("/generations/%d", gen.ID)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit completion: %w", err)
	}

	p.publish(ctx, broadcast.UserChannel(gen.UserID), broadcast.EventGenerationCompleted, map[string]interface{}{
		"generationId": gen.ID,
		"outputUrl":    outputURL,
	})

	log.Printf("Generation %d completed", gen.ID)
	return nil
}

// failGeneration marks the record failed and refunds the charge. The
// 'processing' guard on the UPDATE means a record can only be failed once,
// so the refund cannot double-fire.
func (p *Processor) failGeneration(ctx context.Context, gen *imageRow, reason string) error {
	return p.settleGeneration(ctx, gen, reason, models.GenStatusProcessing)
}

// settleGeneration flips a generation to 'failed' and refunds the charge.
// The fromStatus guard makes the refund run at most once no matter how many
// callers (worker, sweeper, API) race on the same record.
func (p *Processor) settleGeneration(ctx context.Context, gen *imageRow, reason, fromStatus string) error {
	tx, err := p.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE ai_generations
		SET status = 'failed', error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	result, err := tx.Exec(query, reason, time.Now(), time.Now(), gen.ID, fromStatus)
	if err != nil {
		return fmt.Errorf("failed to fail generation %d: %w", gen.ID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		log.Printf("Generation %d no longer %s, not failing", gen.ID, fromStatus)
		return nil
	}

	err = p.refundAndNotify(tx,
		gen.UserID,
		gen.CreditsCost,
		fmt.Sprintf("Refund for failed generation #%d", gen.ID),
		"Your image generation failed. Credits have been refunded.",
		fmt.Sprintf("/generations/%d", gen.ID),
	)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit failure: %w", err)
	}

	p.publish(ctx, broadcast.UserChannel(gen.UserID), broadcast.EventGenerationFailed, map[string]interface{}{
		"generationId": gen.ID,
		"error":        reason,
		"refunded":     gen.CreditsCost,
	})

	log.Printf("Generation %d failed: %s (refunded %.2f)", gen.ID, reason, gen.CreditsCost)
	return nil
}

// retriesLeft reports whether asynq will deliver this task again if the
// handler returns an error.
func retriesLeft(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return false
	}
	return retried < maxRetry
}
