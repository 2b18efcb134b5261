package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/trihai306/agentphone-backend/internal/ai"
	"github.com/trihai306/agentphone-backend/internal/broadcast"
	"github.com/trihai306/agentphone-backend/internal/models"
	"github.com/trihai306/agentphone-backend/internal/video"
)

type scenarioRow struct {
	ID          int64
	UserID      int64
	Title       string
	Model       string
	CreditsCost float64
	Status      string
}

type sceneRow struct {
	ID       int64
	Position int
	Prompt   string
	Status   string
}

// HandleGenerateScenario drives a multi-scene video scenario. Scenes run
// strictly sequentially; the last frame of each completed clip is extracted
// with ffmpeg and fed to the next scene as its reference image. Any scene
// failure fails the whole scenario and refunds the full charge.
func (p *Processor) HandleGenerateScenario(ctx context.Context, task *asynq.Task) error {
	var payload GenerateScenarioPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal scenario task payload: %w", err)
	}

	sc, err := p.loadScenario(payload.ScenarioID)
	if err != nil {
		return err
	}

	if sc.Status == models.GenStatusCompleted || sc.Status == models.GenStatusFailed {
		log.Printf("Scenario %d already %s, skipping", sc.ID, sc.Status)
		return nil
	}

	if !p.claimScenario(sc.ID) {
		log.Printf("Scenario %d not claimable, skipping", sc.ID)
		return nil
	}

	scenes, err := p.loadScenes(sc.ID)
	if err != nil {
		return p.failScenario(ctx, sc, fmt.Sprintf("failed to load scenes: %v", err))
	}
	if len(scenes) == 0 {
		return p.failScenario(ctx, sc, "scenario has no scenes")
	}

	provider, err := p.Providers.ForModel(sc.Model)
	if err != nil {
		return p.failScenario(ctx, sc, err.Error())
	}

	// The chained reference image. Empty for the first scene (pure
	// text-to-video); every later scene starts from the previous clip's
	// final frame.
	referenceImage := ""

	for i, scene := range scenes {
		log.Printf("Scenario %d: processing scene %d/%d", sc.ID, i+1, len(scenes))

		p.markScene(scene.ID, models.GenStatusProcessing, "", "")

		jobID, err := provider.StartVideo(ctx, ai.VideoRequest{
			Prompt:         scene.Prompt,
			Model:          sc.Model,
			ReferenceImage: referenceImage,
		})
		if err != nil {
			p.markScene(scene.ID, models.GenStatusFailed, "", err.Error())
			return p.failScenario(ctx, sc, fmt.Sprintf("scene %d submission failed: %v", scene.Position, err))
		}

		job, err := ai.WaitForCompletion(ctx, provider, jobID, p.pollInterval(), p.pollTimeout())
		if err != nil {
			p.markScene(scene.ID, models.GenStatusFailed, "", err.Error())
			return p.failScenario(ctx, sc, fmt.Sprintf("scene %d: %v", scene.Position, err))
		}
		if job.Status != ai.JobStatusSucceeded {
			p.markScene(scene.ID, models.GenStatusFailed, "", job.Error)
			return p.failScenario(ctx, sc, fmt.Sprintf("scene %d failed: %s", scene.Position, job.Error))
		}

		p.markScene(scene.ID, models.GenStatusCompleted, job.OutputURL, "")

		p.publish(ctx, broadcast.UserChannel(sc.UserID), broadcast.EventSceneCompleted, map[string]interface{}{
			"scenarioId": sc.ID,
			"sceneId":    scene.ID,
			"position":   scene.Position,
			"videoUrl":   job.OutputURL,
		})

		// Chain to the next scene: pull the last frame of this clip.
		if i < len(scenes)-1 {
			referenceImage, err = p.extractChainFrame(ctx, sc.ID, scene.ID, job.OutputURL)
			if err != nil {
				return p.failScenario(ctx, sc, fmt.Sprintf("scene %d frame extraction failed: %v", scene.Position, err))
			}
		}
	}

	return p.completeScenario(ctx, sc)
}

// extractChainFrame downloads a completed clip, extracts its final frame and
// returns it as a data URL for the next scene's submission. Temp files are
// removed before returning.
func (p *Processor) extractChainFrame(ctx context.Context, scenarioID, sceneID int64, clipURL string) (string, error) {
	tag := fmt.Sprintf("scenario%d_scene%d", scenarioID, sceneID)

	clipPath, err := p.Downloader.DownloadClip(ctx, clipURL, tag)
	if err != nil {
		return "", fmt.Errorf("clip download failed: %w", err)
	}
	defer p.Downloader.Cleanup(clipPath)

	framePath, err := p.FFmpeg.ExtractLastFrame(clipPath, tag)
	if err != nil {
		return "", err
	}
	defer os.Remove(framePath)

	return video.FrameDataURL(framePath)
}

func (p *Processor) loadScenario(id int64) (*scenarioRow, error) {
	var sc scenarioRow
	query := `
		SELECT id, user_id, title, model, credits_cost, status
		FROM ai_scenarios
		WHERE id = ?`

	err := p.DB.QueryRow(query, id).Scan(
		&sc.ID,
		&sc.UserID,
		&sc.Title,
		&sc.Model,
		&sc.CreditsCost,
		&sc.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario %d: %w", id, err)
	}
	return &sc, nil
}

func (p *Processor) loadScenes(scenarioID int64) ([]sceneRow, error) {
	query := `
		SELECT id, position, prompt, status
		FROM ai_scenario_scenes
		WHERE scenario_id = ?
		ORDER BY position ASC`

	rows, err := p.DB.Query(query, scenarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenes []sceneRow
	for rows.Next() {
		var s sceneRow
		if err := rows.Scan(&s.ID, &s.Position, &s.Prompt, &s.Status); err != nil {
			return nil, err
		}
		scenes = append(scenes, s)
	}
	return scenes, rows.Err()
}

func (p *Processor) claimScenario(id int64) bool {
	query := `
		UPDATE ai_scenarios
		SET status = 'processing', started_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`

	result, err := p.DB.Exec(query, time.Now(), time.Now(), id)
	if err != nil {
		log.Printf("ERROR: failed to claim scenario %d: %v", id, err)
		return false
	}
	rows, _ := result.RowsAffected()
	return rows == 1
}

// markScene updates a scene's status and, when present, its clip URL or
// error. Scene rows have no refund attached, so plain updates are fine.
func (p *Processor) markScene(id int64, status, videoURL, errMsg string) {
	query := `
		UPDATE ai_scenario_scenes
		SET status = ?, video_url = NULLIF(?, ''), error_message = NULLIF(?, ''), updated_at = ?
		WHERE id = ?`

	if _, err := p.DB.Exec(query, status, videoURL, errMsg, time.Now(), id); err != nil {
		log.Printf("ERROR: failed to mark scene %d %s: %v", id, status, err)
	}
}

func (p *Processor) completeScenario(ctx context.Context, sc *scenarioRow) error {
	tx, err := p.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE ai_scenarios
		SET status = 'completed', completed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`

	result, err := tx.Exec(query, time.Now(), time.Now(), sc.ID)
	if err != nil {
		return fmt.Errorf("failed to complete scenario %d: %w", sc.ID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		log.Printf("Scenario %d no longer processing, not completing", sc.ID)
		return nil
	}

	if err := p.insertNotification(tx, sc.UserID, fmt.Sprintf("Your scenario %q is ready.", sc.Title), fmt.Sprintf("/scenarios/%d", sc.ID)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit completion: %w", err)
	}

	p.publish(ctx, broadcast.UserChannel(sc.UserID), broadcast.EventScenarioCompleted, map[string]interface{}{
		"scenarioId": sc.ID,
	})

	log.Printf("Scenario %d completed", sc.ID)
	return nil
}

// failScenario settles the scenario as failed under the same status guard
// and refund rule as single generations.
func (p *Processor) failScenario(ctx context.Context, sc *scenarioRow, reason string) error {
	return p.settleScenario(ctx, sc, reason, models.GenStatusProcessing)
}

// settleScenario flips a scenario to 'failed' and refunds the whole charge.
// The fromStatus guard keeps the refund single-shot across racing callers.
func (p *Processor) settleScenario(ctx context.Context, sc *scenarioRow, reason, fromStatus string) error {
	tx, err := p.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE ai_scenarios
		SET status = 'failed', error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	result, err := tx.Exec(query, reason, time.Now(), time.Now(), sc.ID, fromStatus)
	if err != nil {
		return fmt.Errorf("failed to fail scenario %d: %w", sc.ID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		log.Printf("Scenario %d no longer %s, not failing", sc.ID, fromStatus)
		return nil
	}

	err = p.refundAndNotify(tx,
		sc.UserID,
		sc.CreditsCost,
		fmt.Sprintf("Refund for failed scenario #%d", sc.ID),
		"Your scenario generation failed. Credits have been refunded.",
		fmt.Sprintf("/scenarios/%d", sc.ID),
	)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit failure: %w", err)
	}

	p.publish(ctx, broadcast.UserChannel(sc.UserID), broadcast.EventScenarioFailed, map[string]interface{}{
		"scenarioId": sc.ID,
		"error":      reason,
		"refunded":   sc.CreditsCost,
	})

	log.Printf("Scenario %d failed: %s (refunded %.2f)", sc.ID, reason, sc.CreditsCost)
	return nil
}
