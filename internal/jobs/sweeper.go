package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/trihai306/agentphone-backend/internal/models"
)

// SweepStuck fails and refunds generations and scenarios that have sat in
// 'processing' longer than olderThan, plus any that never left 'pending'
// (the queue dropped or archived the task before a worker claimed the row,
// so nothing else will ever settle the charge). The status guards in the
// failure paths keep this safe to run alongside live workers.
func (p *Processor) SweepStuck(ctx context.Context, olderThan time.Duration) {
	cutoff := time.Now().Add(-olderThan)

	swept := p.sweepGenerations(ctx, cutoff, models.GenStatusProcessing,
		fmt.Sprintf("generation abandoned in processing for over %s", olderThan))
	swept += p.sweepGenerations(ctx, cutoff, models.GenStatusPending,
		fmt.Sprintf("generation never picked up after %s", olderThan))
	swept += p.sweepScenarios(ctx, cutoff, models.GenStatusProcessing,
		fmt.Sprintf("scenario abandoned in processing for over %s", olderThan))
	swept += p.sweepScenarios(ctx, cutoff, models.GenStatusPending,
		fmt.Sprintf("scenario never picked up after %s", olderThan))

	if swept > 0 {
		log.Printf("Sweeper: failed and refunded %d stuck record(s)", swept)
	}
}

// sweepGenerations settles aged ai_generations rows sitting in status. Rows
// in 'processing' aged out on started_at; rows still in 'pending' were never
// started, so they age out on created_at.
func (p *Processor) sweepGenerations(ctx context.Context, cutoff time.Time, status, reason string) int {
	ageColumn := "started_at"
	if status == models.GenStatusPending {
		ageColumn = "created_at"
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, prompt, model, credits_cost, status, reference_image_url
		FROM ai_generations
		WHERE status = ? AND %s < ?`, ageColumn)

	rows, err := p.DB.Query(query, status, cutoff)
	if err != nil {
		log.Printf("ERROR: sweeper failed to list stuck generations: %v", err)
		return 0
	}
	defer rows.Close()

	var stuck []imageRow
	for rows.Next() {
		var gen imageRow
		if err := rows.Scan(&gen.ID, &gen.UserID, &gen.Prompt, &gen.Model, &gen.CreditsCost, &gen.Status, &gen.ReferenceImage); err != nil {
			log.Printf("ERROR: sweeper failed to scan generation: %v", err)
			return 0
		}
		stuck = append(stuck, gen)
	}
	if err := rows.Err(); err != nil {
		log.Printf("ERROR: sweeper generation row error: %v", err)
	}

	count := 0
	for i := range stuck {
		if err := p.settleGeneration(ctx, &stuck[i], reason, status); err != nil {
			log.Printf("ERROR: sweeper failed to settle generation %d: %v", stuck[i].ID, err)
			continue
		}
		count++
	}
	return count
}

func (p *Processor) sweepScenarios(ctx context.Context, cutoff time.Time, status, reason string) int {
	ageColumn := "started_at"
	if status == models.GenStatusPending {
		ageColumn = "created_at"
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, title, model, credits_cost, status
		FROM ai_scenarios
		WHERE status = ? AND %s < ?`, ageColumn)

	rows, err := p.DB.Query(query, status, cutoff)
	if err != nil {
		log.Printf("ERROR: sweeper failed to list stuck scenarios: %v", err)
		return 0
	}
	defer rows.Close()

	var stuck []scenarioRow
	for rows.Next() {
		var sc scenarioRow
		if err := rows.Scan(&sc.ID, &sc.UserID, &sc.Title, &sc.Model, &sc.CreditsCost, &sc.Status); err != nil {
			log.Printf("ERROR: sweeper failed to scan scenario: %v", err)
			return 0
		}
		stuck = append(stuck, sc)
	}
	if err := rows.Err(); err != nil {
		log.Printf("ERROR: sweeper scenario row error: %v", err)
	}

	count := 0
	for i := range stuck {
		if err := p.settleScenario(ctx, &stuck[i], reason, status); err != nil {
			log.Printf("ERROR: sweeper failed to settle scenario %d: %v", stuck[i].ID, err)
			continue
		}
		count++
	}
	return count
}
