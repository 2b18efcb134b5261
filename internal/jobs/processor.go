package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/trihai306/agentphone-backend/internal/ai"
	"github.com/trihai306/agentphone-backend/internal/broadcast"
	"github.com/trihai306/agentphone-backend/internal/notifications"
	"github.com/trihai306/agentphone-backend/internal/video"
	"github.com/trihai306/agentphone-backend/internal/wallet"
)

// Processor drives generation records to completion. It holds every
// dependency a task handler needs; the API server constructs a slimmer one
// (no FFmpeg/downloader) for the stale-job sweeper.
type Processor struct {
	DB          *sql.DB
	Providers   *ai.Registry
	Broadcaster broadcast.Broadcaster
	FFmpeg      *video.FFmpegHelper
	Downloader  *video.Downloader

	// Poll tuning; zero values fall back to the ai package defaults.
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// refundAndNotify appends the refund ledger row and the user notification
// inside the caller's transaction. Callers must have already flipped the
// record to 'failed' under a status guard so the refund runs exactly once.
func (p *Processor) refundAndNotify(tx *sql.Tx, userID int64, amount float64, notes, message, link string) error {
	if err := wallet.AddTransaction(tx, userID, "generation_refund", amount, notes); err != nil {
		return fmt.Errorf("failed to refund credits: %w", err)
	}
	if err := p.insertNotification(tx, userID, message, link); err != nil {
		return err
	}
	return nil
}

// insertNotification creates a notification row inside the caller's
// transaction.
func (p *Processor) insertNotification(tx *sql.Tx, userID int64, message string, link string) error {
	return notifications.Insert(tx, userID, message, link)
}

// publish broadcasts an event, logging instead of failing the job when the
// bus is down. A missed push is recoverable (the row holds the truth); a
// failed job because of a push is not.
func (p *Processor) publish(ctx context.Context, channel, event string, data map[string]interface{}) {
	if p.Broadcaster == nil {
		return
	}
	if err := p.Broadcaster.Publish(ctx, broadcast.NewEvent(channel, event, data)); err != nil {
		log.Printf("WARNING: failed to broadcast %s on %s: %v", event, channel, err)
	}
}

func (p *Processor) pollInterval() time.Duration {
	if p.PollInterval > 0 {
		return p.PollInterval
	}
	return ai.DefaultPollInterval
}

func (p *Processor) pollTimeout() time.Duration {
	if p.PollTimeout > 0 {
		return p.PollTimeout
	}
	return ai.DefaultPollTimeout
}
