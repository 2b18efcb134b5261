package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// redisBroadcaster publishes event envelopes on a single Redis channel.
// The websocket gateway subscribes to that channel and fans events out to
// browsers by the envelope's Channel field (user.{id}, admins, announcements).
type redisBroadcaster struct {
	rdb     *goredis.Client
	channel string
}

// NewRedisBroadcaster connects to Redis using REDIS_URL and verifies the
// connection with a ping before returning.
func NewRedisBroadcaster() (Broadcaster, error) {
	redisURL := strings.TrimSpace(os.Getenv("REDIS_URL"))
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	ch := strings.TrimSpace(os.Getenv("BROADCAST_CHANNEL"))
	if ch == "" {
		ch = "broadcast"
	}

	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBroadcaster{rdb: rdb, channel: ch}, nil
}

func (b *redisBroadcaster) Publish(ctx context.Context, ev Event) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis broadcaster not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *redisBroadcaster) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
