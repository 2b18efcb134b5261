package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Event names pushed to connected clients. The socket gateway relays these
// verbatim, so names follow the frontend's "<resource>.<action>" convention.
const (
	EventGenerationCompleted = "generation.completed"
	EventGenerationFailed    = "generation.failed"
	EventScenarioCompleted   = "scenario.completed"
	EventScenarioFailed      = "scenario.failed"
	EventSceneCompleted      = "scenario.scene_completed"
	EventDeviceStatus        = "device.status"
	EventAnnouncement        = "announcement.posted"
	EventUserRegistered      = "user.registered"
)

// Named channels. Per-user channels are built with UserChannel.
const (
	ChannelAdmins        = "admins"
	ChannelAnnouncements = "announcements"
)

// UserChannel returns the private channel for a single user.
func UserChannel(userID int64) string {
	return fmt.Sprintf("user.%d", userID)
}

// Event is the envelope published to the socket gateway.
type Event struct {
	Channel string                 `json:"channel"`
	Event   string                 `json:"event"`
	Data    map[string]interface{} `json:"data"`
	Ts      int64                  `json:"ts"`
}

// NewEvent stamps an envelope with the current time.
func NewEvent(channel, event string, data map[string]interface{}) Event {
	return Event{
		Channel: channel,
		Event:   event,
		Data:    data,
		Ts:      time.Now().Unix(),
	}
}

// Broadcaster publishes events toward connected browsers. The concrete
// transport is Redis pub/sub; tests use the in-memory implementation.
type Broadcaster interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// MemoryBroadcaster records events in memory. Used by tests and as a
// fallback when Redis is not configured.
type MemoryBroadcaster struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryBroadcaster() *MemoryBroadcaster {
	return &MemoryBroadcaster{}
}

func (m *MemoryBroadcaster) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryBroadcaster) Close() error { return nil }

// Events returns a copy of everything published so far.
func (m *MemoryBroadcaster) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
