package broadcast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserChannel(t *testing.T) {
	assert.Equal(t, "user.17", UserChannel(17))
}

func TestMemoryBroadcaster_RecordsEvents(t *testing.T) {
	mb := NewMemoryBroadcaster()

	ev := NewEvent(UserChannel(3), EventGenerationCompleted, map[string]interface{}{
		"generationId": int64(12),
		"outputUrl":    "https://cdn.example.com/out.png",
	})
	require.NoError(t, mb.Publish(context.Background(), ev))

	events := mb.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "user.3", events[0].Channel)
	assert.Equal(t, EventGenerationCompleted, events[0].Event)
	assert.NotZero(t, events[0].Ts)
}

func TestMemoryBroadcaster_EventsReturnsCopy(t *testing.T) {
	mb := NewMemoryBroadcaster()
	require.NoError(t, mb.Publish(context.Background(), NewEvent(ChannelAdmins, EventAnnouncement, nil)))

	events := mb.Events()
	events[0].Channel = "mutated"

	assert.Equal(t, ChannelAdmins, mb.Events()[0].Channel)
}
