package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsEvents(t *testing.T) {
	t.Parallel()

	pub := New()

	id1, err := pub.Publish(context.Background(), "release-discovered", map[string]string{"title": "Shadows Rising"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)

	id2, err := pub.Publish(context.Background(), "release-discovered", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	events := pub.Events()
	require.Len(t, events, 2)
	require.Equal(t, "release-discovered", events[0].Topic)

	// Events returns a copy.
	events[0].Topic = "modified"
	require.Equal(t, "release-discovered", pub.Events()[0].Topic)
}
