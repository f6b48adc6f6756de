package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "snapshots", map[string]string{"bucket": "January_2026"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "audit", "payload")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "snapshots", msgs[0].Topic)
	assert.Equal(t, id2, msgs[1].ID)

	msgs[0].Topic = "modified"
	assert.Equal(t, "snapshots", pub.Messages()[0].Topic)

	onTopic := pub.OnTopic("audit")
	require.Len(t, onTopic, 1)
	assert.Equal(t, "payload", onTopic[0].Payload)
	assert.Empty(t, pub.OnTopic("missing"))
}

func TestPublisherRejectsBadCalls(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "", "payload")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pub.Publish(ctx, "snapshots", "payload")
	assert.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, pub.Messages())
}

func TestPublisherInjectedFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker down")
	pub := New()
	pub.Err = boom
	_, err := pub.Publish(context.Background(), "snapshots", "payload")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, pub.Messages())
}
