package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	MaxPages int
}

func TestQueueTryEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue[request](1)
	result := make(chan request, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	require.True(t, q.TryEnqueue(request{MaxPages: 3}))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		assert.Equal(t, 3, got.MaxPages)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueueTryEnqueueWhenFull(t *testing.T) {
	t.Parallel()

	q := NewQueue[request](1)
	assert.True(t, q.TryEnqueue(request{MaxPages: 1}))
	assert.False(t, q.TryEnqueue(request{MaxPages: 2}))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got.MaxPages)
	assert.True(t, q.TryEnqueue(request{MaxPages: 3}), "slot frees after dequeue")
}

func TestQueueZeroCapacityHoldsOne(t *testing.T) {
	t.Parallel()

	q := NewQueue[request](0)
	assert.True(t, q.TryEnqueue(request{}))
	assert.False(t, q.TryEnqueue(request{}))
}

func TestQueueDequeueCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewQueue[request](1).Dequeue(ctx)
	assert.EqualError(t, err, "dequeue canceled: context canceled")
	assert.ErrorIs(t, err, context.Canceled)
}
