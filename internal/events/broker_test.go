package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan Event[T]) Event[T] {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event[T]{}
	}
}

func TestPublishSubscribe(t *testing.T) {
	b := NewBroker[string]()
	defer b.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)
	b.Publish(PipelineStage, "classifying", WithChatID("c1"))

	e := receive(t, ch)
	assert.Equal(t, PipelineStage, e.Type)
	assert.Equal(t, "classifying", e.Payload)
	assert.Equal(t, "c1", e.ChatID)
	assert.NotEmpty(t, e.ID)
}

func TestSubscribeFilters(t *testing.T) {
	b := NewBroker[string]()
	defer b.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, ByChatID[string]("c2"), ByType[string](PipelineCompleted))
	b.Publish(PipelineStage, "skip", WithChatID("c2"))
	b.Publish(PipelineCompleted, "skip", WithChatID("c1"))
	b.Publish(PipelineCompleted, "want", WithChatID("c2"))

	e := receive(t, ch)
	assert.Equal(t, "want", e.Payload)
}

func TestUnsubscribeOnCancel(t *testing.T) {
	b := NewBroker[int]()
	defer b.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	assert.Equal(t, 1, b.Stats().Subscribers)

	cancel()
	assert.Eventually(t, func() bool { return b.Stats().Subscribers == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-ch
	assert.False(t, ok)
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := NewBrokerWithOptions[int](1, 10)
	defer b.Shutdown()

	ch := b.Subscribe(context.Background())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(PipelineStage, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
	assert.Equal(t, 0, receive(t, ch).Payload)
}

func TestHistoryIsBounded(t *testing.T) {
	b := NewBrokerWithOptions[int](4, 3)
	defer b.Shutdown()

	for i := 0; i < 5; i++ {
		b.Publish(PipelineStage, i)
	}
	h := b.History()
	require.Len(t, h, 3)
	assert.Equal(t, 2, h[0].Payload)
	assert.Equal(t, 4, h[2].Payload)
}

func TestShutdownClosesSubscribers(t *testing.T) {
	b := NewBroker[int]()
	ch := b.Subscribe(context.Background())

	b.Shutdown()
	b.Shutdown()

	_, ok := <-ch
	assert.False(t, ok)

	b.Publish(PipelineStage, 1)
	assert.Empty(t, b.History())
	assert.True(t, b.Stats().IsShutdown)

	late := b.Subscribe(context.Background())
	_, ok = <-late
	assert.False(t, ok)
}
