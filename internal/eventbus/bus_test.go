package eventbus

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(buf *bytes.Buffer) *Bus {
	var logger *slog.Logger
	if buf != nil {
		logger = slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	} else {
		logger = slog.New(slog.DiscardHandler)
	}
	b := New("lib1", logger)
	b.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return b
}

func TestBroadcast_OrderAndStamp(t *testing.T) {
	b := newTestBus(nil)
	ctx := context.Background()

	var order []string
	var got Event
	b.Subscribe(FileCreated, func(_ context.Context, evt Event) error {
		order = append(order, "first")
		got = evt
		return nil
	})
	b.Subscribe(FileCreated, func(context.Context, Event) error {
		order = append(order, "second")
		return nil
	})
	b.Subscribe(All, func(context.Context, Event) error {
		order = append(order, "all")
		return nil
	})
	b.Subscribe(FileDeleted, func(context.Context, Event) error {
		order = append(order, "other")
		return nil
	})

	payload := map[string]any{"id": 1}
	b.Broadcast(ctx, FileCreated, payload)

	assert.Equal(t, []string{"first", "second", "all"}, order)
	assert.Equal(t, FileCreated, got.Name)
	assert.Equal(t, "lib1", got.LibraryID)
	assert.Equal(t, int64(1_700_000_000_000), got.Timestamp.UnixMilli())
	assert.Equal(t, map[string]any{"id": 1, "event": FileCreated}, got.Data)
	assert.NotContains(t, payload, "event", "caller's map is not mutated")
}

func TestBroadcast_KeepsExistingEventKey(t *testing.T) {
	b := newTestBus(nil)
	var got Event
	b.Subscribe(FileUpdated, func(_ context.Context, evt Event) error {
		got = evt
		return nil
	})

	b.Broadcast(context.Background(), FileUpdated, map[string]any{"event": "custom"})
	assert.Equal(t, map[string]any{"event": "custom"}, got.Data)
}

func TestBroadcast_FailingHandlersDoNotBlock(t *testing.T) {
	var buf bytes.Buffer
	b := newTestBus(&buf)

	calls := 0
	b.Subscribe(FileCreated, func(context.Context, Event) error { return errors.New("boom") })
	b.Subscribe(FileCreated, func(context.Context, Event) error { panic("kaboom") })
	b.Subscribe(FileCreated, func(context.Context, Event) error {
		calls++
		return nil
	})

	b.Broadcast(context.Background(), FileCreated, nil)
	b.Broadcast(context.Background(), FileCreated, nil)

	assert.Equal(t, 2, calls, "failing handlers are not retried and do not stop delivery")
	assert.Contains(t, buf.String(), "boom")
	assert.Contains(t, buf.String(), "kaboom")
}

func TestSubscribeOnce(t *testing.T) {
	b := newTestBus(nil)
	calls := 0
	b.SubscribeOnce(TagDeleted, func(context.Context, Event) error {
		calls++
		return nil
	})

	assert.Equal(t, 1, b.ListenerCount(TagDeleted))
	b.Broadcast(context.Background(), TagDeleted, nil)
	b.Broadcast(context.Background(), TagDeleted, nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.ListenerCount(TagDeleted))
}

func TestSubscribeOnce_ConcurrentBroadcastsFireOnce(t *testing.T) {
	b := newTestBus(nil)
	var mu sync.Mutex
	calls := 0
	b.SubscribeOnce(FileCreated, func(context.Context, Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() { b.Broadcast(context.Background(), FileCreated, nil) })
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
}

func TestUnsubscribe(t *testing.T) {
	b := newTestBus(nil)
	calls := 0
	sub := b.Subscribe(FileCreated, func(context.Context, Event) error {
		calls++
		return nil
	})

	assert.True(t, b.Unsubscribe(sub))
	assert.False(t, b.Unsubscribe(sub))

	b.Broadcast(context.Background(), FileCreated, nil)
	assert.Zero(t, calls)
	assert.Equal(t, 0, b.ListenerCount(FileCreated))
}

func TestUnsubscribe_DuringBroadcast(t *testing.T) {
	b := newTestBus(nil)
	var order []string
	var second Subscription

	b.Subscribe(FileCreated, func(context.Context, Event) error {
		order = append(order, "first")
		b.Unsubscribe(second)
		return nil
	})
	second = b.Subscribe(FileCreated, func(context.Context, Event) error {
		order = append(order, "second")
		return nil
	})

	// The snapshot taken at broadcast time still includes the second handler.
	b.Broadcast(context.Background(), FileCreated, nil)
	b.Broadcast(context.Background(), FileCreated, nil)
	assert.Equal(t, []string{"first", "second", "first"}, order)
}

func TestIntercept_StopsAtFirstError(t *testing.T) {
	b := newTestBus(nil)
	veto := errors.New("login required")
	after := false

	b.Subscribe(ClientBeforeConnect, func(context.Context, Event) error { return veto })
	b.Subscribe(ClientBeforeConnect, func(context.Context, Event) error {
		after = true
		return nil
	})

	err := b.Intercept(context.Background(), ClientBeforeConnect, ClientData{ClientID: "c1"})
	require.ErrorIs(t, err, veto)
	assert.False(t, after)

	assert.NoError(t, newTestBus(nil).Intercept(context.Background(), ClientBeforeConnect, nil))
}

func TestIntercept_PanicBecomesError(t *testing.T) {
	b := newTestBus(nil)
	b.Subscribe(ClientBeforeConnect, func(context.Context, Event) error { panic("bad plugin") })

	err := b.Intercept(context.Background(), ClientBeforeConnect, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad plugin")
}

func TestListenerCap_WarnsButAccepts(t *testing.T) {
	var buf bytes.Buffer
	b := newTestBus(&buf)
	noop := func(context.Context, Event) error { return nil }

	for range MaxListeners {
		b.Subscribe(FileCreated, noop)
	}
	assert.NotContains(t, buf.String(), "listener count above limit")

	b.Subscribe(FileCreated, noop)
	assert.Contains(t, buf.String(), "listener count above limit")
	assert.Equal(t, MaxListeners+1, b.ListenerCount(FileCreated))
}
