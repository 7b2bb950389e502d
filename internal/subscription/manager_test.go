package subscription

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeboard/internal/channel"
	"tradeboard/internal/transport"
	"tradeboard/models"
)

func newTestManager(t *testing.T) (*Manager, *transport.Memory, context.Context) {
	t.Helper()
	mem := transport.NewMemory(time.Millisecond)
	m := NewManager(mem, channel.NewInbound(16))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		m.Close()
	})
	go m.Run(ctx)
	go mem.Run(ctx, m)
	require.Eventually(t, func() bool { return mem.State() == transport.StateConnected }, time.Second, time.Millisecond)
	return m, mem, ctx
}

func publish(t *testing.T, mem *transport.Memory, ctx context.Context, topic models.Topic, body string) {
	t.Helper()
	require.NoError(t, mem.Publish(ctx, topic, transport.Message{Body: []byte(body)}))
}

func TestRegisterDeliversInOrder(t *testing.T) {
	m, mem, ctx := newTestManager(t)

	var mu sync.Mutex
	var got []string
	_, err := m.Register(models.TopicCandles, func(_ context.Context, d transport.Delivery) {
		mu.Lock()
		got = append(got, d.Body)
		mu.Unlock()
	})
	require.NoError(t, err)

	for _, body := range []string{"a", "b", "c", "d"} {
		publish(t, mem, ctx, models.TopicCandles, body)
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
	mu.Unlock()
}

func TestOnConnectedIsIdempotent(t *testing.T) {
	m, mem, ctx := newTestManager(t)

	_, err := m.Register(models.TopicOrders, func(context.Context, transport.Delivery) {})
	require.NoError(t, err)
	_, err = m.Register(models.TopicOrders, func(context.Context, transport.Delivery) {})
	require.NoError(t, err)

	require.NoError(t, m.OnConnected(ctx))
	require.NoError(t, m.OnConnected(ctx))
	assert.Equal(t, 1, mem.Consumers(models.TopicOrders))
}

func TestResubscribeAfterReconnect(t *testing.T) {
	m, mem, ctx := newTestManager(t)

	received := make(chan string, 4)
	_, err := m.Register(models.TopicReply, func(_ context.Context, d transport.Delivery) {
		received <- d.Body
	})
	require.NoError(t, err)

	mem.Drop()
	require.Eventually(t, func() bool { return mem.Reconnects() == 1 && mem.Consumers(models.TopicReply) == 1 }, time.Second, time.Millisecond)

	publish(t, mem, ctx, models.TopicReply, "after reconnect")
	select {
	case body := <-received:
		assert.Equal(t, "after reconnect", body)
	case <-time.After(time.Second):
		t.Fatal("no delivery after reconnect")
	}
}

func TestUnsubscribeStopsQueuedDeliveries(t *testing.T) {
	mem := transport.NewMemory(time.Millisecond)
	inbound := channel.NewInbound(16)
	m := NewManager(mem, inbound)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mem.Run(ctx, m)
	require.Eventually(t, func() bool { return mem.State() == transport.StateConnected }, time.Second, time.Millisecond)

	calls := 0
	sub, err := m.Register(models.TopicOrders, func(context.Context, transport.Delivery) { calls++ })
	require.NoError(t, err)

	// queued before the dispatcher runs
	publish(t, mem, ctx, models.TopicOrders, "queued")
	sub.Unsubscribe(ctx)
	require.False(t, sub.Active())

	go m.Run(ctx)
	require.Eventually(t, func() bool { return inbound.Len() == 0 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return m.Stats().Dispatched == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, calls)
	assert.Zero(t, mem.Consumers(models.TopicOrders))
}

func TestUnsubscribeWaitsForRunningHandler(t *testing.T) {
	m, mem, ctx := newTestManager(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished bool
	sub, err := m.Register(models.TopicCandles, func(context.Context, transport.Delivery) {
		close(started)
		<-release
		finished = true
	})
	require.NoError(t, err)

	publish(t, mem, ctx, models.TopicCandles, "slow")
	<-started

	done := make(chan struct{})
	go func() {
		sub.Unsubscribe(ctx)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Unsubscribe returned while handler was running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-done
	assert.True(t, finished)
}

func TestUnsubscribeFromOwnHandler(t *testing.T) {
	m, mem, ctx := newTestManager(t)

	var sub *Subscription
	calls := make(chan struct{}, 4)
	var err error
	sub, err = m.Register(models.TopicCandles, func(hctx context.Context, _ transport.Delivery) {
		calls <- struct{}{}
		sub.Unsubscribe(hctx)
	})
	require.NoError(t, err)

	publish(t, mem, ctx, models.TopicCandles, "one")
	publish(t, mem, ctx, models.TopicCandles, "two")

	require.Eventually(t, func() bool { return m.Stats().Dispatched == 2 }, time.Second, time.Millisecond)
	assert.Len(t, calls, 1)
	assert.False(t, sub.Active())
}

func TestUnsubscribeOtherFromHandler(t *testing.T) {
	m, mem, ctx := newTestManager(t)

	other, err := m.Register(models.TopicOrders, func(context.Context, transport.Delivery) {})
	require.NoError(t, err)
	_, err = m.Register(models.TopicCandles, func(hctx context.Context, _ transport.Delivery) {
		other.Unsubscribe(hctx)
	})
	require.NoError(t, err)

	publish(t, mem, ctx, models.TopicCandles, "one")
	require.Eventually(t, func() bool { return m.Stats().Dispatched == 1 }, time.Second, time.Millisecond)
	assert.False(t, other.Active())
}

func TestUnsubscribeWaitEndsWithContext(t *testing.T) {
	m, mem, ctx := newTestManager(t)

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	sub, err := m.Register(models.TopicCandles, func(context.Context, transport.Delivery) {
		close(started)
		<-release
	})
	require.NoError(t, err)

	publish(t, mem, ctx, models.TopicCandles, "slow")
	<-started

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	sub.Unsubscribe(waitCtx)
	assert.False(t, sub.Active())
	assert.ErrorIs(t, waitCtx.Err(), context.DeadlineExceeded)
}

func TestHandlerPanicDoesNotStopDispatch(t *testing.T) {
	m, mem, ctx := newTestManager(t)

	got := make(chan string, 2)
	_, err := m.Register(models.TopicCandles, func(_ context.Context, d transport.Delivery) {
		if d.Body == "bad" {
			panic("boom")
		}
		got <- d.Body
	})
	require.NoError(t, err)

	publish(t, mem, ctx, models.TopicCandles, "bad")
	publish(t, mem, ctx, models.TopicCandles, "good")

	select {
	case body := <-got:
		assert.Equal(t, "good", body)
	case <-time.After(time.Second):
		t.Fatal("dispatch stopped after panic")
	}
	assert.Equal(t, int64(1), m.Stats().Panics)
}

func TestCloseReleasesEverything(t *testing.T) {
	m, mem, _ := newTestManager(t)

	sub, err := m.Register(models.TopicMoneyLimits, func(context.Context, transport.Delivery) {})
	require.NoError(t, err)
	require.Equal(t, 1, mem.Consumers(models.TopicMoneyLimits))

	m.Close()
	assert.False(t, sub.Active())
	assert.Zero(t, mem.Consumers(models.TopicMoneyLimits))
	assert.Empty(t, m.Topics())

	_, err = m.Register(models.TopicOrders, func(context.Context, transport.Delivery) {})
	assert.Error(t, err)
}
