package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradeboard/internal/transport"
	"tradeboard/models"
)

func TestInboundSendReceive(t *testing.T) {
	ch := NewInbound(2)
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	d := transport.Delivery{Topic: models.TopicCandles, Body: "{}"}
	if err := ch.Send(ctx, d); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, ok := ch.Receive(ctx)
	if !ok || got.Body != "{}" {
		t.Fatalf("unexpected receive: %+v %v", got, ok)
	}
	if stats := ch.GetStats(); stats.Sent != 1 || stats.Received != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestInboundSendBlocksUntilContextEnds(t *testing.T) {
	ch := NewInbound(1)
	defer ch.Close()

	if err := ch.Send(context.Background(), transport.Delivery{}); err != nil {
		t.Fatalf("first send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := ch.Send(ctx, transport.Delivery{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if stats := ch.GetStats(); stats.Dropped != 1 {
		t.Fatalf("expected dropped counter to be 1, got %d", stats.Dropped)
	}
	if ch.Len() != 1 || ch.Cap() != 1 {
		t.Fatalf("unexpected occupancy %d/%d", ch.Len(), ch.Cap())
	}
}

func TestInboundClosed(t *testing.T) {
	ch := NewInbound(1)
	ch.Close()
	ch.Close()

	if err := ch.Send(context.Background(), transport.Delivery{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, ok := ch.Receive(context.Background()); ok {
		t.Fatalf("expected receive to fail on closed channel")
	}
}
