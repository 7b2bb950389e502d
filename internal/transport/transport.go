package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradeboard/models"
)

// Delivery is one inbound message as handed over by a transport.
type Delivery struct {
	Topic      models.Topic
	Body       string
	MessageID  string
	ReceivedAt time.Time
}

// Message is one outbound publish.
type Message struct {
	ID          string
	ContentType string
	Body        []byte
}

// Sink receives deliveries for a subscribed topic. It may block; a returned
// error means the delivery was not accepted.
type Sink func(ctx context.Context, d Delivery) error

// Consumer is an active topic subscription on the current connection.
type Consumer interface {
	Cancel() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, topic models.Topic, sink Sink) (Consumer, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic models.Topic, msg Message) error
}

// Listener is told about connection lifecycle changes. OnConnected runs on
// every (re)connect; an error from it tears the connection down again.
type Listener interface {
	OnConnected(ctx context.Context) error
	OnDisconnected(err error)
}

// Transport keeps a broker connection alive until ctx ends.
type Transport interface {
	Subscriber
	Publisher
	Run(ctx context.Context, l Listener) error
	State() ConnectionState
}

type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var ErrNotConnected = errors.New("not connected")

// ConnectivityError reports a lost or failed broker connection.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

const defaultReconnectDelay = 200 * time.Millisecond

// waitForReconnect sleeps for delay and reports whether ctx ended first.
func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
