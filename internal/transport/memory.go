package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"tradeboard/logger"
	"tradeboard/models"
)

// Memory is an in-process broker used by tests and the offline mode.
// Publishing to a topic hands the message to every consumer of that topic.
type Memory struct {
	delay time.Duration

	mu        sync.Mutex
	connected bool
	consumers map[models.Topic]map[uint64]*memoryConsumer
	nextID    uint64
	published map[models.Topic][]Message
	drop      chan struct{}

	state      atomic.Int32
	reconnects atomic.Int64
}

func NewMemory(reconnectDelay time.Duration) *Memory {
	return &Memory{
		delay:     reconnectDelay,
		consumers: make(map[models.Topic]map[uint64]*memoryConsumer),
		published: make(map[models.Topic][]Message),
		drop:      make(chan struct{}, 1),
	}
}

func (m *Memory) State() ConnectionState { return ConnectionState(m.state.Load()) }

func (m *Memory) Reconnects() int64 { return m.reconnects.Load() }

// Run connects immediately and reconnects after every Drop.
func (m *Memory) Run(ctx context.Context, l Listener) error {
	first := true
	for {
		if ctx.Err() != nil {
			return nil
		}
		connCtx, cancel := context.WithCancel(ctx)
		m.mu.Lock()
		m.connected = true
		m.mu.Unlock()
		if !first {
			m.reconnects.Add(1)
		}
		first = false
		m.state.Store(int32(StateConnecting))

		var cause error
		if err := l.OnConnected(connCtx); err != nil {
			cause = &ConnectivityError{Op: "subscribe", Err: err}
		} else {
			m.state.Store(int32(StateConnected))
			select {
			case <-ctx.Done():
			case <-m.drop:
				cause = &ConnectivityError{Op: "connection", Err: errors.New("dropped")}
			}
		}

		cancel()
		m.mu.Lock()
		m.connected = false
		m.consumers = make(map[models.Topic]map[uint64]*memoryConsumer)
		m.mu.Unlock()
		m.state.Store(int32(StateDisconnected))
		l.OnDisconnected(cause)

		if waitForReconnect(ctx, m.delay) {
			return nil
		}
	}
}

// Drop simulates a lost connection.
func (m *Memory) Drop() {
	select {
	case m.drop <- struct{}{}:
	default:
	}
}

func (m *Memory) Subscribe(ctx context.Context, topic models.Topic, sink Sink) (Consumer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, &ConnectivityError{Op: "subscribe", Err: ErrNotConnected}
	}
	m.nextID++
	c := &memoryConsumer{owner: m, topic: topic, id: m.nextID, sink: sink}
	if m.consumers[topic] == nil {
		m.consumers[topic] = make(map[uint64]*memoryConsumer)
	}
	m.consumers[topic][c.id] = c
	return c, nil
}

// Publish records msg and delivers it to the consumers of topic.
func (m *Memory) Publish(ctx context.Context, topic models.Topic, msg Message) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return &ConnectivityError{Op: "publish", Err: ErrNotConnected}
	}
	m.published[topic] = append(m.published[topic], msg)
	targets := make([]*memoryConsumer, 0, len(m.consumers[topic]))
	for _, c := range m.consumers[topic] {
		targets = append(targets, c)
	}
	m.mu.Unlock()

	logger.RecordTopicMessage(string(topic), len(msg.Body))
	d := Delivery{Topic: topic, Body: string(msg.Body), MessageID: msg.ID, ReceivedAt: time.Now()}
	for _, c := range targets {
		if err := c.sink(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// Published returns every message published to topic so far.
func (m *Memory) Published(topic models.Topic) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.published[topic]...)
}

// Consumers is the number of active consumers of topic.
func (m *Memory) Consumers(topic models.Topic) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.consumers[topic])
}

type memoryConsumer struct {
	owner *Memory
	topic models.Topic
	id    uint64
	sink  Sink
}

func (c *memoryConsumer) Cancel() error {
	c.owner.mu.Lock()
	delete(c.owner.consumers[c.topic], c.id)
	c.owner.mu.Unlock()
	return nil
}
