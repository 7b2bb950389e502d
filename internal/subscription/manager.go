package subscription

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"tradeboard/internal/channel"
	"tradeboard/internal/transport"
	"tradeboard/logger"
	"tradeboard/models"
)

// Handler processes one delivery. Handlers run one at a time on the
// dispatch goroutine.
type Handler func(ctx context.Context, d transport.Delivery)

// Subscription is one registered handler for a topic.
type Subscription struct {
	manager *Manager
	topic   models.Topic
	handler Handler

	mu      sync.Mutex
	running chan struct{} // closed when the current invocation returns
	active  atomic.Bool
}

func (s *Subscription) Topic() models.Topic { return s.topic }

func (s *Subscription) Active() bool { return s.active.Load() }

type runningKey struct{}

// Unsubscribe stops the handler. Once it returns the handler is not invoked
// again, including for deliveries already queued, and a running invocation
// has finished or ctx has ended. Called from inside the handler with the
// context it was invoked with, it returns without waiting on itself.
func (s *Subscription) Unsubscribe(ctx context.Context) {
	if !s.active.Swap(false) {
		return
	}
	s.manager.release(s)

	if owner, _ := ctx.Value(runningKey{}).(*Subscription); owner == s {
		return
	}
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running == nil {
		return
	}
	select {
	case <-running:
	case <-ctx.Done():
	}
}

// Manager owns topic subscriptions across reconnects and dispatches inbound
// deliveries sequentially.
type Manager struct {
	sub     transport.Subscriber
	inbound *channel.Inbound
	log     *logger.Entry

	mu        sync.Mutex
	subs      map[models.Topic][]*Subscription
	consumers map[models.Topic]transport.Consumer
	connCtx   context.Context
	closed    bool

	dispatched atomic.Int64
	panics     atomic.Int64
}

func NewManager(sub transport.Subscriber, inbound *channel.Inbound) *Manager {
	return &Manager{
		sub:       sub,
		inbound:   inbound,
		log:       logger.GetLogger().WithComponent("subscription_manager"),
		subs:      make(map[models.Topic][]*Subscription),
		consumers: make(map[models.Topic]transport.Consumer),
	}
}

// Register adds handler for topic. When connected the topic is subscribed
// right away if it is not already; otherwise on the next OnConnected.
func (m *Manager) Register(topic models.Topic, handler Handler) (*Subscription, error) {
	s := &Subscription{manager: m, topic: topic, handler: handler}
	s.active.Store(true)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("register %s: manager closed", topic)
	}
	m.subs[topic] = append(m.subs[topic], s)

	if m.connCtx != nil {
		if err := m.subscribeLocked(m.connCtx, topic); err != nil {
			return s, err
		}
	}
	return s, nil
}

// OnConnected subscribes every registered topic that has no consumer on
// the current connection. Calling it again for the same connection is a
// no-op.
func (m *Manager) OnConnected(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.connCtx = ctx

	for topic, subs := range m.subs {
		if len(subs) == 0 {
			continue
		}
		if err := m.subscribeLocked(ctx, topic); err != nil {
			return err
		}
	}
	m.log.WithField("topics", len(m.consumers)).Info("topics subscribed")
	return nil
}

// OnDisconnected drops every consumer of the lost connection. Registrations
// survive and are resubscribed on the next OnConnected.
func (m *Manager) OnDisconnected(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connCtx = nil
	m.consumers = make(map[models.Topic]transport.Consumer)
	if err != nil {
		m.log.WithError(err).Warn("connection lost, subscriptions released")
	}
}

func (m *Manager) subscribeLocked(ctx context.Context, topic models.Topic) error {
	if _, ok := m.consumers[topic]; ok {
		return nil
	}
	consumer, err := m.sub.Subscribe(ctx, topic, m.inbound.Send)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	m.consumers[topic] = consumer
	m.log.WithField("topic", string(topic)).Debug("topic subscribed")
	return nil
}

// release removes s and cancels the topic consumer when no handler is left.
func (m *Manager) release(s *Subscription) {
	m.mu.Lock()
	subs := m.subs[s.topic]
	for i, cur := range subs {
		if cur == s {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	m.subs[s.topic] = subs

	var consumer transport.Consumer
	if len(subs) == 0 {
		consumer = m.consumers[s.topic]
		delete(m.consumers, s.topic)
		delete(m.subs, s.topic)
	}
	m.mu.Unlock()

	if consumer != nil {
		if err := consumer.Cancel(); err != nil {
			m.log.WithError(err).WithField("topic", string(s.topic)).Warn("failed to cancel consumer")
		}
	}
}

// Run dispatches inbound deliveries until ctx ends or the inbound channel
// is closed.
func (m *Manager) Run(ctx context.Context) {
	for {
		d, ok := m.inbound.Receive(ctx)
		if !ok {
			return
		}
		m.dispatch(ctx, d)
	}
}

func (m *Manager) dispatch(ctx context.Context, d transport.Delivery) {
	m.mu.Lock()
	targets := append([]*Subscription(nil), m.subs[d.Topic]...)
	m.mu.Unlock()

	for _, s := range targets {
		m.invoke(ctx, s, d)
	}
	m.dispatched.Add(1)
}

func (m *Manager) invoke(ctx context.Context, s *Subscription, d transport.Delivery) {
	s.mu.Lock()
	if !s.active.Load() {
		s.mu.Unlock()
		return
	}
	done := make(chan struct{})
	s.running = done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = nil
		s.mu.Unlock()
		close(done)
	}()
	defer func() {
		if r := recover(); r != nil {
			m.panics.Add(1)
			m.log.WithFields(logger.Fields{
				"topic": string(d.Topic),
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("handler panicked")
		}
	}()
	s.handler(context.WithValue(ctx, runningKey{}, s), d)
}

// Topics returns the topics that currently have a live consumer.
func (m *Manager) Topics() []models.Topic {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Topic, 0, len(m.consumers))
	for topic := range m.consumers {
		out = append(out, topic)
	}
	return out
}

type Stats struct {
	Dispatched int64
	Panics     int64
}

func (m *Manager) Stats() Stats {
	return Stats{Dispatched: m.dispatched.Load(), Panics: m.panics.Load()}
}

// Close unsubscribes everything, waiting for a running handler, and stops
// the inbound channel. It must not be called from a handler.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	var all []*Subscription
	for _, subs := range m.subs {
		all = append(all, subs...)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.Unsubscribe(context.Background())
	}
	m.inbound.Close()
}
