package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"tradeboard/config"
	"tradeboard/logger"
	"tradeboard/models"
)

// publishChannel is the part of *amqp.Channel the publish path uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// AMQP is a RabbitMQ transport. Every logical topic maps to a queue named
// <prefix><topic> on the default exchange, one consuming channel per topic.
// Outbound queues belong to their consumer and are never declared here.
type AMQP struct {
	cfg config.BrokerConfig
	log *logger.Entry

	mu      sync.Mutex
	conn    *amqp.Connection
	pubCh   publishChannel
	openPub func() (publishChannel, error)

	state      atomic.Int32
	reconnects atomic.Int64
	wg         sync.WaitGroup
}

func NewAMQP(cfg config.BrokerConfig) *AMQP {
	return &AMQP{
		cfg: cfg,
		log: logger.GetLogger().WithComponent("amqp_transport"),
	}
}

func (t *AMQP) State() ConnectionState { return ConnectionState(t.state.Load()) }

// Reconnects counts connections re-established after a loss.
func (t *AMQP) Reconnects() int64 { return t.reconnects.Load() }

// Run dials the broker and redials with a fixed delay after every loss until
// ctx is cancelled.
func (t *AMQP) Run(ctx context.Context, l Listener) error {
	url := t.cfg.BrokerURL()
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		t.state.Store(int32(StateConnecting))

		conn, err := amqp.DialConfig(url, amqp.Config{
			Heartbeat:  10 * time.Second,
			Properties: amqp.Table{"connection_name": "tradeboard"},
		})
		if err != nil {
			t.state.Store(int32(StateDisconnected))
			t.log.WithError(&ConnectivityError{Op: "dial", Err: err}).Warn("failed to connect to broker")
			if waitForReconnect(ctx, t.cfg.ReconnectDelay) {
				return nil
			}
			continue
		}

		if err := t.attach(conn); err != nil {
			t.log.WithError(err).Warn("failed to open publish channel")
			conn.Close()
			t.state.Store(int32(StateDisconnected))
			if waitForReconnect(ctx, t.cfg.ReconnectDelay) {
				return nil
			}
			continue
		}
		closed := conn.NotifyClose(make(chan *amqp.Error, 1))

		if attempt > 0 {
			t.reconnects.Add(1)
		}
		attempt++

		var cause error
		if err := l.OnConnected(ctx); err != nil {
			cause = &ConnectivityError{Op: "subscribe", Err: err}
		} else {
			t.state.Store(int32(StateConnected))
			t.log.WithField("attempt", attempt).Info("connected to broker")
			select {
			case <-ctx.Done():
			case amqpErr, ok := <-closed:
				if ok && amqpErr != nil {
					cause = &ConnectivityError{Op: "connection", Err: amqpErr}
				} else {
					cause = &ConnectivityError{Op: "connection", Err: errors.New("closed")}
				}
			}
		}

		t.detach()
		t.state.Store(int32(StateDisconnected))
		l.OnDisconnected(cause)

		if ctx.Err() != nil {
			return nil
		}
		t.log.WithError(cause).Warn("broker connection lost, reconnecting")
		if waitForReconnect(ctx, t.cfg.ReconnectDelay) {
			return nil
		}
	}
}

func (t *AMQP) attach(conn *amqp.Connection) error {
	open := func() (publishChannel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	ch, err := open()
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.conn = conn
	t.pubCh = ch
	t.openPub = open
	t.mu.Unlock()
	return nil
}

func (t *AMQP) detach() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.pubCh = nil
	t.openPub = nil
	t.mu.Unlock()

	if conn != nil && !conn.IsClosed() {
		_ = conn.Close()
	}
	t.wg.Wait()
}

func (t *AMQP) declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(queue, t.cfg.Durable, t.cfg.AutoDelete, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}

// Subscribe starts consuming the queue of topic on the current connection.
// Deliveries are acknowledged once sink accepts them.
func (t *AMQP) Subscribe(ctx context.Context, topic models.Topic, sink Sink) (Consumer, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return nil, &ConnectivityError{Op: "subscribe", Err: ErrNotConnected}
	}

	queue := topic.QueueName(t.cfg.QueuePrefix)
	ch, err := conn.Channel()
	if err != nil {
		return nil, &ConnectivityError{Op: "subscribe", Err: err}
	}
	if err := t.declare(ch, queue); err != nil {
		ch.Close()
		return nil, err
	}
	prefetch := t.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos for %s: %w", queue, err)
	}

	tag := "tradeboard-" + string(topic) + "-" + uuid.NewString()
	deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("start consume for %s: %w", queue, err)
	}

	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		ch.Close()
		return nil, &ConnectivityError{Op: "subscribe", Err: ErrNotConnected}
	}
	t.wg.Add(1)
	t.mu.Unlock()
	go t.consumeLoop(ctx, topic, deliveries, sink)

	return &amqpConsumer{ch: ch, tag: tag}, nil
}

func (t *AMQP) consumeLoop(ctx context.Context, topic models.Topic, deliveries <-chan amqp.Delivery, sink Sink) {
	defer t.wg.Done()
	log := t.log.WithField("topic", string(topic))
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			logger.RecordTopicMessage(string(topic), len(delivery.Body))
			d := Delivery{
				Topic:      topic,
				Body:       string(delivery.Body),
				MessageID:  delivery.MessageId,
				ReceivedAt: time.Now(),
			}
			if err := sink(ctx, d); err != nil {
				log.WithError(err).Warn("delivery not accepted")
				_ = delivery.Nack(false, true)
				continue
			}
			if err := delivery.Ack(false); err != nil {
				log.WithError(err).Warn("failed to ack delivery")
			}
		}
	}
}

// Publish sends msg to the queue of topic. It does not wait for broker
// confirmation. A publish channel closed by a channel exception is reopened
// on the live connection.
func (t *AMQP) Publish(ctx context.Context, topic models.Topic, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.openPub == nil {
		return &ConnectivityError{Op: "publish", Err: ErrNotConnected}
	}
	if t.pubCh == nil || t.pubCh.IsClosed() {
		ch, err := t.openPub()
		if err != nil {
			t.pubCh = nil
			return &ConnectivityError{Op: "publish", Err: err}
		}
		t.pubCh = ch
		t.log.Info("publish channel reopened")
	}
	queue := topic.QueueName(t.cfg.QueuePrefix)

	mode := amqp.Transient
	if t.cfg.Durable {
		mode = amqp.Persistent
	}
	err := t.pubCh.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  msg.ContentType,
		MessageId:    msg.ID,
		Timestamp:    time.Now(),
		DeliveryMode: mode,
		Body:         msg.Body,
	})
	if err != nil {
		return &ConnectivityError{Op: "publish", Err: err}
	}
	logger.RecordTopicMessage(string(topic), len(msg.Body))
	return nil
}

type amqpConsumer struct {
	ch   *amqp.Channel
	tag  string
	once sync.Once
	err  error
}

func (c *amqpConsumer) Cancel() error {
	c.once.Do(func() {
		if c.ch.IsClosed() {
			return
		}
		if err := c.ch.Cancel(c.tag, false); err != nil {
			c.err = err
		}
		_ = c.ch.Close()
	})
	return c.err
}
