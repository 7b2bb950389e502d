package board

import (
	"context"
	"errors"
	"fmt"
	"sync"

	appconfig "tradeboard/config"
	"tradeboard/internal/channel"
	"tradeboard/internal/command"
	"tradeboard/internal/eventlog"
	"tradeboard/internal/metrics"
	"tradeboard/internal/normalizer"
	"tradeboard/internal/snapshot"
	"tradeboard/internal/subscription"
	"tradeboard/internal/timeseries"
	"tradeboard/internal/transport"
	"tradeboard/logger"
	"tradeboard/models"
)

// Change tells observers which topic (and key, for keyed state) moved.
type Change struct {
	Topic models.Topic `json:"topic"`
	Key   string       `json:"key,omitempty"`
}

// Board reconciles the inbound broker streams into queryable session state
// and publishes operator commands.
type Board struct {
	config    *appconfig.Config
	transport transport.Transport
	inbound   *channel.Inbound
	subs      *subscription.Manager

	series      *timeseries.Reconciler
	orders      *snapshot.Store[string, models.Order]
	accounts    *snapshot.Store[string, models.Account]
	stockLimits *snapshot.Store[string, models.StockLimit]
	moneyLimits *snapshot.Store[string, models.MoneyLimit]
	events      *eventlog.Log

	builder   command.Builder
	publisher *command.Publisher

	status    *statusTracker
	observers *observers

	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func New(cfg *appconfig.Config, tr transport.Transport) *Board {
	inbound := channel.NewInbound(cfg.Channels.InboundBuffer)
	events := eventlog.New(cfg.EventLog.Capacity)

	return &Board{
		config:      cfg,
		transport:   tr,
		inbound:     inbound,
		subs:        subscription.NewManager(tr, inbound),
		series:      timeseries.New(cfg.Series.MaxBars),
		orders:      snapshot.New[string, models.Order](),
		accounts:    snapshot.New[string, models.Account](),
		stockLimits: snapshot.New[string, models.StockLimit](),
		moneyLimits: snapshot.New[string, models.MoneyLimit](),
		events:      events,
		builder: command.Builder{
			DefaultClass:    cfg.Commands.SecClass,
			DefaultCode:     cfg.Commands.SecCode,
			RequirePositive: cfg.Commands.RequirePositive,
		},
		publisher: command.NewPublisher(tr, events, cfg.Commands.PublishRate, cfg.Commands.PublishBurst),
		status:    &statusTracker{},
		observers: newObservers(),
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
	}
}

// Start registers the inbound topics and runs the dispatcher and the
// transport connection loop until Stop or ctx cancellation.
func (b *Board) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("board already running")
	}
	b.running = true
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.mu.Unlock()

	log := b.log.WithComponent("board").WithFields(logger.Fields{"operation": "start"})

	registered := make([]*subscription.Subscription, 0, len(models.InboundTopics))
	for _, topic := range models.InboundTopics {
		sub, err := b.subs.Register(topic, b.handle)
		if sub != nil {
			registered = append(registered, sub)
		}
		if err != nil {
			for _, s := range registered {
				s.Unsubscribe(context.Background())
			}
			b.cancel()
			b.mu.Lock()
			b.running = false
			b.mu.Unlock()
			return fmt.Errorf("register %s: %w", topic, err)
		}
	}

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.subs.Run(b.ctx)
	}()
	go func() {
		defer b.wg.Done()
		if err := b.transport.Run(b.ctx, b); err != nil {
			log.WithError(err).Error("transport stopped")
		}
	}()

	if b.config.Metrics.ChannelSize {
		metrics.StartChannelSizeMetrics(b.ctx, b.inbound, b.config.Metrics.Interval)
	}

	log.WithField("topics", len(models.InboundTopics)).Info("board started")
	return nil
}

// Stop tears the session down. State stays readable afterwards.
func (b *Board) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.mu.Unlock()

	b.subs.Close()
	b.cancel()
	b.wg.Wait()
	b.log.WithComponent("board").Info("board stopped")
}

// OnConnected implements transport.Listener.
func (b *Board) OnConnected(ctx context.Context) error {
	if err := b.subs.OnConnected(ctx); err != nil {
		return err
	}
	b.status.connected()
	metrics.SetConnectionUp(true)
	b.observers.notify(Change{Topic: topicStatus})
	return nil
}

// OnDisconnected implements transport.Listener.
func (b *Board) OnDisconnected(err error) {
	b.subs.OnDisconnected(err)
	b.status.disconnected(err)
	metrics.SetConnectionUp(false)
	var cerr *transport.ConnectivityError
	if errors.As(err, &cerr) {
		metrics.ConnectionLost()
	}
	b.observers.notify(Change{Topic: topicStatus})
}

// topicStatus is the pseudo topic for connection status changes.
const topicStatus models.Topic = "status"

func (b *Board) handle(_ context.Context, d transport.Delivery) {
	b.status.received(d.ReceivedAt)
	metrics.MessageReceived(d.Topic)

	msg, err := normalizer.Decode(d.Topic, d.Body)
	if err != nil {
		b.log.WithComponent("board").WithError(err).WithFields(logger.Fields{
			"topic": string(d.Topic),
			"raw":   d.Body,
		}).Warn("dropping message")
		metrics.EmitDropMetric(b.log, metrics.NormalizationDropped, d.Topic, "decode")
		return
	}

	change, err := b.apply(msg, d)
	if err != nil {
		b.log.WithComponent("board").WithError(err).WithField("topic", string(d.Topic)).Warn("message not applied")
		metrics.EmitDropMetric(b.log, metrics.NormalizationDropped, d.Topic, "apply")
		return
	}
	b.observers.notify(change)
}

func (b *Board) apply(msg normalizer.Message, d transport.Delivery) (Change, error) {
	switch m := msg.(type) {
	case normalizer.BarMessage:
		if err := b.series.Ingest(m.Bar); err != nil {
			return Change{}, err
		}
		b.status.candle(m.Bar)
		return Change{Topic: models.TopicCandles, Key: m.Bar.Timestamp}, nil
	case normalizer.OrderMessage:
		b.orders.Upsert(m.Order.Number, m.Order)
		return Change{Topic: models.TopicOrders, Key: m.Order.Number}, nil
	case normalizer.AccountMessage:
		b.accounts.Upsert(m.Account.TradeAccount, m.Account)
		return Change{Topic: models.TopicTradeAccount, Key: m.Account.TradeAccount}, nil
	case normalizer.StockLimitMessage:
		b.stockLimits.Upsert(m.Limit.SecCode, m.Limit)
		return Change{Topic: models.TopicStockLimits, Key: m.Limit.SecCode}, nil
	case normalizer.MoneyLimitMessage:
		key := m.Limit.Key()
		b.moneyLimits.Upsert(key, m.Limit)
		return Change{Topic: models.TopicMoneyLimits, Key: key}, nil
	case normalizer.ReplyMessage:
		entry := b.events.Append(models.LogEntry{
			Time:       d.ReceivedAt,
			Topic:      models.TopicReply,
			Direction:  models.Inbound,
			Body:       m.Text,
			Normalized: m.Fields,
		})
		return Change{Topic: models.TopicReply, Key: fmt.Sprint(entry.Seq)}, nil
	default:
		return Change{}, fmt.Errorf("unhandled message %T", msg)
	}
}

// BuySell validates and publishes a buy or sell command. Nothing is
// published when validation fails.
func (b *Board) BuySell(ctx context.Context, operation, secClass, secCode, quantity, price string) (models.LogEntry, error) {
	cmd, err := b.builder.Build(operation, secClass, secCode, quantity, price)
	if err != nil {
		metrics.CommandRejected(models.TopicBuySell, "validation")
		return models.LogEntry{}, err
	}
	return b.send(ctx, cmd)
}

// SendRaw publishes text unchanged on the raw message topic.
func (b *Board) SendRaw(ctx context.Context, text string) (models.LogEntry, error) {
	return b.send(ctx, b.builder.BuildRaw(text))
}

func (b *Board) send(ctx context.Context, cmd command.Command) (models.LogEntry, error) {
	entry, err := b.publisher.Send(ctx, cmd)
	if err != nil {
		return entry, err
	}
	b.observers.notify(Change{Topic: cmd.Topic, Key: fmt.Sprint(entry.Seq)})
	return entry, nil
}

// DefaultRawMessage is the sample shown in the raw message editor.
func (b *Board) DefaultRawMessage() string {
	return b.builder.DefaultRawMessage()
}

// Observe registers fn for every state change. fn runs on the dispatch
// goroutine and must not block.
func (b *Board) Observe(fn func(Change)) (cancel func()) {
	return b.observers.add(fn)
}
