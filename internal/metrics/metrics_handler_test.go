package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeboard/config"
	"tradeboard/logger"
	"tradeboard/models"
)

func resetMetricHandlers() {
	metricHandlersMu.Lock()
	metricHandlers = make(map[MetricHandlerID]MetricHandler)
	nextMetricHandlerID = 0
	metricHandlersMu.Unlock()
}

// collect registers a handler that keeps only metrics named name.
func collect(t *testing.T, name Name) <-chan Metric {
	t.Helper()
	events := make(chan Metric, 8)
	id := RegisterMetricHandler(func(m Metric) {
		if m.Name == name {
			events <- m
		}
	})
	t.Cleanup(func() { UnregisterMetricHandler(id) })
	return events
}

func next(t *testing.T, events <-chan Metric) Metric {
	t.Helper()
	select {
	case m := <-events:
		return m
	case <-time.After(50 * time.Millisecond):
		t.Fatal("metric not delivered")
		return Metric{}
	}
}

func TestRegisterMetricHandlerIDs(t *testing.T) {
	resetMetricHandlers()

	first := RegisterMetricHandler(func(Metric) {})
	second := RegisterMetricHandler(func(Metric) {})
	assert.NotZero(t, first)
	assert.NotEqual(t, first, second)
	assert.Zero(t, RegisterMetricHandler(nil))
}

func TestUnregisteredHandlerStopsReceiving(t *testing.T) {
	resetMetricHandlers()

	calls := 0
	id := RegisterMetricHandler(func(Metric) { calls++ })
	Emit(nil, Metric{Component: "archive", Name: ArchiveUploadErrors, Value: 1})
	UnregisterMetricHandler(id)
	Emit(nil, Metric{Component: "archive", Name: ArchiveUploadErrors, Value: 1})
	assert.Equal(t, 1, calls)
}

func TestNormalizationDropCarriesTopic(t *testing.T) {
	resetMetricHandlers()
	events := collect(t, NormalizationDropped)

	Init()
	before := testutil.ToFloat64(normalizationErrors.WithLabelValues(string(models.TopicMoneyLimits)))
	EmitDropMetric(logger.GetLogger(), NormalizationDropped, models.TopicMoneyLimits, "decode")

	m := next(t, events)
	assert.Equal(t, "message_drops", m.Component)
	assert.Equal(t, models.TopicMoneyLimits, m.Topic)
	assert.Equal(t, models.Inbound, m.Direction)
	assert.Equal(t, Counter, m.Kind)
	assert.Equal(t, 1.0, m.Value)
	assert.Equal(t, "decode", m.Fields["stage"])
	assert.False(t, m.Timestamp.IsZero())
	assert.Equal(t, before+1, testutil.ToFloat64(normalizationErrors.WithLabelValues(string(models.TopicMoneyLimits))))
}

func TestCommandMetricsAreOutbound(t *testing.T) {
	resetMetricHandlers()
	published := collect(t, CommandsPublished)
	rejected := collect(t, CommandsRejected)

	CommandPublished(models.TopicBuySell)
	CommandRejected(models.TopicRaw, "rate_limited")

	p := next(t, published)
	assert.Equal(t, models.TopicBuySell, p.Topic)
	assert.Equal(t, models.Outbound, p.Direction)

	r := next(t, rejected)
	assert.Equal(t, models.TopicRaw, r.Topic)
	assert.Equal(t, "rate_limited", r.Fields["reason"])
}

func TestArchiveUploadDefaultsToCounter(t *testing.T) {
	resetMetricHandlers()
	events := collect(t, ArchiveUploadErrors)

	fields := logger.Fields{"reason": "interval"}
	Emit(nil, Metric{Component: "archive", Name: ArchiveUploadErrors, Topic: models.TopicCandles, Value: 1, Fields: fields})

	m := next(t, events)
	assert.Equal(t, Counter, m.Kind)
	// the emitted copy is independent of the caller's map
	m.Fields["reason"] = "changed"
	assert.Equal(t, "interval", fields["reason"])
}

func TestMetricLabelsAddTopicAndDirection(t *testing.T) {
	m := Metric{
		Name:      InboundBufferLength,
		Topic:     models.TopicOrders,
		Direction: models.Inbound,
		Fields:    logger.Fields{"buffer": "inbound"},
	}
	assert.Equal(t, logger.Fields{"buffer": "inbound", "topic": "broker.orders", "direction": "in"}, m.Labels())
	assert.Len(t, m.Fields, 1)

	assert.Empty(t, Metric{Name: ArchiveBarsUploaded}.Labels())
}

func TestEmitWithoutNameIsIgnored(t *testing.T) {
	resetMetricHandlers()

	calls := 0
	id := RegisterMetricHandler(func(Metric) { calls++ })
	t.Cleanup(func() { UnregisterMetricHandler(id) })

	Emit(nil, Metric{Component: "archive", Value: 1})
	assert.Zero(t, calls)
}

func TestBufferLengthFollowsChannelSizeFeature(t *testing.T) {
	resetMetricHandlers()
	events := collect(t, InboundBufferLength)

	Configure(config.MetricsConfig{ChannelSize: false})
	t.Cleanup(func() { Configure(config.MetricsConfig{ChannelSize: true}) })

	Emit(nil, Metric{Component: "channel_buffers", Name: InboundBufferLength, Kind: Gauge, Value: 1})
	select {
	case <-events:
		t.Fatal("buffer length emitted while channel_size is disabled")
	case <-time.After(20 * time.Millisecond):
	}

	Configure(config.MetricsConfig{ChannelSize: true})
	Emit(nil, Metric{Component: "channel_buffers", Name: InboundBufferLength, Kind: Gauge, Value: 2})
	require.Equal(t, 2.0, next(t, events).Value)
}
