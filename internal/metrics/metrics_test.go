package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeboard/internal/channel"
	"tradeboard/internal/transport"
	"tradeboard/logger"
	"tradeboard/models"
)

func TestCountersByTopic(t *testing.T) {
	Init()
	before := testutil.ToFloat64(messagesReceived.WithLabelValues(string(models.TopicOrders)))
	MessageReceived(models.TopicOrders)
	MessageReceived(models.TopicOrders)
	assert.Equal(t, before+2, testutil.ToFloat64(messagesReceived.WithLabelValues(string(models.TopicOrders))))
}

func TestConnectionGauge(t *testing.T) {
	SetConnectionUp(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(connectionUp))
	SetConnectionUp(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(connectionUp))
}

func TestEmitFeedsComponentGauge(t *testing.T) {
	Emit(nil, Metric{Component: "archive", Name: ArchiveBarsUploaded, Topic: models.TopicCandles, Kind: Gauge, Value: 12})
	assert.Equal(t, 12.0, testutil.ToFloat64(componentMetric.WithLabelValues("archive", "archive_bars_uploaded", "feed.candles")))

	g := componentMetric.WithLabelValues("archive", "archive_upload_errors", "feed.candles")
	before := testutil.ToFloat64(g)
	Emit(nil, Metric{Component: "archive", Name: ArchiveUploadErrors, Topic: models.TopicCandles, Value: 1})
	Emit(nil, Metric{Component: "archive", Name: ArchiveUploadErrors, Topic: models.TopicCandles, Value: 1})
	assert.Equal(t, before+2, testutil.ToFloat64(g))
}

func TestHandlerExposesMetrics(t *testing.T) {
	CommandPublished(models.TopicBuySell)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tradeboard_commands_published_total"))
}

func TestReportChannelSize(t *testing.T) {
	resetMetricHandlers()

	inbound := channel.NewInbound(4)
	defer inbound.Close()
	require.NoError(t, inbound.Send(context.Background(), transport.Delivery{Topic: models.TopicCandles}))

	lengths := collect(t, InboundBufferLength)
	drops := collect(t, InboundDropped)

	reportChannelSize(logger.GetLogger(), inbound)

	length := next(t, lengths)
	assert.Equal(t, 1.0, length.Value)
	assert.Equal(t, Gauge, length.Kind)
	assert.Equal(t, models.Inbound, length.Direction)
	assert.Equal(t, 4, length.Fields["capacity"])

	assert.Equal(t, 0.0, next(t, drops).Value)
}
