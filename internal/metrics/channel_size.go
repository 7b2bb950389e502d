package metrics

import (
	"context"
	"time"

	"tradeboard/internal/channel"
	"tradeboard/logger"
	"tradeboard/models"
)

// StartChannelSizeMetrics emits inbound buffer occupancy every interval until
// ctx is cancelled. A non-positive interval means one second.
func StartChannelSizeMetrics(ctx context.Context, inbound *channel.Inbound, interval time.Duration) {
	if !IsFeatureEnabled(FeatureChannelSize) || inbound == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reportChannelSize(log, inbound)
			}
		}
	}()
}

func reportChannelSize(log *logger.Log, inbound *channel.Inbound) {
	stats := inbound.GetStats()
	Emit(log, Metric{
		Component: "channel_buffers",
		Name:      InboundBufferLength,
		Direction: models.Inbound,
		Kind:      Gauge,
		Value:     float64(inbound.Len()),
		Fields: logger.Fields{
			"buffer":   "inbound",
			"capacity": inbound.Cap(),
		},
	})
	Emit(log, Metric{
		Component: "channel_buffers",
		Name:      InboundDropped,
		Direction: models.Inbound,
		Kind:      Gauge,
		Value:     float64(stats.Dropped),
		Fields:    logger.Fields{"buffer": "inbound"},
	})
}
