package metrics

import (
	"sync/atomic"

	"tradeboard/config"
)

type Feature string

const FeatureChannelSize Feature = "channel_size"

var channelSizeEnabled atomic.Bool

func init() {
	channelSizeEnabled.Store(true)
}

// Configure applies the metric toggles from configuration.
func Configure(cfg config.MetricsConfig) {
	channelSizeEnabled.Store(cfg.ChannelSize)
}

func IsFeatureEnabled(feature Feature) bool {
	switch feature {
	case FeatureChannelSize:
		return channelSizeEnabled.Load()
	default:
		return true
	}
}

func metricEnabled(name Name) bool {
	if name == InboundBufferLength {
		return IsFeatureEnabled(FeatureChannelSize)
	}
	return true
}
