// Registers:
//
//	#tradeboard_messages_received_total{topic}
//	#tradeboard_normalization_errors_total{topic}
//	#tradeboard_commands_published_total{topic}
//	#tradeboard_commands_rejected_total{reason}
//	#tradeboard_connection_up
//	#tradeboard_reconnects_total
//	#tradeboard_component_metric{component,metric,topic}
//	#go_* and process_* system metrics
//
// Served by the dashboard under /metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradeboard/logger"
	"tradeboard/models"
)

var (
	once     sync.Once
	registry = prometheus.NewRegistry()

	messagesReceived    *prometheus.CounterVec
	normalizationErrors *prometheus.CounterVec
	commandsPublished   *prometheus.CounterVec
	commandsRejected    *prometheus.CounterVec
	connectionUp        prometheus.Gauge
	reconnects          prometheus.Counter
	componentMetric     *prometheus.GaugeVec
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		messagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeboard_messages_received_total",
			Help: "Inbound messages dispatched, per topic",
		}, []string{"topic"})
		normalizationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeboard_normalization_errors_total",
			Help: "Inbound messages dropped because they could not be normalized",
		}, []string{"topic"})
		commandsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeboard_commands_published_total",
			Help: "Outbound commands published, per topic",
		}, []string{"topic"})
		commandsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeboard_commands_rejected_total",
			Help: "Outbound commands not published",
		}, []string{"reason"})
		connectionUp = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradeboard_connection_up",
			Help: "1 while the broker connection is established",
		})
		reconnects = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradeboard_reconnects_total",
			Help: "Broker connections lost",
		})
		componentMetric = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradeboard_component_metric",
			Help: "Running value of metrics passed to Emit",
		}, []string{"component", "metric", "topic"})

		registry.MustRegister(
			messagesReceived,
			normalizationErrors,
			commandsPublished,
			commandsRejected,
			connectionUp,
			reconnects,
			componentMetric,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func MessageReceived(topic models.Topic) {
	Init()
	messagesReceived.WithLabelValues(string(topic)).Inc()
}

func NormalizationFailed(topic models.Topic) {
	Init()
	normalizationErrors.WithLabelValues(string(topic)).Inc()
}

// CommandPublished counts one outbound command and reports it to the
// metric handlers.
func CommandPublished(topic models.Topic) {
	Init()
	commandsPublished.WithLabelValues(string(topic)).Inc()
	Emit(nil, Metric{
		Component: "command_publisher",
		Name:      CommandsPublished,
		Topic:     topic,
		Direction: models.Outbound,
		Kind:      Counter,
		Value:     1,
	})
}

// CommandRejected counts one command that was not published.
func CommandRejected(topic models.Topic, reason string) {
	Init()
	commandsRejected.WithLabelValues(reason).Inc()
	Emit(nil, Metric{
		Component: "command_publisher",
		Name:      CommandsRejected,
		Topic:     topic,
		Direction: models.Outbound,
		Kind:      Counter,
		Value:     1,
		Fields:    logger.Fields{"reason": reason},
	})
}

func SetConnectionUp(up bool) {
	Init()
	if up {
		connectionUp.Set(1)
		return
	}
	connectionUp.Set(0)
}

func ConnectionLost() {
	Init()
	reconnects.Inc()
}

func observeComponentMetric(m Metric) {
	Init()
	g := componentMetric.WithLabelValues(m.Component, string(m.Name), string(m.Topic))
	if m.Kind == Counter {
		g.Add(m.Value)
		return
	}
	g.Set(m.Value)
}
