package metrics

import (
	"sync"
	"time"

	"tradeboard/logger"
	"tradeboard/models"
)

// Name identifies a metric passed through the handler registry.
type Name string

const (
	InboundBufferLength  Name = "inbound_buffer_length"
	InboundDropped       Name = "inbound_messages_dropped"
	NormalizationDropped Name = "normalization_messages_dropped"
	CommandsPublished    Name = "commands_published"
	CommandsRejected     Name = "commands_rejected"
	ArchiveBarsUploaded  Name = "archive_bars_uploaded"
	ArchiveUploadErrors  Name = "archive_upload_errors"
)

// Kind says whether a value accumulates or replaces the previous reading.
type Kind string

const (
	Counter Kind = "counter"
	Gauge   Kind = "gauge"
)

// Metric is one observation about the broker traffic or a side component.
// Topic and Direction are empty for metrics not tied to a queue.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      Name
	Topic     models.Topic
	Direction models.Direction
	Kind      Kind
	Value     float64
	Fields    logger.Fields
}

// Labels returns Fields plus topic and direction when set.
func (m Metric) Labels() logger.Fields {
	out := cloneFields(m.Fields)
	if m.Topic != "" {
		out["topic"] = string(m.Topic)
	}
	if m.Direction != "" {
		out["direction"] = string(m.Direction)
	}
	return out
}

// MetricHandler receives every emitted metric on the emitting goroutine.
type MetricHandler func(Metric)

type MetricHandlerID uint64

var (
	metricHandlersMu    sync.RWMutex
	metricHandlers      = make(map[MetricHandlerID]MetricHandler)
	nextMetricHandlerID MetricHandlerID
)

// RegisterMetricHandler adds handler; nil yields the zero id.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}

	metricHandlersMu.Lock()
	defer metricHandlersMu.Unlock()

	nextMetricHandlerID++
	id := nextMetricHandlerID
	metricHandlers[id] = handler
	return id
}

func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}

	metricHandlersMu.Lock()
	delete(metricHandlers, id)
	metricHandlersMu.Unlock()
}

// Emit stamps m, logs it at debug level, mirrors it into the Prometheus
// component gauge and hands it to every registered handler. Metrics whose
// feature is switched off are discarded.
func Emit(log *logger.Log, m Metric) {
	if m.Name == "" || !metricEnabled(m.Name) {
		return
	}
	if m.Kind == "" {
		m.Kind = Counter
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	m.Fields = cloneFields(m.Fields)

	if log == nil {
		log = logger.GetLogger()
	}
	logFields := m.Labels()
	logFields["metric"] = string(m.Name)
	logFields["metric_type"] = string(m.Kind)
	logFields["value"] = m.Value
	log.WithComponent(m.Component).WithFields(logFields).Debug("metric")

	observeComponentMetric(m)
	dispatchMetric(m)
}

func dispatchMetric(metric Metric) {
	metricHandlersMu.RLock()
	handlers := make([]MetricHandler, 0, len(metricHandlers))
	for _, handler := range metricHandlers {
		handlers = append(handlers, handler)
	}
	metricHandlersMu.RUnlock()

	for _, handler := range handlers {
		handler(metric)
	}
}

func cloneFields(fields logger.Fields) logger.Fields {
	copied := make(logger.Fields, len(fields)+2)
	for k, v := range fields {
		copied[k] = v
	}
	return copied
}
