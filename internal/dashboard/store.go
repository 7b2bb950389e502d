package dashboard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"tradeboard/internal/metrics"
)

const defaultHistory = 200

// history keeps the most recent limit items. It is safe for concurrent use.
type history[T any] struct {
	mu    sync.RWMutex
	items []T
	limit int
}

func newHistory[T any](limit int) *history[T] {
	if limit <= 0 {
		limit = defaultHistory
	}
	return &history[T]{limit: limit}
}

func (h *history[T]) add(item T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items = append(h.items, item)
	if len(h.items) > h.limit {
		h.items = append([]T(nil), h.items[len(h.items)-h.limit:]...)
	}
}

func (h *history[T]) snapshot() []T {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]T, len(h.items))
	copy(out, h.items)
	return out
}

// metricStore collects metrics emitted through the metrics handler registry.
type metricStore struct {
	*history[metrics.Metric]
}

func newMetricStore(limit int) *metricStore {
	return &metricStore{history: newHistory[metrics.Metric](limit)}
}

func (s *metricStore) handle(metric metrics.Metric) {
	s.add(metric)
}

// logRecord is a captured log line as served by /api/logs.
type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logStore is a logrus hook retaining recent log lines for the dashboard.
type logStore struct {
	*history[logRecord]
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	ls := &logStore{history: newHistory[logRecord](limit)}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}
	if component, ok := entry.Data["component"].(string); ok {
		record.Component = component
	}
	if len(entry.Data) > 0 {
		record.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if k == "component" {
				continue
			}
			switch val := v.(type) {
			case error:
				record.Fields[k] = val.Error()
			case fmt.Stringer:
				record.Fields[k] = val.String()
			default:
				record.Fields[k] = val
			}
		}
	}

	s.add(record)
	return nil
}

func (s *logStore) close() {
	s.enabled.Store(false)
}
