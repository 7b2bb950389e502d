package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

type topicStat struct {
	messages int64
	bytes    int64
}

var (
	warnCount  sync.Map // map[string]*int64, keyed by component
	errorCount sync.Map
	topics     sync.Map // map[string]*topicStat
)

func recordWarn(component string) {
	v, _ := warnCount.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func recordError(component string) {
	v, _ := errorCount.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

// RecordTopicMessage counts one inbound or outbound message for the runtime report.
func RecordTopicMessage(topic string, size int) {
	v, _ := topics.LoadOrStore(topic, &topicStat{})
	ts := v.(*topicStat)
	atomic.AddInt64(&ts.messages, 1)
	atomic.AddInt64(&ts.bytes, int64(size))
}

// TopicMessages returns the number of messages recorded for topic.
func TopicMessages(topic string) int64 {
	v, ok := topics.Load(topic)
	if !ok {
		return 0
	}
	return atomic.LoadInt64(&v.(*topicStat).messages)
}

// StartReport logs a runtime report every interval until ctx is done.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

func counters(m *sync.Map) map[string]int64 {
	out := map[string]int64{}
	m.Range(func(k, v any) bool {
		out[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	return out
}

func logReport(log *Log) {
	topicData := map[string]map[string]int64{}
	topics.Range(func(k, v any) bool {
		ts := v.(*topicStat)
		topicData[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&ts.messages),
			"bytes":    atomic.LoadInt64(&ts.bytes),
		}
		return true
	})

	fields := Fields{
		"warns":      counters(&warnCount),
		"errors":     counters(&errorCount),
		"topics":     topicData,
		"goroutines": runtime.NumGoroutine(),
	}

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		fields["cpu_percent"] = cpuPercent[0]
	}
	if memStats, err := mem.VirtualMemory(); err == nil {
		fields["memory_mb"] = int64(memStats.Used) / 1024 / 1024
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")
}
