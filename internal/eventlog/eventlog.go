package eventlog

import (
	"sync"
	"time"

	"tradeboard/models"
)

// Log is an append-only, ordered record of replies and outbound commands.
// With a positive capacity it keeps only the most recent entries.
type Log struct {
	mu       sync.RWMutex
	capacity int
	entries  []models.LogEntry
	start    int
	seq      uint64
	now      func() time.Time
}

// New returns a log. capacity 0 keeps every entry.
func New(capacity int) *Log {
	if capacity < 0 {
		capacity = 0
	}
	return &Log{capacity: capacity, now: time.Now}
}

// Append stores entry, assigning its sequence number and, when unset, its
// time.
func (l *Log) Append(entry models.LogEntry) models.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	entry.Seq = l.seq
	if entry.Time.IsZero() {
		entry.Time = l.now()
	}

	if l.capacity == 0 || len(l.entries) < l.capacity {
		l.entries = append(l.entries, entry)
		return entry
	}
	l.entries[l.start] = entry
	l.start = (l.start + 1) % l.capacity
	return entry
}

// All returns the retained entries, oldest first.
func (l *Log) All() []models.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.LogEntry, 0, len(l.entries))
	out = append(out, l.entries[l.start:]...)
	out = append(out, l.entries[:l.start]...)
	return out
}

// Len is the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Total is the number of entries ever appended.
func (l *Log) Total() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}
