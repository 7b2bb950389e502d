package timeseries

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"tradeboard/models"
)

type entry struct {
	at  time.Time
	bar models.Bar
}

// Reconciler keeps bars sorted by timestamp with at most one bar per
// timestamp. A bar for a timestamp already held replaces it in place,
// wherever it sits in the series.
type Reconciler struct {
	mu      sync.RWMutex
	entries []entry
	maxBars int

	inserted int64
	replaced int64
}

// Stats counts how ingested bars were applied.
type Stats struct {
	Bars     int
	Inserted int64
	Replaced int64
}

// New returns an empty series. maxBars > 0 keeps only the newest maxBars.
func New(maxBars int) *Reconciler {
	return &Reconciler{maxBars: maxBars}
}

// Ingest merges bar into the series.
func (r *Reconciler) Ingest(bar models.Bar) error {
	at, err := models.ParseTime(bar.Timestamp)
	if err != nil {
		return fmt.Errorf("ingest bar: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.entries)
	// in-order delivery is the common case
	if n == 0 || r.entries[n-1].at.Before(at) {
		r.entries = append(r.entries, entry{at: at, bar: bar})
		r.inserted++
		r.trim()
		return nil
	}

	i := sort.Search(n, func(i int) bool { return !r.entries[i].at.Before(at) })
	if i < n && r.entries[i].at.Equal(at) {
		r.entries[i].bar = bar
		r.replaced++
		return nil
	}

	r.entries = append(r.entries, entry{})
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = entry{at: at, bar: bar}
	r.inserted++
	r.trim()
	return nil
}

func (r *Reconciler) trim() {
	if r.maxBars <= 0 || len(r.entries) <= r.maxBars {
		return
	}
	drop := len(r.entries) - r.maxBars
	r.entries = append(r.entries[:0], r.entries[drop:]...)
}

// Snapshot returns a copy of the series, oldest first.
func (r *Reconciler) Snapshot() []models.Bar {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Bar, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.bar
	}
	return out
}

func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Reconciler) MaxBars() int { return r.maxBars }

func (r *Reconciler) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Bars: len(r.entries), Inserted: r.inserted, Replaced: r.replaced}
}
