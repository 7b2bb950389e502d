package board

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"tradeboard/internal/transport"
	"tradeboard/models"
)

// Status summarises the connection and the size of each view.
type Status struct {
	State         string    `json:"state"`
	Connected     bool      `json:"connected"`
	ConnectedAt   time.Time `json:"connected_at,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	Reconnects    int64     `json:"reconnects"`
	LastError     string    `json:"last_error,omitempty"`
	Topics        []string  `json:"topics"`
	LastCandle    string    `json:"last_candle,omitempty"`
	Bars          int       `json:"bars"`
	Orders        int       `json:"orders"`
	Accounts      int       `json:"accounts"`
	StockLimits   int       `json:"stock_limits"`
	MoneyLimits   int       `json:"money_limits"`
	Events        int       `json:"events"`
}

type statusTracker struct {
	mu            sync.RWMutex
	isConnected   bool
	connectedAt   time.Time
	lastMessageAt time.Time
	connects      int64
	lastErr       error
	lastBar       *models.Bar
}

func (s *statusTracker) connected() {
	s.mu.Lock()
	s.isConnected = true
	s.connectedAt = time.Now()
	s.connects++
	s.mu.Unlock()
}

func (s *statusTracker) disconnected(err error) {
	s.mu.Lock()
	s.isConnected = false
	if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()
}

func (s *statusTracker) received(at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	s.mu.Lock()
	s.lastMessageAt = at
	s.mu.Unlock()
}

// candle remembers the most recently received bar, which need not be the
// newest by timestamp.
func (s *statusTracker) candle(bar models.Bar) {
	s.mu.Lock()
	s.lastBar = &bar
	s.mu.Unlock()
}

func (b *Board) Bars() []models.Bar { return b.series.Snapshot() }

func (b *Board) Orders() []models.Order { return b.orders.Values() }

func (b *Board) Order(number string) (models.Order, bool) { return b.orders.Get(number) }

func (b *Board) Accounts() []models.Account { return b.accounts.Values() }

func (b *Board) StockLimits() []models.StockLimit { return b.stockLimits.Values() }

func (b *Board) MoneyLimits() []models.MoneyLimit { return b.moneyLimits.Values() }

func (b *Board) Events() []models.LogEntry { return b.events.All() }

// Status reports connection state and view sizes.
func (b *Board) Status() Status {
	b.status.mu.RLock()
	st := Status{
		Connected:     b.status.isConnected,
		ConnectedAt:   b.status.connectedAt,
		LastMessageAt: b.status.lastMessageAt,
	}
	if b.status.connects > 1 {
		st.Reconnects = b.status.connects - 1
	}
	if b.status.lastErr != nil {
		st.LastError = b.status.lastErr.Error()
	}
	if last := b.status.lastBar; last != nil {
		st.LastCandle = fmt.Sprintf("Last candle: %s, price: %s", last.Timestamp, formatPrice(last.Close))
	}
	b.status.mu.RUnlock()

	st.State = b.transport.State().String()
	if st.Connected {
		st.State = transport.StateConnected.String()
	}
	for _, topic := range b.subs.Topics() {
		st.Topics = append(st.Topics, string(topic))
	}
	sort.Strings(st.Topics)

	st.Bars = b.series.Len()
	st.Orders = b.orders.Len()
	st.Accounts = b.accounts.Len()
	st.StockLimits = b.stockLimits.Len()
	st.MoneyLimits = b.moneyLimits.Len()
	st.Events = b.events.Len()
	return st
}

func formatPrice(v float64) string {
	return fmt.Sprintf("%g", v)
}
