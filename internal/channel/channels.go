package channel

import (
	"context"
	"errors"
	"sync"

	"tradeboard/internal/transport"
	"tradeboard/logger"
)

var ErrClosed = errors.New("inbound channel closed")

type ChannelStats struct {
	Sent     int64
	Received int64
	Dropped  int64
}

// Inbound is the bounded queue between transport consumers and the single
// dispatch goroutine. Send blocks while the buffer is full, which holds back
// broker acknowledgements instead of losing messages.
type Inbound struct {
	ch   chan transport.Delivery
	done chan struct{}
	once sync.Once

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewInbound(bufferSize int) *Inbound {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	log := logger.GetLogger()
	c := &Inbound{
		ch:   make(chan transport.Delivery, bufferSize),
		done: make(chan struct{}),
		log:  log,
	}

	log.WithComponent("inbound_channel").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("inbound channel initialized")

	return c
}

// Send queues d. It fails when ctx ends or the channel is closed first.
func (c *Inbound) Send(ctx context.Context, d transport.Delivery) error {
	select {
	case <-c.done:
		c.incrementDropped()
		return ErrClosed
	default:
	}

	select {
	case c.ch <- d:
		c.statsMutex.Lock()
		c.stats.Sent++
		c.statsMutex.Unlock()
		return nil
	case <-ctx.Done():
		c.incrementDropped()
		return ctx.Err()
	case <-c.done:
		c.incrementDropped()
		return ErrClosed
	}
}

// Receive waits for the next delivery. ok is false once ctx ends or the
// channel is closed.
func (c *Inbound) Receive(ctx context.Context) (transport.Delivery, bool) {
	select {
	case d := <-c.ch:
		c.statsMutex.Lock()
		c.stats.Received++
		c.statsMutex.Unlock()
		return d, true
	case <-ctx.Done():
		return transport.Delivery{}, false
	case <-c.done:
		return transport.Delivery{}, false
	}
}

// Close stops accepting deliveries. The underlying channel is never closed
// so concurrent senders cannot panic.
func (c *Inbound) Close() {
	c.once.Do(func() {
		close(c.done)
		c.log.WithComponent("inbound_channel").Info("inbound channel closed")
	})
}

func (c *Inbound) Len() int { return len(c.ch) }

func (c *Inbound) Cap() int { return cap(c.ch) }

func (c *Inbound) incrementDropped() {
	c.statsMutex.Lock()
	c.stats.Dropped++
	c.statsMutex.Unlock()
}

func (c *Inbound) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
