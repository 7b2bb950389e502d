package command

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"tradeboard/internal/eventlog"
	"tradeboard/internal/metrics"
	"tradeboard/internal/transport"
	"tradeboard/logger"
	"tradeboard/models"
)

// Publisher sends commands fire-and-forget and records each one in the
// event log.
type Publisher struct {
	pub     transport.Publisher
	events  *eventlog.Log
	limiter *rate.Limiter
	log     *logger.Entry
}

func NewPublisher(pub transport.Publisher, events *eventlog.Log, perSecond float64, burst int) *Publisher {
	if burst <= 0 {
		burst = 1
	}
	return &Publisher{
		pub:     pub,
		events:  events,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		log:     logger.GetLogger().WithComponent("command_publisher"),
	}
}

// Send publishes cmd once. There is no retry; a broker failure is returned
// and the command is not logged.
func (p *Publisher) Send(ctx context.Context, cmd Command) (models.LogEntry, error) {
	body, err := cmd.Body()
	if err != nil {
		metrics.CommandRejected(cmd.Topic, "encode")
		return models.LogEntry{}, fmt.Errorf("encode command: %w", err)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		metrics.CommandRejected(cmd.Topic, "rate_limited")
		return models.LogEntry{}, fmt.Errorf("publish throttled: %w", err)
	}

	msg := transport.Message{ID: cmd.ID, ContentType: cmd.ContentType(), Body: body}
	if err := p.pub.Publish(ctx, cmd.Topic, msg); err != nil {
		metrics.CommandRejected(cmd.Topic, "transport")
		p.log.WithError(err).WithField("topic", string(cmd.Topic)).Warn("failed to publish command")
		return models.LogEntry{}, err
	}
	metrics.CommandPublished(cmd.Topic)

	entry := p.events.Append(models.LogEntry{
		Topic:     cmd.Topic,
		Direction: models.Outbound,
		Body:      string(body),
	})
	p.log.WithFields(logger.Fields{
		"topic": string(cmd.Topic),
		"id":    cmd.ID,
		"seq":   entry.Seq,
	}).Info("command published")
	return entry, nil
}
