package demo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"tradeboard/internal/transport"
	"tradeboard/logger"
	"tradeboard/models"
)

// Feed publishes synthetic broker traffic for the offline mode: a trade
// account and money limit once connected, then one candle per interval as a
// random walk. Payloads use the broker's single-quoted dict notation.
type Feed struct {
	pub      transport.Publisher
	interval time.Duration
	asset    string
	rnd      *rand.Rand
	price    float64
	now      func() time.Time
	log      *logger.Entry
}

func NewFeed(pub transport.Publisher, interval time.Duration, asset string) *Feed {
	if interval <= 0 {
		interval = time.Second
	}
	return &Feed{
		pub:      pub,
		interval: interval,
		asset:    asset,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		price:    250,
		now:      time.Now,
		log:      logger.GetLogger().WithComponent("demo_feed"),
	}
}

// Run publishes until ctx is done. Publishes made while the transport is
// disconnected are skipped.
func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	seeded := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !seeded {
			seeded = f.seed(ctx) == nil
		}
		if err := f.publish(ctx, models.TopicCandles, f.nextCandle()); err != nil {
			var cerr *transport.ConnectivityError
			if !errors.As(err, &cerr) {
				f.log.WithError(err).Warn("failed to publish demo candle")
			}
		}
	}
}

func (f *Feed) seed(ctx context.Context) error {
	account := "{'trdacc': 'NL0011100043', 'firmid': 'NC0011100000', 'classList': ['QJSIM'], 'limitsInLots': True}"
	if err := f.publish(ctx, models.TopicTradeAccount, account); err != nil {
		return err
	}
	money := "{'currency': 'SUR', 'tag': 'EQTV', 'cbal': 1000000.0, 'clim': 0, 'limit_kind': 0}"
	return f.publish(ctx, models.TopicMoneyLimits, money)
}

func (f *Feed) nextCandle() string {
	open := f.price
	f.price = math.Max(1, f.price+f.rnd.NormFloat64())
	high := math.Max(open, f.price) + f.rnd.Float64()/2
	low := math.Min(open, f.price) - f.rnd.Float64()/2
	volume := 100 + f.rnd.Intn(900)

	return fmt.Sprintf("{'d': '%s', 'asset': '%s', 'o': %.2f, 'h': %.2f, 'l': %.2f, 'c': %.2f, 'v': %d}",
		f.now().Truncate(time.Second).Format("2006-01-02 15:04:05"), f.asset, open, high, low, f.price, volume)
}

func (f *Feed) publish(ctx context.Context, topic models.Topic, body string) error {
	return f.pub.Publish(ctx, topic, transport.Message{
		ID:          uuid.NewString(),
		ContentType: "application/json",
		Body:        []byte(body),
	})
}
