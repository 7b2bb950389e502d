package models

import "strings"

// Topic is a logical pub/sub destination, independent of the queue prefix.
type Topic string

const (
	TopicCandles      Topic = "feed.candles"
	TopicTradeAccount Topic = "broker.trade.account"
	TopicOrders       Topic = "broker.orders"
	TopicStockLimits  Topic = "broker.stock.limits"
	TopicMoneyLimits  Topic = "broker.money.limits"
	TopicReply        Topic = "broker.msg.reply"
	TopicBuySell      Topic = "broker.cmd.buysell"
	TopicRaw          Topic = "broker.msg.raw"
)

// InboundTopics lists the topics the board subscribes to.
var InboundTopics = []Topic{
	TopicCandles,
	TopicTradeAccount,
	TopicOrders,
	TopicStockLimits,
	TopicMoneyLimits,
	TopicReply,
}

// QueueName returns the physical queue name for prefix.
func (t Topic) QueueName(prefix string) string {
	return prefix + string(t)
}

// TopicFromQueue strips prefix from a physical queue name.
func TopicFromQueue(prefix, queue string) Topic {
	return Topic(strings.TrimPrefix(queue, prefix))
}
