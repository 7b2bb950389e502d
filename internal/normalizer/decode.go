package normalizer

import (
	"fmt"
	"strings"
	"time"

	"tradeboard/models"
)

// Message is the typed result of decoding a payload for a known topic.
type Message interface {
	Topic() models.Topic
}

type BarMessage struct{ Bar models.Bar }

type OrderMessage struct{ Order models.Order }

type AccountMessage struct{ Account models.Account }

type StockLimitMessage struct{ Limit models.StockLimit }

type MoneyLimitMessage struct{ Limit models.MoneyLimit }

// ReplyMessage carries free-form broker text. Fields is set when the text
// happened to be a structured payload.
type ReplyMessage struct {
	Text   string
	Fields Record
}

func (BarMessage) Topic() models.Topic        { return models.TopicCandles }
func (OrderMessage) Topic() models.Topic      { return models.TopicOrders }
func (AccountMessage) Topic() models.Topic    { return models.TopicTradeAccount }
func (StockLimitMessage) Topic() models.Topic { return models.TopicStockLimits }
func (MoneyLimitMessage) Topic() models.Topic { return models.TopicMoneyLimits }
func (ReplyMessage) Topic() models.Topic      { return models.TopicReply }

type decodeFunc func(Record) (Message, error)

var decoders = map[models.Topic]decodeFunc{
	models.TopicCandles:      decodeBar,
	models.TopicOrders:       decodeOrder,
	models.TopicTradeAccount: decodeAccount,
	models.TopicStockLimits:  decodeStockLimit,
	models.TopicMoneyLimits:  decodeMoneyLimit,
}

// Decode normalizes raw and validates it against the schema of topic.
// Replies never fail: unstructured text is kept as is.
func Decode(topic models.Topic, raw string) (Message, error) {
	if topic == models.TopicReply {
		reply := ReplyMessage{Text: raw}
		if rec, err := normalize(topic, raw); err == nil {
			reply.Fields = rec
		}
		return reply, nil
	}

	decode, ok := decoders[topic]
	if !ok {
		return nil, newError(topic, raw, "no decoder for topic")
	}
	rec, err := normalize(topic, raw)
	if err != nil {
		return nil, err
	}
	msg, err := decode(rec)
	if err != nil {
		return nil, &NormalizationError{Topic: topic, Raw: raw, Err: err}
	}
	return msg, nil
}

// fieldReader collects the first error while reading several fields.
type fieldReader struct {
	rec Record
	err error
}

func (f *fieldReader) required(keys ...string) string {
	v, ok := f.rec.String(keys...)
	if (!ok || strings.TrimSpace(v) == "") && f.err == nil {
		f.err = fmt.Errorf("missing required field %q", strings.Join(keys, "|"))
	}
	return strings.TrimSpace(v)
}

func (f *fieldReader) optional(keys ...string) string {
	v, _ := f.rec.String(keys...)
	return v
}

func (f *fieldReader) number(required bool, keys ...string) float64 {
	v, ok, err := f.rec.Float(keys...)
	if f.err != nil {
		return v
	}
	switch {
	case err != nil:
		f.err = err
	case !ok && required:
		f.err = fmt.Errorf("missing required field %q", strings.Join(keys, "|"))
	}
	return v
}

func (f *fieldReader) integer(keys ...string) int64 {
	v, _, err := f.rec.Int(keys...)
	if err != nil && f.err == nil {
		f.err = err
	}
	return v
}

func (f *fieldReader) flag(keys ...string) bool {
	v, _, err := f.rec.Bool(keys...)
	if err != nil && f.err == nil {
		f.err = err
	}
	return v
}

func decodeBar(rec Record) (Message, error) {
	f := &fieldReader{rec: rec}
	bar := models.Bar{
		Timestamp: f.required("d", "dt"),
		Asset:     f.optional("asset"),
		Open:      f.number(true, "o"),
		High:      f.number(true, "h"),
		Low:       f.number(true, "l"),
		Close:     f.number(true, "c"),
		Volume:    f.number(false, "v"),
	}
	if f.err != nil {
		return nil, f.err
	}
	if _, err := models.ParseTime(bar.Timestamp); err != nil {
		return nil, err
	}
	return BarMessage{Bar: bar}, nil
}

func decodeOrder(rec Record) (Message, error) {
	f := &fieldReader{rec: rec}
	order := models.Order{
		Number:    f.required("number"),
		ClassCode: f.optional("class_code", "ccode"),
		SecCode:   f.optional("sec_code", "scode"),
		IsSell:    f.flag("is_sell", "sell"),
		Account:   f.optional("account"),
		Price:     f.number(false, "price"),
		Quantity:  f.number(false, "quantity", "qty"),
		Volume:    f.number(false, "volume"),
		Status:    f.optional("status"),
	}
	if f.err != nil {
		return nil, f.err
	}

	dt, err := orderTime(rec)
	if err != nil {
		return nil, err
	}
	order.Time = dt
	return OrderMessage{Order: order}, nil
}

// orderTime reads either a textual dt or the QUIK qdate/qtime integer pair.
func orderTime(rec Record) (time.Time, error) {
	if s, ok := rec.String("dt"); ok && s != "" {
		return models.ParseTime(s)
	}
	if !rec.Has("qdate") {
		return time.Time{}, nil
	}
	date, _, err := rec.Int("qdate")
	if err != nil {
		return time.Time{}, err
	}
	clock, _, err := rec.Int("qtime")
	if err != nil {
		return time.Time{}, err
	}
	return DecodeQuikTime(date, clock)
}

// DecodeQuikTime converts QUIK integer date and time (20210724, 144005) into
// a time.Time in UTC.
func DecodeQuikTime(date, clock int64) (time.Time, error) {
	year, month, day := int(date/10000), int(date%10000/100), int(date%100)
	hour, minute, sec := int(clock/10000), int(clock%10000/100), int(clock%100)
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || sec > 59 || clock < 0 {
		return time.Time{}, fmt.Errorf("invalid quik date/time %d %d", date, clock)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid quik date %d", date)
	}
	return t, nil
}

func decodeAccount(rec Record) (Message, error) {
	f := &fieldReader{rec: rec}
	acc := models.Account{
		TradeAccount:  f.required("trdacc"),
		FirmID:        f.optional("firmid"),
		LimitsInLots:  f.flag("limitsInLots"),
		Classes:       rec.Strings("classList"),
		MarginClasses: rec.Strings("mainMarginClasses"),
		LimitKinds:    rec.Strings("limitKinds"),
	}
	if f.err != nil {
		return nil, f.err
	}
	return AccountMessage{Account: acc}, nil
}

func decodeStockLimit(rec Record) (Message, error) {
	f := &fieldReader{rec: rec}
	limit := models.StockLimit{
		SecCode:  f.required("scode", "sec_code"),
		FirmID:   f.optional("firmid"),
		Account:  f.optional("trdacc", "account"),
		Balance:  f.number(false, "cbal"),
		Limit:    f.number(false, "clim"),
		Blocked:  f.number(false, "block"),
		AvgPrice: f.number(false, "avg", "awg_position_price"),
		Scale:    int(f.integer("qty_scale")),
	}
	if f.err != nil {
		return nil, f.err
	}
	return StockLimitMessage{Limit: limit}, nil
}

func decodeMoneyLimit(rec Record) (Message, error) {
	f := &fieldReader{rec: rec}
	limit := models.MoneyLimit{
		Currency:    f.required("valut", "currency"),
		Tag:         f.optional("tag"),
		FirmID:      f.optional("firmid"),
		Balance:     f.number(false, "cbal"),
		Limit:       f.number(false, "clim"),
		OpenBalance: f.number(false, "obal"),
		OpenLimit:   f.number(false, "olim"),
		Blocked:     f.number(false, "block"),
		LimitKind:   int(f.integer("limit_kind")),
		Scale:       int(f.integer("qty_scale")),
	}
	if f.err != nil {
		return nil, f.err
	}
	return MoneyLimitMessage{Limit: limit}, nil
}
