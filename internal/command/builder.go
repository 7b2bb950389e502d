package command

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeboard/models"
)

const (
	OperationBuy  = "buy"
	OperationSell = "sell"
)

// Command is an outbound message ready to publish.
type Command struct {
	ID        string
	Topic     models.Topic
	Operation string
	SecClass  string
	SecCode   string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Raw       string
}

// ValidationError rejects a command before anything is published.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

type buySellPayload struct {
	Operation string      `json:"operation"`
	SecClass  string      `json:"secClass"`
	SecCode   string      `json:"secCode"`
	Quantity  json.Number `json:"quantity"`
	Price     json.Number `json:"price"`
}

// Body renders the wire payload.
func (c Command) Body() ([]byte, error) {
	if c.Topic == models.TopicRaw {
		return []byte(c.Raw), nil
	}
	return json.Marshal(buySellPayload{
		Operation: c.Operation,
		SecClass:  c.SecClass,
		SecCode:   c.SecCode,
		Quantity:  json.Number(c.Quantity.String()),
		Price:     json.Number(c.Price.String()),
	})
}

func (c Command) ContentType() string {
	if c.Topic == models.TopicRaw {
		return "text/plain"
	}
	return "application/json"
}

// Builder validates operator input into commands. Empty class or code fall
// back to the configured defaults.
type Builder struct {
	DefaultClass    string
	DefaultCode     string
	RequirePositive bool
}

func (b Builder) Build(operation, secClass, secCode, quantity, price string) (Command, error) {
	op := strings.ToLower(strings.TrimSpace(operation))
	if op != OperationBuy && op != OperationSell {
		return Command{}, &ValidationError{Field: "operation", Value: operation, Reason: "must be buy or sell"}
	}

	secClass = strings.TrimSpace(secClass)
	if secClass == "" {
		secClass = b.DefaultClass
	}
	secCode = strings.TrimSpace(secCode)
	if secCode == "" {
		secCode = b.DefaultCode
	}
	if secClass == "" {
		return Command{}, &ValidationError{Field: "secClass", Reason: "required"}
	}
	if secCode == "" {
		return Command{}, &ValidationError{Field: "secCode", Reason: "required"}
	}

	qty, err := decimal.NewFromString(strings.TrimSpace(quantity))
	if err != nil {
		return Command{}, &ValidationError{Field: "quantity", Value: quantity, Reason: "not a number"}
	}
	px, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return Command{}, &ValidationError{Field: "price", Value: price, Reason: "not a number"}
	}
	if b.RequirePositive {
		if !qty.IsPositive() {
			return Command{}, &ValidationError{Field: "quantity", Value: quantity, Reason: "must be positive"}
		}
		if px.IsNegative() {
			return Command{}, &ValidationError{Field: "price", Value: price, Reason: "must not be negative"}
		}
	}

	return Command{
		ID:        uuid.NewString(),
		Topic:     models.TopicBuySell,
		Operation: op,
		SecClass:  secClass,
		SecCode:   secCode,
		Quantity:  qty,
		Price:     px,
	}, nil
}

// BuildRaw wraps operator text unchanged for the raw message topic.
func (b Builder) BuildRaw(text string) Command {
	return Command{ID: uuid.NewString(), Topic: models.TopicRaw, Raw: text}
}

// DefaultRawMessage is a sample stop order in the raw broker format.
func (b Builder) DefaultRawMessage() string {
	class, code := b.DefaultClass, b.DefaultCode
	if class == "" {
		class = "QJSIM"
	}
	if code == "" {
		code = "SBER"
	}
	return fmt.Sprintf(`{"transid": 1, "msgid": 12000, "action": "SIMPLE_STOP_ORDER", "MARKET_STOP_LIMIT": "YES", "ccode": %q, "scode": %q, "operation": "B", "quantity": 1, "clientcode": "10058", "account": "NL0011100043", "stopprice": 215}`, class, code)
}
