package normalizer

import (
	"errors"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"tradeboard/models"
)

// Normalize turns a loosely formatted payload into a Record. Both strict JSON
// and the Python literal convention used by the broker bridge are accepted.
// Numbers are kept as json.Number so integer ids survive unchanged.
func Normalize(raw string) (Record, error) {
	return normalize("", raw)
}

func normalize(topic models.Topic, raw string) (Record, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, newError(topic, raw, "empty payload")
	}

	repaired, err := repairQuotes(text)
	if err != nil {
		return nil, &NormalizationError{Topic: topic, Raw: raw, Err: err}
	}

	value, err := parseStrict(repaired)
	if err != nil {
		return nil, &NormalizationError{Topic: topic, Raw: raw, Err: err}
	}

	record, ok := value.(map[string]any)
	if !ok {
		return nil, newError(topic, raw, "payload is not an object")
	}
	return Record(record), nil
}

func parseStrict(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	var trailing any
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after payload")
	}
	return value, nil
}
