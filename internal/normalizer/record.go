package normalizer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Record is a normalized payload: a JSON object with numbers as json.Number.
type Record map[string]any

// lookup returns the first present key among aliases.
func (r Record) lookup(keys ...string) (string, any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return k, v, true
		}
	}
	return "", nil, false
}

// Has reports whether any of the keys is present and not null.
func (r Record) Has(keys ...string) bool {
	_, _, ok := r.lookup(keys...)
	return ok
}

// String returns the value as text. Numbers are rendered in their original
// spelling.
func (r Record) String(keys ...string) (string, bool) {
	_, v, ok := r.lookup(keys...)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprint(t), true
	}
}

// Float reads a numeric field. Numeric strings are accepted; anything else,
// including NaN and infinities, is an error naming the key.
func (r Record) Float(keys ...string) (float64, bool, error) {
	k, v, ok := r.lookup(keys...)
	if !ok {
		return 0, false, nil
	}
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return 0, true, fmt.Errorf("field %q is not numeric: %q", k, t.String())
		}
		f = parsed
	case string:
		text := strings.TrimSpace(t)
		parsed, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, true, fmt.Errorf("field %q is not numeric: %q", k, text)
		}
		f = parsed
	case float64:
		f = t
	default:
		return 0, true, fmt.Errorf("field %q is not numeric: %v", k, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, true, fmt.Errorf("field %q is not finite: %v", k, v)
	}
	return f, true, nil
}

// Int reads an integral numeric field.
func (r Record) Int(keys ...string) (int64, bool, error) {
	f, ok, err := r.Float(keys...)
	if err != nil || !ok {
		return 0, ok, err
	}
	if f != float64(int64(f)) {
		k, _, _ := r.lookup(keys...)
		return 0, true, fmt.Errorf("field %q is not an integer: %v", k, f)
	}
	return int64(f), true, nil
}

// Bool accepts JSON booleans as well as 0/1 flags.
func (r Record) Bool(keys ...string) (bool, bool, error) {
	k, v, ok := r.lookup(keys...)
	if !ok {
		return false, false, nil
	}
	switch t := v.(type) {
	case bool:
		return t, true, nil
	case json.Number:
		switch t.String() {
		case "0":
			return false, true, nil
		case "1":
			return true, true, nil
		}
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b, true, nil
		}
	}
	return false, true, fmt.Errorf("field %q is not a flag: %v", k, v)
}

// Strings reads a list of scalars, or a single comma or pipe separated string.
func (r Record) Strings(keys ...string) []string {
	_, v, ok := r.lookup(keys...)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case json.Number:
				out = append(out, s.String())
			default:
				out = append(out, fmt.Sprint(s))
			}
		}
		return out
	case string:
		fields := strings.FieldsFunc(t, func(r rune) bool { return r == ',' || r == '|' })
		out := fields[:0]
		for _, f := range fields {
			if f = strings.TrimSpace(f); f != "" {
				out = append(out, f)
			}
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}
