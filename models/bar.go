package models

import (
	"fmt"
	"strings"
	"time"
)

// Bar is one OHLCV price bar. Timestamp is kept in the textual form the feed
// sent it in; ordering uses the parsed value.
type Bar struct {
	Timestamp string  `json:"d"`
	Asset     string  `json:"asset,omitempty"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04",
	"15:04:05",
	"15:04",
}

// ParseTime parses the timestamp formats seen on the broker feeds. The
// time-only forms carry no date and only order against each other.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Time returns the parsed Timestamp.
func (b Bar) Time() (time.Time, error) {
	return ParseTime(b.Timestamp)
}
