package models

import "time"

type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// LogEntry is one record of the append-only reply/audit log.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Time       time.Time      `json:"time"`
	Topic      Topic          `json:"topic"`
	Direction  Direction      `json:"direction"`
	Body       string         `json:"body"`
	Normalized map[string]any `json:"normalized,omitempty"`
}
