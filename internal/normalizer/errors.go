package normalizer

import (
	"fmt"

	"tradeboard/models"
)

// NormalizationError reports an inbound payload that could not be turned into
// a usable record. Raw is the payload exactly as delivered.
type NormalizationError struct {
	Topic models.Topic
	Raw   string
	Err   error
}

func (e *NormalizationError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("normalize payload: %v", e.Err)
	}
	return fmt.Sprintf("normalize %s payload: %v", e.Topic, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

func newError(topic models.Topic, raw string, format string, args ...any) *NormalizationError {
	return &NormalizationError{Topic: topic, Raw: raw, Err: fmt.Errorf(format, args...)}
}
