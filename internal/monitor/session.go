package monitor

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

// summaryLimit caps argument and result summaries in log entries.
const summaryLimit = 200

// NewSessionID returns a short unique token correlating the start event
// of one invocation with its terminal event.
func NewSessionID() string {
	return uuid.NewString()[:8]
}

// Summarize renders an arbitrary value as bounded text for logging,
// truncating past the summary limit with a "..." suffix.
func Summarize(v any) string {
	s := fmt.Sprintf("%v", v)
	if utf8.RuneCountInString(s) <= summaryLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:summaryLimit]) + "..."
}
