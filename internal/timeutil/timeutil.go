// Package timeutil centralizes UTC-day arithmetic and deterministic
// identifier derivation. All scheduling decisions are keyed to UTC days so
// replays are stable regardless of server locale.
package timeutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DayLayout is the canonical UTC day key format.
const DayLayout = "2006-01-02"

// stepEventNamespace seeds UUIDv5 derivation for protocol step events.
// Retried submissions of the same step must collide on client_event_id.
var stepEventNamespace = uuid.MustParse("8f0f3f1a-6d2e-4a57-9b1c-2c64cf6b1d11")

// UTCDay returns the UTC day key for t.
func UTCDay(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// DayStart returns midnight UTC of the day containing t.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a canonical day key back into midnight UTC.
func ParseDay(day string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, day, time.UTC)
}

// DaysBetween returns b-a in whole UTC days. Both arguments are day keys;
// malformed keys yield zero.
func DaysBetween(a, b string) int {
	ta, err := ParseDay(a)
	if err != nil {
		return 0
	}
	tb, err := ParseDay(b)
	if err != nil {
		return 0
	}
	return int(tb.Sub(ta).Hours() / 24)
}

// FloorDays returns the number of whole days in d, never negative.
func FloorDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// StepEventID deterministically derives the client event id for a protocol
// step submission so retries deduplicate at the event store.
func StepEventID(sessionID uuid.UUID, ayahID int, step string, attempt int) string {
	name := fmt.Sprintf("%s|%d|%s|%d", sessionID, ayahID, step, attempt)
	return uuid.NewSHA1(stepEventNamespace, []byte(name)).String()
}
