// Package domain contains pure, dependency-free domain models and types
// for the answer distribution pipeline.
package domain

import (
	"fmt"
	"regexp"
	"time"
)

// TimestampLayout is the canonical timezone-free form every event time
// is normalized to during extraction. Microsecond precision ISO-8601;
// lexicographic order of formatted values equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// rawTimeLayouts covers the timestamp formats observed across
// historical tracking logs: with or without a UTC offset, with or
// without fractional seconds, and a space-separated variant emitted by
// some older collectors.
var rawTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseEventTime parses a raw event time string into a UTC instant.
// It returns ErrInvalidTimestamp when none of the known layouts match.
func ParseEventTime(s string) (time.Time, error) {
	for _, layout := range rawTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// FormatTimestamp renders t in the canonical TimestampLayout form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// courseIDPattern is the restricted course identifier grammar: word
// characters, periods, dashes, colons, and slashes. Anything else
// (semicolons, whitespace, control characters) marks the event as
// malformed.
var courseIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:/-]+$`)

// ValidCourseID reports whether id satisfies the course identifier
// grammar. Empty identifiers are invalid.
func ValidCourseID(id string) bool {
	return id != "" && courseIDPattern.MatchString(id)
}

// EventKey identifies the stream of problem checks one student produced
// for one problem in one course. All events sharing an EventKey are
// grouped into a single reduce invocation.
type EventKey struct {
	CourseID  string
	ProblemID string
	Username  string
}

// ProblemCheckRecord is the extractor's output for one valid
// problem-check event: the event's payload merged with its username,
// normalized timestamp, and context, serialized as JSON.
// Exactly one record exists per valid raw event.
type ProblemCheckRecord struct {
	Key       EventKey
	Timestamp time.Time
	Payload   []byte
}
