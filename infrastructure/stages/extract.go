package stages

import (
	"bytes"
	"encoding/json"

	"github.com/ahrav/answerdist/internal/domain"
	"github.com/ahrav/answerdist/internal/ports"
)

var _ ports.EventExtractor = (*EventExtractor)(nil)

const (
	// ProblemCheckEventType is the only event type the pipeline
	// consumes. Client-side events reuse the same name with a
	// different source and implicit event types merely end with it;
	// both are rejected.
	ProblemCheckEventType = "problem_check"

	// ServerEventSource marks events emitted by the LMS server rather
	// than the browser.
	ServerEventSource = "server"
)

// Skip reasons recorded with MetricEventsSkipped.
const (
	skipUnparseable = "unparseable"
	skipEventType   = "event_type"
	skipEventSource = "event_source"
	skipUsername    = "username"
	skipContext     = "context"
	skipCourseID    = "course_id"
	skipTime        = "time"
	skipPayload     = "payload"
)

// rawEvent mirrors the tracking-log envelope. Pointer fields
// distinguish absent and null values, both of which invalidate the
// event.
type rawEvent struct {
	EventType   *string         `json:"event_type"`
	EventSource *string         `json:"event_source"`
	Time        string          `json:"time"`
	Username    string          `json:"username"`
	Context     json.RawMessage `json:"context"`
	Event       json.RawMessage `json:"event"`
}

type eventContext struct {
	CourseID string `json:"course_id"`
}

// EventExtractor parses raw tracking-log lines into problem-check
// records keyed by (course, problem, student). Every validation
// failure suppresses output silently; failures only reduce coverage.
//
// Concurrency: EventExtractor is stateless and safe for unbounded
// parallel execution across input shards.
type EventExtractor struct {
	name    string
	metrics ports.MetricsCollector
}

// NewEventExtractor creates an extractor stage. The metrics collector
// may be nil, in which case skip counts are discarded.
func NewEventExtractor(name string, metrics ports.MetricsCollector) (*EventExtractor, error) {
	if name == "" {
		return nil, ErrEmptyStageName
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &EventExtractor{name: name, metrics: metrics}, nil
}

// Name returns the unique identifier for this stage instance.
func (e *EventExtractor) Name() string { return e.name }

// Validate checks that the stage is properly configured.
func (e *EventExtractor) Validate() error {
	if e.name == "" {
		return ErrEmptyStageName
	}
	return nil
}

// Extract parses and validates one raw log line. On success it emits a
// record keyed by (course_id, problem_id, username) whose payload is
// the event body merged with the username, normalized timestamp, and
// context. ok is false for any line failing a validation predicate.
func (e *EventExtractor) Extract(line []byte) (domain.ProblemCheckRecord, bool) {
	var event rawEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return e.skip(skipUnparseable)
	}

	if event.EventType == nil || *event.EventType != ProblemCheckEventType {
		return e.skip(skipEventType)
	}
	if event.EventSource == nil || *event.EventSource != ServerEventSource {
		return e.skip(skipEventSource)
	}
	if event.Username == "" {
		return e.skip(skipUsername)
	}

	context, ok := decodeContext(event.Context)
	if !ok {
		return e.skip(skipContext)
	}
	var courseID eventContext
	if err := json.Unmarshal(event.Context, &courseID); err != nil || !domain.ValidCourseID(courseID.CourseID) {
		return e.skip(skipCourseID)
	}

	timestamp, err := domain.ParseEventTime(event.Time)
	if err != nil {
		return e.skip(skipTime)
	}

	payload, problemID, ok := decodePayload(event.Event)
	if !ok {
		return e.skip(skipPayload)
	}

	// Fold the envelope fields the reducers need into the payload so
	// that the record is self-contained when staged through a shuffle.
	payload["username"] = event.Username
	payload["timestamp"] = domain.FormatTimestamp(timestamp)
	payload["context"] = context

	merged, err := json.Marshal(payload)
	if err != nil {
		return e.skip(skipPayload)
	}

	e.metrics.RecordCounter(MetricEventsExtracted, 1, map[string]string{"stage": e.name})
	return domain.ProblemCheckRecord{
		Key: domain.EventKey{
			CourseID:  courseID.CourseID,
			ProblemID: problemID,
			Username:  event.Username,
		},
		Timestamp: timestamp,
		Payload:   merged,
	}, true
}

func (e *EventExtractor) skip(reason string) (domain.ProblemCheckRecord, bool) {
	e.metrics.RecordCounter(MetricEventsSkipped, 1, map[string]string{
		"stage":  e.name,
		"reason": reason,
	})
	return domain.ProblemCheckRecord{}, false
}

// decodeContext decodes the event context, requiring a present,
// non-null JSON object.
func decodeContext(raw json.RawMessage) (map[string]any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var context map[string]any
	if err := dec.Decode(&context); err != nil || context == nil {
		return nil, false
	}
	return context, true
}

// decodePayload decodes the problem-check body, requiring a structured
// object (not a bare list or scalar) that names a problem_id. Numeric
// literals are preserved as written.
func decodePayload(raw json.RawMessage) (map[string]any, string, bool) {
	if len(raw) == 0 {
		return nil, "", false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil || payload == nil {
		return nil, "", false
	}
	problemID, ok := payload["problem_id"].(string)
	if !ok || problemID == "" {
		return nil, "", false
	}
	return payload, problemID, true
}

// latencyLabels is shared by stages that record per-operation timing.
func latencyLabels(stage string) map[string]string {
	return map[string]string{"stage": stage}
}
