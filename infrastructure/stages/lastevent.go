package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/answerdist/internal/domain"
	"github.com/ahrav/answerdist/internal/ports"
)

var _ ports.LastEventReducer = (*LastEventReducer)(nil)

// checkPayload is the subset of the merged problem-check payload the
// reducer consumes. Unknown fields are ignored.
type checkPayload struct {
	ProblemID  string                     `json:"problem_id"`
	Answers    map[string]domain.Value    `json:"answers"`
	CorrectMap map[string]correctMapEntry `json:"correct_map"`
	Submission map[string]submissionEntry `json:"submission"`
	State      *payloadState              `json:"state"`
	Context    *payloadContext            `json:"context"`
}

type correctMapEntry struct {
	Correctness domain.Correctness `json:"correctness"`
}

type submissionEntry struct {
	Answer        *domain.Value      `json:"answer"`
	AnswerValueID *domain.Value      `json:"answer_value_id"`
	InputType     string             `json:"input_type"`
	Question      string             `json:"question"`
	ResponseType  string             `json:"response_type"`
	Variant       domain.Variant     `json:"variant"`
	Correct       domain.Correctness `json:"correct"`
}

type payloadState struct {
	Seed domain.Variant `json:"seed"`
}

type payloadContext struct {
	Module *moduleContext `json:"module"`
}

type moduleContext struct {
	DisplayName string `json:"display_name"`
}

// LastEventReducer resolves "last write wins" semantics for one
// (course, problem, student) key: it selects the single most recent
// problem check among the grouped records and re-expands it into one
// record per visible answer part.
//
// Concurrency: LastEventReducer is stateless and safe for concurrent
// execution across keys.
type LastEventReducer struct {
	name    string
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewLastEventReducer creates a last-event reducer stage. The metrics
// collector may be nil.
func NewLastEventReducer(name string, metrics ports.MetricsCollector) (*LastEventReducer, error) {
	if name == "" {
		return nil, ErrEmptyStageName
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &LastEventReducer{
		name:    name,
		metrics: metrics,
		tracer:  otel.Tracer("last-event-reducer"),
	}, nil
}

// Name returns the unique identifier for this stage instance.
func (r *LastEventReducer) Name() string { return r.name }

// Validate checks that the stage is properly configured.
func (r *LastEventReducer) Validate() error {
	if r.name == "" {
		return ErrEmptyStageName
	}
	return nil
}

// Reduce selects the record with the greatest timestamp among values
// and emits one AnswerPartRecord per visible answer part it contains.
// Records sharing the maximum timestamp are tie-broken by the byte
// order of their serialized payloads, so the result is identical for
// any permutation of the input.
func (r *LastEventReducer) Reduce(ctx context.Context, key domain.EventKey, values iter.Seq[domain.ProblemCheckRecord]) ([]domain.AnswerPartRecord, error) {
	_, span := r.tracer.Start(ctx, "LastEventReducer.Reduce",
		trace.WithAttributes(
			attribute.String("stage.id", r.name),
			attribute.String("course_id", key.CourseID),
		),
	)
	defer span.End()

	start := time.Now()

	var (
		latest domain.ProblemCheckRecord
		found  bool
	)
	for rec := range values {
		if !found || later(rec, latest) {
			latest = rec
			found = true
		}
	}
	if !found {
		return nil, nil
	}

	var payload checkPayload
	if err := json.Unmarshal(latest.Payload, &payload); err != nil {
		// Payloads were serialized by the extractor; anything
		// unreadable here is treated like malformed input and skipped.
		r.metrics.RecordCounter(MetricRecordsDropped, 1, map[string]string{
			"stage":  r.name,
			"reason": "payload",
		})
		span.RecordError(err)
		return nil, nil
	}

	// Sorted part ids keep emit order deterministic across runs.
	partIDs := make([]string, 0, len(payload.Answers))
	for id := range payload.Answers {
		if domain.HiddenPartID(id) {
			continue
		}
		partIDs = append(partIDs, id)
	}
	sort.Strings(partIDs)

	records := make([]domain.AnswerPartRecord, 0, len(partIDs))
	for _, id := range partIDs {
		records = append(records, domain.AnswerPartRecord{
			Key:       domain.AnswerKey{CourseID: key.CourseID, PartID: id},
			Timestamp: latest.Timestamp,
			Answer:    payload.answerData(id),
		})
	}

	r.metrics.RecordCounter(MetricAnswerParts, float64(len(records)), map[string]string{"stage": r.name})
	r.metrics.RecordLatency("last_event_reduce", time.Since(start), latencyLabels(r.name))
	span.SetAttributes(attribute.Int("answer_parts", len(records)))
	return records, nil
}

// later reports whether a should replace b as the latest record.
func later(a, b domain.ProblemCheckRecord) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return bytes.Compare(a.Payload, b.Payload) > 0
}

// answerData builds the answer-part value for one id, preferring
// submission fields over the legacy answers/correct_map/state fields
// when submission data is present.
func (p *checkPayload) answerData(id string) domain.AnswerData {
	data := domain.AnswerData{ProblemID: p.ProblemID}

	if p.Context != nil && p.Context.Module != nil {
		data.ProblemDisplayName = p.Context.Module.DisplayName
	}
	if p.State != nil {
		data.Variant = p.State.Seed
	}
	data.Correct = p.CorrectMap[id].Correctness

	if sub, ok := p.Submission[id]; ok {
		data.Answer = sub.Answer
		data.AnswerValueID = sub.AnswerValueID
		data.InputType = sub.InputType
		data.Question = sub.Question
		data.ResponseType = sub.ResponseType
		data.Variant = sub.Variant
		data.Correct = sub.Correct
		return data
	}

	value := p.Answers[id]
	data.AnswerValueID = &value
	return data
}
