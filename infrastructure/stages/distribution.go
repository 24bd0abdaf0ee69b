package stages

import (
	"context"
	"iter"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/answerdist/internal/domain"
	"github.com/ahrav/answerdist/internal/ports"
)

var _ ports.DistributionAggregator = (*DistributionAggregator)(nil)

// Drop reasons recorded with MetricRecordsDropped.
const (
	dropExcludedResponse = "excluded_response_type"
	dropNoMetadata       = "no_metadata"
)

// DistributionAggregatorConfig controls which answer records are
// eligible for aggregation.
type DistributionAggregatorConfig struct {
	// ExcludedResponseTypes lists response types with no finite answer
	// set, such as free-text custom responses. Records resolving to
	// one of these types are dropped from the distribution.
	ExcludedResponseTypes []string `yaml:"excluded_response_types" validate:"dive,min=1"`
}

// DefaultDistributionAggregatorConfig returns the standard exclusion
// list. Only the free-text custom response type is excluded by
// default; deployments may extend the list through configuration.
func DefaultDistributionAggregatorConfig() DistributionAggregatorConfig {
	return DistributionAggregatorConfig{
		ExcludedResponseTypes: []string{"customresponse"},
	}
}

// groupKey is the exact combination that defines one distribution
// group. Two records matching on all four fields merge into one row.
type groupKey struct {
	answerValue string
	valueID     string
	variant     domain.Variant
	correct     bool
}

// group accumulates one distribution row while records stream through
// the reducer.
type group struct {
	count       int
	latest      time.Time
	displayName string
	question    string
	problemID   string
}

// DistributionAggregator counts, for one (course, answer part) key,
// how many students' latest submissions carried each distinct
// normalized answer. Legacy records are classified and enriched
// through the metadata index; records without a resolvable response
// type, or with an excluded one, are filtered out.
//
// The metadata index is shared and read-only; the aggregator is safe
// for concurrent execution across keys.
type DistributionAggregator struct {
	name     string
	config   DistributionAggregatorConfig
	excluded map[string]struct{}
	meta     ports.AnswerMetadata
	metrics  ports.MetricsCollector
	tracer   trace.Tracer
}

// NewDistributionAggregator creates an aggregator stage bound to an
// immutable metadata lookup. The lookup is required even when empty;
// the metrics collector may be nil.
func NewDistributionAggregator(name string, config DistributionAggregatorConfig, meta ports.AnswerMetadata, metrics ports.MetricsCollector) (*DistributionAggregator, error) {
	if name == "" {
		return nil, ErrEmptyStageName
	}
	if meta == nil {
		return nil, ErrNilMetadata
	}
	if err := validate.Struct(config); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	excluded := make(map[string]struct{}, len(config.ExcludedResponseTypes))
	for _, rt := range config.ExcludedResponseTypes {
		excluded[rt] = struct{}{}
	}

	return &DistributionAggregator{
		name:     name,
		config:   config,
		excluded: excluded,
		meta:     meta,
		metrics:  metrics,
		tracer:   otel.Tracer("distribution-aggregator"),
	}, nil
}

// Name returns the unique identifier for this stage instance.
func (a *DistributionAggregator) Name() string { return a.name }

// Validate checks that the stage is properly configured.
func (a *DistributionAggregator) Validate() error {
	if a.name == "" {
		return ErrEmptyStageName
	}
	if a.meta == nil {
		return ErrNilMetadata
	}
	return validate.Struct(a.config)
}

// resolved is one answer record after eligibility filtering, metadata
// enrichment, and answer-value normalization.
type resolved struct {
	key         groupKey
	displayName string
	question    string
	problemID   string
}

// Reduce groups the surviving records for one key by their exact
// (answer value, value id, variant, correctness) combination and emits
// one row per group with the group's multiplicity as its count.
// Display fields come from the group's most recent record; a missing
// display name or question is backfilled from any member that has one.
func (a *DistributionAggregator) Reduce(ctx context.Context, key domain.AnswerKey, values iter.Seq[domain.AnswerPartRecord]) ([]domain.DistributionRow, error) {
	_, span := a.tracer.Start(ctx, "DistributionAggregator.Reduce",
		trace.WithAttributes(
			attribute.String("stage.id", a.name),
			attribute.String("course_id", key.CourseID),
			attribute.String("part_id", key.PartID),
		),
	)
	defer span.End()

	start := time.Now()

	groups := make(map[groupKey]*group)
	var order []groupKey

	for rec := range values {
		res, ok := a.resolve(key.PartID, rec.Answer)
		if !ok {
			continue
		}

		g, exists := groups[res.key]
		if !exists {
			g = &group{latest: rec.Timestamp}
			g.displayName = res.displayName
			g.question = res.question
			g.problemID = res.problemID
			groups[res.key] = g
			order = append(order, res.key)
		} else if rec.Timestamp.After(g.latest) {
			g.latest = rec.Timestamp
			if res.displayName != "" {
				g.displayName = res.displayName
			}
			if res.question != "" {
				g.question = res.question
			}
			g.problemID = res.problemID
		} else {
			// A non-empty display value wins even when it arrives on
			// an older record.
			if g.displayName == "" {
				g.displayName = res.displayName
			}
			if g.question == "" {
				g.question = res.question
			}
		}
		g.count++
	}

	rows := make([]domain.DistributionRow, 0, len(order))
	for _, gk := range order {
		g := groups[gk]
		rows = append(rows, domain.DistributionRow{
			CourseID:           key.CourseID,
			ProblemDisplayName: g.displayName,
			Count:              g.count,
			PartID:             key.PartID,
			Question:           g.question,
			AnswerValue:        gk.answerValue,
			ValueID:            gk.valueID,
			Variant:            gk.variant,
			Correct:            gk.correct,
			ModuleID:           g.problemID,
		})
	}

	a.metrics.RecordCounter(MetricRowsEmitted, float64(len(rows)), map[string]string{"stage": a.name})
	a.metrics.RecordLatency("distribution_reduce", time.Since(start), latencyLabels(a.name))
	span.SetAttributes(attribute.Int("rows", len(rows)))
	return rows, nil
}

// resolve applies the eligibility and normalization rules to one
// answer record. ok is false when the record is filtered out.
func (a *DistributionAggregator) resolve(partID string, answer domain.AnswerData) (resolved, bool) {
	responseType := answer.ResponseType
	question := answer.Question
	displayName := answer.ProblemDisplayName

	var entry domain.MetadataEntry
	var haveEntry bool
	if !answer.FromSubmission() {
		// Legacy schema: without metadata there is not enough
		// information to classify the record.
		entry, haveEntry = a.meta.Lookup(partID)
		if !haveEntry {
			return a.drop(dropNoMetadata)
		}
		responseType = entry.ResponseType
		question = entry.Question
		if displayName == "" {
			displayName = entry.ProblemDisplayName
		}
	}

	if responseType == "" {
		return a.drop(dropNoMetadata)
	}
	if _, excluded := a.excluded[responseType]; excluded {
		return a.drop(dropExcludedResponse)
	}

	answerValue, valueID := normalizeAnswer(answer, responseType, entry)

	return resolved{
		key: groupKey{
			answerValue: answerValue,
			valueID:     valueID,
			variant:     answer.Variant,
			correct:     bool(answer.Correct),
		},
		displayName: displayName,
		question:    question,
		problemID:   answer.ProblemID,
	}, true
}

func (a *DistributionAggregator) drop(reason string) (resolved, bool) {
	a.metrics.RecordCounter(MetricRecordsDropped, 1, map[string]string{
		"stage":  a.name,
		"reason": reason,
	})
	return resolved{}, false
}

// choiceResponseTypes are the response types whose legacy raw values
// are opaque choice identifiers rather than displayable answers.
var choiceResponseTypes = map[string]struct{}{
	"choiceresponse":         {},
	"multiplechoiceresponse": {},
}

// normalizeAnswer produces the displayed AnswerValue and ValueID for
// one record.
//
// Submission records display their answer directly, with the raw
// choice id as ValueID when one exists. Legacy records depend on the
// resolved response type: for choice responses the raw value is the
// ValueID and the AnswerValue is its label from the metadata entry's
// answer_value_id_map, empty when any element has no mapping; for
// every other response type the raw value itself is the AnswerValue.
func normalizeAnswer(answer domain.AnswerData, responseType string, entry domain.MetadataEntry) (answerValue, valueID string) {
	if answer.Answer != nil {
		answerValue = answer.Answer.Display()
		if answer.AnswerValueID != nil {
			valueID = answer.AnswerValueID.Display()
		}
		return answerValue, valueID
	}

	if answer.AnswerValueID == nil {
		return "", ""
	}
	raw := *answer.AnswerValueID

	if _, choice := choiceResponseTypes[responseType]; choice {
		valueID = raw.Display()
		items := raw.Items()
		// A null scalar decodes to a value with no elements; there is
		// no label to resolve for it.
		if len(items) == 0 && !raw.Multi() {
			return "", valueID
		}
		labels := make([]string, len(items))
		for i, item := range items {
			label, ok := entry.AnswerValueIDMap[item]
			if !ok {
				// An unmapped choice id leaves the whole answer value
				// unresolved.
				return "", valueID
			}
			labels[i] = label
		}
		if raw.Multi() {
			return domain.NewMultiValue(labels).Display(), valueID
		}
		return labels[0], valueID
	}

	return raw.Display(), ""
}
