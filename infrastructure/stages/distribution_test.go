package stages

import (
	"context"
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/answerdist/internal/domain"
)

// mapMetadata is a fixed in-memory metadata lookup.
type mapMetadata map[string]domain.MetadataEntry

func (m mapMetadata) Lookup(id string) (domain.MetadataEntry, bool) {
	entry, ok := m[id]
	return entry, ok
}

func (m mapMetadata) Len() int { return len(m) }

var testAnswerKey = domain.AnswerKey{CourseID: testCourseID, PartID: testPartID}

// numericalMetadata covers the test part with a plain numerical
// response and no choice mapping.
func numericalMetadata() mapMetadata {
	return mapMetadata{
		testPartID: {
			Question:           "Enter the force",
			ResponseType:       "numericalresponse",
			InputType:          "textline",
			ProblemDisplayName: "Force Problem",
		},
	}
}

func choiceMetadata() mapMetadata {
	return mapMetadata{
		testPartID: {
			Question:     "Pick the curves",
			ResponseType: "choiceresponse",
			InputType:    "checkboxgroup",
			AnswerValueIDMap: map[string]string{
				"choice_1": "First",
				"choice_2": "Second",
			},
		},
	}
}

func legacyRecord(value domain.Value, correct bool, at time.Time) domain.AnswerPartRecord {
	return domain.AnswerPartRecord{
		Key:       testAnswerKey,
		Timestamp: at,
		Answer: domain.AnswerData{
			ProblemID:     testProblemID,
			Variant:       "1",
			Correct:       domain.Correctness(correct),
			AnswerValueID: &value,
		},
	}
}

func submissionRecord(answer string, correct bool, at time.Time) domain.AnswerPartRecord {
	value := domain.NewValue(answer)
	return domain.AnswerPartRecord{
		Key:       testAnswerKey,
		Timestamp: at,
		Answer: domain.AnswerData{
			ProblemID:    testProblemID,
			Variant:      "1",
			Correct:      domain.Correctness(correct),
			Answer:       &value,
			InputType:    "textline",
			Question:     "Enter the force",
			ResponseType: "numericalresponse",
		},
	}
}

func newAggregator(t *testing.T, meta mapMetadata) *DistributionAggregator {
	t.Helper()
	agg, err := NewDistributionAggregator("answer_distribution", DefaultDistributionAggregatorConfig(), meta, nil)
	require.NoError(t, err)
	return agg
}

func reduceRecords(t *testing.T, agg *DistributionAggregator, records ...domain.AnswerPartRecord) []domain.DistributionRow {
	t.Helper()
	rows, err := agg.Reduce(context.Background(), testAnswerKey, slices.Values(records))
	require.NoError(t, err)
	return rows
}

func TestNewDistributionAggregator(t *testing.T) {
	meta := numericalMetadata()

	_, err := NewDistributionAggregator("", DefaultDistributionAggregatorConfig(), meta, nil)
	assert.ErrorIs(t, err, ErrEmptyStageName)

	_, err = NewDistributionAggregator("agg", DefaultDistributionAggregatorConfig(), nil, nil)
	assert.ErrorIs(t, err, ErrNilMetadata)

	agg, err := NewDistributionAggregator("agg", DefaultDistributionAggregatorConfig(), meta, nil)
	require.NoError(t, err)
	assert.NoError(t, agg.Validate())
}

func TestDistributionAggregator_LegacyNumerical(t *testing.T) {
	agg := newAggregator(t, numericalMetadata())
	at := time.Date(2014, 3, 25, 10, 0, 0, 0, time.UTC)

	rows := reduceRecords(t, agg, legacyRecord(domain.NewValue("3"), false, at))
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, testCourseID, row.CourseID)
	assert.Equal(t, testPartID, row.PartID)
	assert.Equal(t, 1, row.Count)
	assert.Equal(t, "3", row.AnswerValue)
	assert.Equal(t, "", row.ValueID)
	assert.False(t, row.Correct)
	assert.Equal(t, "Enter the force", row.Question)
	assert.Equal(t, "Force Problem", row.ProblemDisplayName)
	assert.Equal(t, testProblemID, row.ModuleID)
}

func TestDistributionAggregator_IdenticalAnswersMerge(t *testing.T) {
	agg := newAggregator(t, numericalMetadata())
	at := time.Date(2014, 3, 25, 10, 0, 0, 0, time.UTC)

	rows := reduceRecords(t, agg,
		legacyRecord(domain.NewValue("3"), true, at),
		legacyRecord(domain.NewValue("3"), true, at.Add(time.Minute)),
		legacyRecord(domain.NewValue("4"), false, at),
	)
	require.Len(t, rows, 2)

	byValue := make(map[string]domain.DistributionRow, len(rows))
	for _, row := range rows {
		byValue[row.AnswerValue] = row
	}
	assert.Equal(t, 2, byValue["3"].Count)
	assert.Equal(t, 1, byValue["4"].Count)
}

func TestDistributionAggregator_GroupSplits(t *testing.T) {
	agg := newAggregator(t, numericalMetadata())
	at := time.Date(2014, 3, 25, 10, 0, 0, 0, time.UTC)

	differentCorrect := legacyRecord(domain.NewValue("3"), true, at)
	differentVariant := legacyRecord(domain.NewValue("3"), false, at)
	differentVariant.Answer.Variant = "2"

	rows := reduceRecords(t, agg,
		legacyRecord(domain.NewValue("3"), false, at),
		differentCorrect,
		differentVariant,
	)
	// Same answer value, but correctness and variant each split the
	// group.
	assert.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, 1, row.Count)
	}
}

func TestDistributionAggregator_LegacyWithoutMetadataDropped(t *testing.T) {
	metrics := &recordingMetrics{}
	agg, err := NewDistributionAggregator("agg", DefaultDistributionAggregatorConfig(), mapMetadata{}, metrics)
	require.NoError(t, err)

	at := time.Date(2014, 3, 25, 10, 0, 0, 0, time.UTC)
	rows, err := agg.Reduce(context.Background(), testAnswerKey, slices.Values([]domain.AnswerPartRecord{
		legacyRecord(domain.NewValue("3"), false, at),
	}))
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 1, metrics.counts[MetricRecordsDropped+"/no_metadata"])
}

func TestDistributionAggregator_ExcludedResponseType(t *testing.T) {
	meta := mapMetadata{
		testPartID: {Question: "Essay", ResponseType: "customresponse"},
	}
	metrics := &recordingMetrics{}
	agg, err := NewDistributionAggregator("agg", DefaultDistributionAggregatorConfig(), meta, metrics)
	require.NoError(t, err)

	at := time.Date(2014, 3, 25, 10, 0, 0, 0, time.UTC)
	rows, err := agg.Reduce(context.Background(), testAnswerKey, slices.Values([]domain.AnswerPartRecord{
		legacyRecord(domain.NewValue("my long essay"), false, at),
	}))
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 1, metrics.counts[MetricRecordsDropped+"/excluded_response_type"])
}

func TestDistributionAggregator_ExcludedSubmissionResponseType(t *testing.T) {
	agg := newAggregator(t, mapMetadata{})
	at := time.Date(2014, 3, 25, 10, 0, 0, 0, time.UTC)

	rec := submissionRecord("anything", false, at)
	rec.Answer.ResponseType = "customresponse"

	rows := reduceRecords(t, agg, rec)
	assert.Empty(t, rows)
}

func TestDistributionAggregator_SubmissionWithoutMetadata(t *testing.T) {
	// Submission records are self-describing; no metadata entry is
	// needed.
	agg := newAggregator(t, mapMetadata{})
	at := time.Date(2014, 3, 25, 10, 0, 0, 0, time.UTC)

	rows := reduceRecords(t, agg, submissionRecord("3", true, at))
	require.Len(t, rows, 1)
	assert.Equal(t, "3", rows[0].AnswerValue)
	assert.Equal(t, "", rows[0].ValueID)
	assert.True(t, rows[0].Correct)
	assert.Equal(t, "Enter the force", rows[0].Question)
}

func TestDistributionAggregator_LegacyChoiceMapping(t *testing.T) {
	agg := newAggregator(t, choiceMetadata())
	at := time.Date(2014, 3, 25, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		value           domain.Value
		wantAnswerValue string
		wantValueID     string
	}{
		{
			name:            "single mapped choice",
			value:           domain.NewValue("choice_1"),
			wantAnswerValue: "First",
			wantValueID:     "choice_1",
		},
		{
			name:            "multiple mapped choices",
			value:           domain.NewMultiValue([]string{"choice_1", "choice_2"}),
			wantAnswerValue: "[First|Second]",
			wantValueID:     "[choice_1|choice_2]",
		},
		{
			name:            "unmapped choice keeps value id only",
			value:           domain.NewValue("choice_9"),
			wantAnswerValue: "",
			wantValueID:     "choice_9",
		},
		{
			name:            "one unmapped element unresolves the whole value",
			value:           domain.NewMultiValue([]string{"choice_1", "choice_9"}),
			wantAnswerValue: "",
			wantValueID:     "[choice_1|choice_9]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := reduceRecords(t, agg, legacyRecord(tt.value, false, at))
			require.Len(t, rows, 1)
			assert.Equal(t, tt.wantAnswerValue, rows[0].AnswerValue)
			assert.Equal(t, tt.wantValueID, rows[0].ValueID)
		})
	}
}

func TestDistributionAggregator_EmptyAnswerValues(t *testing.T) {
	// A null answers entry decodes to a value with no elements; an
	// empty selection list decodes to an empty sequence. Neither may
	// abort aggregation, whatever the response type resolves to.
	var nullValue, emptyList domain.Value
	require.NoError(t, json.Unmarshal([]byte(`null`), &nullValue))
	require.NoError(t, json.Unmarshal([]byte(`[]`), &emptyList))

	at := time.Date(2014, 3, 25, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		meta            mapMetadata
		value           domain.Value
		wantAnswerValue string
		wantValueID     string
	}{
		{
			name:            "null value on choice response",
			meta:            choiceMetadata(),
			value:           nullValue,
			wantAnswerValue: "",
			wantValueID:     "",
		},
		{
			name:            "empty selection on choice response",
			meta:            choiceMetadata(),
			value:           emptyList,
			wantAnswerValue: "[]",
			wantValueID:     "[]",
		},
		{
			name:            "null value on numerical response",
			meta:            numericalMetadata(),
			value:           nullValue,
			wantAnswerValue: "",
			wantValueID:     "",
		},
		{
			name:            "empty selection on numerical response",
			meta:            numericalMetadata(),
			value:           emptyList,
			wantAnswerValue: "[]",
			wantValueID:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := newAggregator(t, tt.meta)

			rows := reduceRecords(t, agg, legacyRecord(tt.value, false, at))
			require.Len(t, rows, 1)
			assert.Equal(t, tt.wantAnswerValue, rows[0].AnswerValue)
			assert.Equal(t, tt.wantValueID, rows[0].ValueID)
			assert.Equal(t, 1, rows[0].Count)
		})
	}
}

func TestDistributionAggregator_ChoiceWithoutMap(t *testing.T) {
	// A choice-type part whose metadata entry carries no value-id map:
	// the raw value stays as the ValueID with no displayable answer.
	meta := mapMetadata{
		testPartID: {
			Question:     "Pick one",
			ResponseType: "multiplechoiceresponse",
			InputType:    "choicegroup",
		},
	}
	agg := newAggregator(t, meta)
	at := time.Date(2014, 3, 25, 10, 0, 0, 0, time.UTC)

	rows := reduceRecords(t, agg, legacyRecord(domain.NewValue("choice_1"), false, at))
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].AnswerValue)
	assert.Equal(t, "choice_1", rows[0].ValueID)
}

func TestDistributionAggregator_SubmissionChoiceKeepsRawValueID(t *testing.T) {
	agg := newAggregator(t, mapMetadata{})
	at := time.Date(2014, 3, 25, 10, 0, 0, 0, time.UTC)

	answer := domain.NewMultiValue([]string{"First", "Second"})
	valueID := domain.NewMultiValue([]string{"choice_1", "choice_2"})
	rec := domain.AnswerPartRecord{
		Key:       testAnswerKey,
		Timestamp: at,
		Answer: domain.AnswerData{
			ProblemID:     testProblemID,
			Correct:       true,
			Answer:        &answer,
			AnswerValueID: &valueID,
			ResponseType:  "choiceresponse",
		},
	}

	rows := reduceRecords(t, agg, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, "[First|Second]", rows[0].AnswerValue)
	assert.Equal(t, "[choice_1|choice_2]", rows[0].ValueID)
}

func TestDistributionAggregator_DisplayNameBackfill(t *testing.T) {
	agg := newAggregator(t, numericalMetadata())
	early := time.Date(2014, 3, 25, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	withName := legacyRecord(domain.NewValue("3"), false, early)
	withName.Answer.ProblemDisplayName = "Renamed Problem"
	without := legacyRecord(domain.NewValue("3"), false, late)
	without.Answer.ProblemDisplayName = ""

	// The latest record's empty display name falls back to the
	// metadata entry, then an older record's non-empty name is not
	// discarded when the group already has one.
	rows := reduceRecords(t, agg, without, withName)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Count)
	assert.Equal(t, "Force Problem", rows[0].ProblemDisplayName)
}

func TestDistributionAggregator_OrderIndependentCounts(t *testing.T) {
	agg := newAggregator(t, numericalMetadata())
	at := time.Date(2014, 3, 25, 10, 0, 0, 0, time.UTC)

	records := []domain.AnswerPartRecord{
		legacyRecord(domain.NewValue("3"), true, at),
		legacyRecord(domain.NewValue("4"), false, at.Add(time.Minute)),
		legacyRecord(domain.NewValue("3"), true, at.Add(2*time.Minute)),
	}
	reversed := []domain.AnswerPartRecord{records[2], records[1], records[0]}

	countsOf := func(rows []domain.DistributionRow) map[string]int {
		counts := make(map[string]int, len(rows))
		for _, row := range rows {
			counts[row.AnswerValue] = row.Count
		}
		return counts
	}

	first := reduceRecords(t, agg, records...)
	second := reduceRecords(t, agg, reversed...)
	assert.Equal(t, countsOf(first), countsOf(second))
}
