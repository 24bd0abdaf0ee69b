package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistributionRow_Field(t *testing.T) {
	row := DistributionRow{
		CourseID:           "MITx/8.01/2014_Spring",
		ProblemDisplayName: "Quadratics",
		Count:              41,
		PartID:             "i4x-MITx-8.01-problem-q1_2_1",
		Question:           "Pick the curves",
		AnswerValue:        "[First|Second]",
		ValueID:            "[choice_1|choice_2]",
		Variant:            "629",
		Correct:            true,
		ModuleID:           "i4x://MITx/8.01/problem/q1",
	}

	tests := []struct {
		column string
		want   string
	}{
		{ColProblemDisplayName, "Quadratics"},
		{ColCount, "41"},
		{ColPartID, "i4x-MITx-8.01-problem-q1_2_1"},
		{ColQuestion, "Pick the curves"},
		{ColAnswerValue, "[First|Second]"},
		{ColValueID, "[choice_1|choice_2]"},
		{ColVariant, "629"},
		{ColCorrectAnswer, "1"},
		{ColModuleID, "i4x://MITx/8.01/problem/q1"},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			got, ok := row.Field(tt.column)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDistributionRow_FieldUnknownColumn(t *testing.T) {
	var row DistributionRow
	_, ok := row.Field("Grade")
	assert.False(t, ok)
}

func TestDistributionRow_FieldIncorrect(t *testing.T) {
	row := DistributionRow{Correct: false}
	got, ok := row.Field(ColCorrectAnswer)
	assert.True(t, ok)
	assert.Equal(t, "0", got)
}

func TestDefaultColumns(t *testing.T) {
	cols := DefaultColumns()
	assert.Len(t, cols, 9)
	assert.Equal(t, ColProblemDisplayName, cols[0])
	assert.Equal(t, ColModuleID, cols[len(cols)-1])

	var row DistributionRow
	for _, col := range cols {
		_, ok := row.Field(col)
		assert.True(t, ok, "column %q must be renderable", col)
	}
}
