package domain

import "strconv"

// Output table column names. The configured column order may vary per
// run, but every column must be one of these.
const (
	ColProblemDisplayName = "Problem Display Name"
	ColCount              = "Count"
	ColPartID             = "PartID"
	ColQuestion           = "Question"
	ColAnswerValue        = "AnswerValue"
	ColValueID            = "ValueID"
	ColVariant            = "Variant"
	ColCorrectAnswer      = "Correct Answer"
	ColModuleID           = "ModuleID"
)

// DefaultColumns returns the standard output column order.
func DefaultColumns() []string {
	return []string{
		ColProblemDisplayName,
		ColCount,
		ColPartID,
		ColQuestion,
		ColAnswerValue,
		ColValueID,
		ColVariant,
		ColCorrectAnswer,
		ColModuleID,
	}
}

// DistributionRow is one aggregated answer variant for one answer part:
// how many students' latest submissions carried this exact
// (answer value, value id, variant, correctness) combination.
// Rows are regenerated on every pipeline run and carry no identity
// beyond their field values.
type DistributionRow struct {
	CourseID           string
	ProblemDisplayName string
	Count              int
	PartID             string
	Question           string
	AnswerValue        string
	ValueID            string
	Variant            Variant
	Correct            bool
	ModuleID           string
}

// Field renders the named output column for this row. The Correct
// Answer column is the literal "1" or "0"; absent display values render
// as empty strings. ok is false for column names outside the known set.
func (r DistributionRow) Field(name string) (value string, ok bool) {
	switch name {
	case ColProblemDisplayName:
		return r.ProblemDisplayName, true
	case ColCount:
		return strconv.Itoa(r.Count), true
	case ColPartID:
		return r.PartID, true
	case ColQuestion:
		return r.Question, true
	case ColAnswerValue:
		return r.AnswerValue, true
	case ColValueID:
		return r.ValueID, true
	case ColVariant:
		return string(r.Variant), true
	case ColCorrectAnswer:
		if r.Correct {
			return "1", true
		}
		return "0", true
	case ColModuleID:
		return r.ModuleID, true
	default:
		return "", false
	}
}
