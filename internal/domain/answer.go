package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// hiddenSuffixes mark answer-part ids that carry auxiliary widget state
// (embedded math editors, comment sub-fields) rather than a gradable
// student response. They never appear in pipeline output.
var hiddenSuffixes = []string{"_dynamath", "_comment"}

// HiddenPartID reports whether id refers to a hidden auxiliary field of
// a visible answer part.
func HiddenPartID(id string) bool {
	for _, suffix := range hiddenSuffixes {
		if strings.HasSuffix(id, suffix) {
			return true
		}
	}
	return false
}

// Value is a raw answer value as observed in an event: either a single
// scalar or an ordered sequence of selections. The zero Value is empty.
type Value struct {
	items []string
	multi bool
}

// NewValue creates a scalar Value.
func NewValue(s string) Value { return Value{items: []string{s}} }

// NewMultiValue creates a multi-valued Value preserving element order.
func NewMultiValue(items []string) Value {
	return Value{items: append([]string(nil), items...), multi: true}
}

// IsZero reports whether the value is absent.
func (v Value) IsZero() bool { return v.items == nil }

// Multi reports whether the value holds multiple selections.
func (v Value) Multi() bool { return v.multi }

// Items returns the individual elements in their given order. A scalar
// value yields a single element.
func (v Value) Items() []string {
	return append([]string(nil), v.items...)
}

// Display renders the value for output tables: scalars as-is, sequences
// bracketed and pipe-delimited, e.g. [choice_1|choice_2].
func (v Value) Display() string {
	if v.items == nil {
		return ""
	}
	if v.multi {
		return "[" + strings.Join(v.items, "|") + "]"
	}
	return v.items[0]
}

// UnmarshalJSON accepts a scalar or an array of scalars. Numbers keep
// their literal form so that "3" and 3 render identically.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case nil:
		*v = Value{}
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = scalarText(item)
		}
		*v = Value{items: items, multi: true}
	default:
		*v = Value{items: []string{scalarText(val)}}
	}
	return nil
}

// MarshalJSON emits null, a string, or an array of strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.items == nil:
		return []byte("null"), nil
	case v.multi:
		return json.Marshal(v.items)
	default:
		return json.Marshal(v.items[0])
	}
}

// scalarText renders a decoded JSON scalar as display text.
func scalarText(val any) string {
	switch s := val.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case bool:
		if s {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", s)
	}
}

// Variant is the problem randomization seed in display form. Raw events
// carry it as a number, a string, or null; it normalizes to its literal
// text, empty when absent.
type Variant string

// UnmarshalJSON accepts a number, string, or null.
func (v *Variant) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = Variant(scalarText(raw))
	return nil
}

// MarshalJSON emits the variant text, or null when absent.
func (v Variant) MarshalJSON() ([]byte, error) {
	if v == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(v))
}

// Correctness normalizes the two historical encodings of grading
// outcome. Modern submissions carry a boolean; legacy correct_map
// entries carry a label such as "correct" or "incorrect", where only
// the exact label "correct" counts as a correct answer.
type Correctness bool

// UnmarshalJSON accepts a boolean, a correctness label, or null.
func (c *Correctness) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case bool:
		*c = Correctness(val)
	case string:
		*c = val == "correct"
	default:
		*c = false
	}
	return nil
}

// MarshalJSON emits the normalized boolean.
func (c Correctness) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(c))
}

// AnswerKey identifies all answers observed for one answer part of one
// course. It is the grouping key of the distribution aggregation.
type AnswerKey struct {
	CourseID string
	PartID   string
}

// AnswerData describes one answer part taken from a student's most
// recent problem check. It is a tagged union over the two historical
// event schemas: legacy events carry only the raw answer_value_id,
// while events with submission data carry the richer submission fields.
// FromSubmission selects the side of the union.
type AnswerData struct {
	ProblemID          string      `json:"problem_id"`
	ProblemDisplayName string      `json:"problem_display_name,omitempty"`
	Variant            Variant     `json:"variant"`
	Correct            Correctness `json:"correct"`

	// AnswerValueID is the raw value recorded in the event's answers
	// map. Always present on legacy records; present on submission
	// records only for choice-style responses.
	AnswerValueID *Value `json:"answer_value_id,omitempty"`

	// Submission-schema fields, absent on legacy records.
	Answer       *Value `json:"answer,omitempty"`
	InputType    string `json:"input_type,omitempty"`
	Question     string `json:"question,omitempty"`
	ResponseType string `json:"response_type,omitempty"`
}

// FromSubmission reports which side of the schema union this answer
// came from. Submission records always carry a response type.
func (a AnswerData) FromSubmission() bool { return a.ResponseType != "" }

// AnswerPartRecord is the last-event reducer's output: one answer part
// of the most recent problem check for a (course, problem, student)
// key, re-keyed by (course, answer part).
type AnswerPartRecord struct {
	Key       AnswerKey
	Timestamp time.Time
	Answer    AnswerData
}
