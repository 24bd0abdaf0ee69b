package domain

// MetadataEntry holds the authored description of one answer part,
// supplied by the external metadata source. Legacy records that lack
// submission data are classified and enriched through these entries.
// Absence of an entry for a given id is a normal, expected state.
type MetadataEntry struct {
	Question           string `json:"question"`
	ResponseType       string `json:"response_type"`
	InputType          string `json:"input_type"`
	ProblemDisplayName string `json:"problem_display_name"`

	// AnswerValueIDMap maps a raw choice identifier to its
	// human-readable label. When present, legacy answer values are
	// treated as choice ids and resolved through this map.
	AnswerValueIDMap map[string]string `json:"answer_value_id_map,omitempty"`
}
